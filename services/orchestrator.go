package services

import (
	"context"
	"sync"
	"time"

	"aetherlock-backend/core/escrow"
	"aetherlock-backend/metrics"
	"aetherlock-backend/solana"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/jellydator/ttlcache/v3"
)

var log = logging.Logger("orchestrator")

const (
	maxAttempts  = 3
	retryBackoff = time.Second
	recordTTL    = 24 * time.Hour
)

// EvidenceUploader stores an evidence bundle and returns its manifest.
type EvidenceUploader interface {
	Upload(ctx context.Context, files []escrow.EvidenceFile) (*escrow.EvidenceManifest, error)
}

// Adjudicator judges whether uploaded evidence satisfies a task description.
type Adjudicator interface {
	Analyze(ctx context.Context, taskDescription string, manifest *escrow.EvidenceManifest) (*escrow.Verdict, error)
}

// Attestor signs a verdict into a chain-verifiable attestation.
type Attestor interface {
	Sign(id escrow.ID, result bool, digest [32]byte, timestamp int64) *escrow.Attestation
}

// ChainSubmitter pushes a signed attestation to the settlement chain.
type ChainSubmitter interface {
	SubmitVerification(ctx context.Context, att *escrow.Attestation) (*solana.TxResult, error)
}

// RunState tracks a verification run through its lifecycle.
type RunState string

const (
	RunPending   RunState = "pending"
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunFailed    RunState = "failed"
	RunCancelled RunState = "cancelled"
)

// VerificationRecord is the durable outcome of one pipeline run. Completed
// records are retained for status queries until their TTL expires.
type VerificationRecord struct {
	RunID       string                   `json:"run_id"`
	EscrowID    escrow.ID                `json:"escrow_id"`
	State       RunState                 `json:"state"`
	Stage       escrow.Stage             `json:"stage,omitempty"`
	Manifest    *escrow.EvidenceManifest `json:"manifest,omitempty"`
	Verdict     *escrow.Verdict          `json:"verdict,omitempty"`
	Attestation *escrow.Attestation      `json:"attestation,omitempty"`
	TxSignature string                   `json:"tx_signature,omitempty"`
	Error       string                   `json:"error,omitempty"`
	StartedAt   time.Time                `json:"started_at"`
	FinishedAt  time.Time                `json:"finished_at,omitempty"`
}

type run struct {
	record VerificationRecord
	cancel context.CancelFunc
	mu     sync.Mutex
}

func (r *run) setStage(stage escrow.Stage) {
	r.mu.Lock()
	r.record.Stage = stage
	r.mu.Unlock()
}

func (r *run) snapshot() VerificationRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.record
}

// VerificationOrchestrator drives the evidence-to-settlement pipeline. At
// most one run per escrow is live at a time; a second request for the same
// escrow while a run is active is refused rather than queued.
type VerificationOrchestrator struct {
	evidence    EvidenceUploader
	adjudicator Adjudicator
	attestor    Attestor
	chain       ChainSubmitter
	now         func() time.Time

	mu      sync.Mutex
	active  map[escrow.ID]*run
	history *ttlcache.Cache[string, VerificationRecord]
}

// NewVerificationOrchestrator wires the pipeline stages together.
func NewVerificationOrchestrator(evidence EvidenceUploader, adjudicator Adjudicator, attestor Attestor, chain ChainSubmitter) *VerificationOrchestrator {
	history := ttlcache.New[string, VerificationRecord](
		ttlcache.WithTTL[string, VerificationRecord](recordTTL),
	)
	go history.Start()
	return &VerificationOrchestrator{
		evidence:    evidence,
		adjudicator: adjudicator,
		attestor:    attestor,
		chain:       chain,
		now:         time.Now,
		active:      make(map[escrow.ID]*run),
		history:     history,
	}
}

// Verify runs the full pipeline for one escrow: upload evidence, obtain a
// verdict, sign the attestation and submit it on-chain. It blocks until the
// run finishes and returns the resulting record. Transient stage failures are
// retried with exponential backoff before the run fails.
func (o *VerificationOrchestrator) Verify(ctx context.Context, id escrow.ID, taskDescription string, files []escrow.EvidenceFile) (*VerificationRecord, error) {
	runCtx, cancel := context.WithCancel(ctx)

	o.mu.Lock()
	if _, busy := o.active[id]; busy {
		o.mu.Unlock()
		cancel()
		return nil, escrow.VerificationInProgressError{EscrowID: id}
	}
	r := &run{
		record: VerificationRecord{
			RunID:     uuid.NewString(),
			EscrowID:  id,
			State:     RunRunning,
			StartedAt: o.now(),
		},
		cancel: cancel,
	}
	o.active[id] = r
	o.mu.Unlock()

	defer func() {
		cancel()
		o.mu.Lock()
		delete(o.active, id)
		o.mu.Unlock()
	}()

	err := o.execute(runCtx, r, taskDescription, files)

	r.mu.Lock()
	r.record.FinishedAt = o.now()
	if err != nil {
		if runCtx.Err() != nil && ctx.Err() == nil {
			r.record.State = RunCancelled
			metrics.VerificationRuns.WithLabelValues("cancelled").Inc()
		} else {
			r.record.State = RunFailed
			metrics.VerificationRuns.WithLabelValues("failed").Inc()
		}
		r.record.Error = err.Error()
	} else {
		r.record.State = RunCompleted
		metrics.VerificationRuns.WithLabelValues("completed").Inc()
	}
	final := r.record
	r.mu.Unlock()

	o.history.Set(id.String(), final, ttlcache.DefaultTTL)

	if err != nil {
		return &final, err
	}
	return &final, nil
}

func (o *VerificationOrchestrator) execute(ctx context.Context, r *run, taskDescription string, files []escrow.EvidenceFile) error {
	id := r.record.EscrowID

	r.setStage(escrow.StageEvidenceUploading)
	manifest, err := retryStage(ctx, escrow.StageEvidenceUploading, func() (*escrow.EvidenceManifest, error) {
		return o.evidence.Upload(ctx, files)
	})
	if err != nil {
		return escrow.VerificationFailedError{EscrowID: id, Stage: escrow.StageEvidenceUploading, Cause: err}
	}
	r.mu.Lock()
	r.record.Manifest = manifest
	r.mu.Unlock()
	log.With("escrow", id, "cid", manifest.CID).Info("evidence uploaded")

	r.setStage(escrow.StageAdjudicating)
	verdict, err := retryStage(ctx, escrow.StageAdjudicating, func() (*escrow.Verdict, error) {
		return o.adjudicator.Analyze(ctx, taskDescription, manifest)
	})
	if err != nil {
		return escrow.VerificationFailedError{EscrowID: id, Stage: escrow.StageAdjudicating, Cause: err}
	}
	r.mu.Lock()
	r.record.Verdict = verdict
	r.mu.Unlock()
	if verdict.Result {
		metrics.Verdicts.WithLabelValues("completed").Inc()
	} else {
		metrics.Verdicts.WithLabelValues("not_completed").Inc()
	}
	log.With("escrow", id, "result", verdict.Result, "confidence", verdict.Confidence).Info("verdict received")

	r.setStage(escrow.StageSigning)
	att := o.attestor.Sign(id, verdict.Result, manifest.Digest, verdict.Timestamp)
	r.mu.Lock()
	r.record.Attestation = att
	r.mu.Unlock()

	// Point of no return: from here the attestation may reach the chain,
	// so cancellation is refused.
	r.setStage(escrow.StageSubmitting)
	outcome, err := retryStage(ctx, escrow.StageSubmitting, func() (*solana.TxResult, error) {
		return o.chain.SubmitVerification(ctx, att)
	})
	if err != nil {
		metrics.ChainSubmissions.WithLabelValues("submit_verification", "failed").Inc()
		return escrow.VerificationFailedError{EscrowID: id, Stage: escrow.StageSubmitting, Cause: err}
	}
	if outcome.AlreadyApplied {
		metrics.ChainSubmissions.WithLabelValues("submit_verification", "duplicate").Inc()
	} else {
		metrics.ChainSubmissions.WithLabelValues("submit_verification", "confirmed").Inc()
	}
	r.mu.Lock()
	r.record.TxSignature = outcome.Signature
	r.mu.Unlock()
	log.With("escrow", id, "signature", outcome.Signature, "duplicate", outcome.AlreadyApplied).Info("attestation submitted")
	return nil
}

// retryStage runs fn up to maxAttempts times, backing off exponentially from
// retryBackoff between attempts. Only transient infrastructure failures are
// retried; anything else fails the stage immediately.
func retryStage[T any](ctx context.Context, stage escrow.Stage, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	}()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !escrow.Retryable(err) {
			return zero, err
		}
		if attempt == maxAttempts {
			break
		}
		metrics.StageRetries.WithLabelValues(string(stage)).Inc()
		delay := retryBackoff << (attempt - 1)
		log.With("stage", stage, "attempt", attempt, "delay", delay).Warnw("stage failed, retrying", "error", err)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
	return zero, lastErr
}

// Cancel aborts a live run for the given escrow. Once the run has entered
// chain submission the attestation may already be in flight, so cancellation
// is refused with NotCancellableError.
func (o *VerificationOrchestrator) Cancel(id escrow.ID) error {
	o.mu.Lock()
	r, ok := o.active[id]
	o.mu.Unlock()
	if !ok {
		return escrow.UnknownEscrowError{EscrowID: id.String()}
	}
	// The stage check and the cancel must be atomic with respect to
	// setStage: otherwise the run could enter submission between them and
	// have its in-flight transaction aborted.
	r.mu.Lock()
	stage := r.record.Stage
	if stage == escrow.StageSubmitting {
		r.mu.Unlock()
		return escrow.NotCancellableError{EscrowID: id}
	}
	r.cancel()
	r.mu.Unlock()
	log.With("escrow", id, "stage", stage).Info("verification run cancelled")
	return nil
}

// Status reports the current or most recent run for an escrow. Live runs take
// precedence over retained history.
func (o *VerificationOrchestrator) Status(id escrow.ID) (*VerificationRecord, error) {
	o.mu.Lock()
	r, ok := o.active[id]
	o.mu.Unlock()
	if ok {
		rec := r.snapshot()
		return &rec, nil
	}
	if item := o.history.Get(id.String()); item != nil {
		rec := item.Value()
		return &rec, nil
	}
	return nil, escrow.UnknownEscrowError{EscrowID: id.String()}
}

// Close stops the orchestrator's background cache janitor.
func (o *VerificationOrchestrator) Close() {
	o.history.Stop()
}
