package escrow

import (
	"errors"
	"fmt"
)

// PayloadTooLargeError reports evidence exceeding the aggregate size ceiling.
// Not retryable: the same input will always be rejected.
type PayloadTooLargeError struct {
	Size int
	Max  int
}

func (e PayloadTooLargeError) Error() string {
	return fmt.Sprintf("evidence payload %d bytes exceeds %d byte ceiling", e.Size, e.Max)
}

// InvalidFileError reports a malformed evidence file. Not retryable.
type InvalidFileError struct {
	Name   string
	Reason string
}

func (e InvalidFileError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("invalid evidence file: %s", e.Reason)
	}
	return fmt.Sprintf("invalid evidence file %q: %s", e.Name, e.Reason)
}

// StorageUnavailableError reports a transient storage failure. Retryable.
type StorageUnavailableError struct {
	Err error
}

func (e StorageUnavailableError) Error() string {
	return fmt.Sprintf("evidence storage unavailable: %s", e.Err)
}

func (e StorageUnavailableError) Unwrap() error { return e.Err }

// AdjudicationServiceError reports a transport or model failure from the
// judgment service. Retryable with backoff.
type AdjudicationServiceError struct {
	Err error
}

func (e AdjudicationServiceError) Error() string {
	return fmt.Sprintf("adjudication service failure: %s", e.Err)
}

func (e AdjudicationServiceError) Unwrap() error { return e.Err }

// MalformedResponseError reports an adjudicator reply that could not be
// parsed at all. The pipeline treats it as a failed verdict, not an error.
type MalformedResponseError struct {
	Raw string
}

func (e MalformedResponseError) Error() string {
	return "adjudicator response could not be parsed"
}

// MissingSigningKeyError is fatal at startup: the attestation key could not
// be loaded from the secret store.
type MissingSigningKeyError struct {
	Reason string
}

func (e MissingSigningKeyError) Error() string {
	return fmt.Sprintf("signing key unavailable: %s", e.Reason)
}

// InvalidStateTransitionError reports an escrow operation whose on-chain
// status precondition failed. Never retried with the same inputs.
type InvalidStateTransitionError struct {
	EscrowID  ID
	Operation string
	Status    Status
}

func (e InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("escrow %s: %s not allowed in status %s", e.EscrowID, e.Operation, e.Status)
}

// UnknownEscrowError reports a reference to an escrow that does not exist.
type UnknownEscrowError struct {
	EscrowID string
}

func (e UnknownEscrowError) Error() string {
	return fmt.Sprintf("unknown escrow %s", e.EscrowID)
}

// ChainRPCError reports a transient chain RPC failure. Retryable.
type ChainRPCError struct {
	Method string
	Err    error
}

func (e ChainRPCError) Error() string {
	return fmt.Sprintf("chain rpc %s failed: %s", e.Method, e.Err)
}

func (e ChainRPCError) Unwrap() error { return e.Err }

// VerificationInProgressError reports a duplicate verification request for an
// escrow whose pipeline is already running.
type VerificationInProgressError struct {
	EscrowID ID
}

func (e VerificationInProgressError) Error() string {
	return fmt.Sprintf("verification already in progress for escrow %s", e.EscrowID)
}

// NotCancellableError reports a cancellation attempt after the pipeline has
// entered chain submission.
type NotCancellableError struct {
	EscrowID ID
}

func (e NotCancellableError) Error() string {
	return fmt.Sprintf("escrow %s: pipeline past submission, cancellation refused", e.EscrowID)
}

// Stage names a pipeline stage for failure reporting.
type Stage string

const (
	StageEvidenceUploading Stage = "evidence_uploading"
	StageAdjudicating      Stage = "adjudicating"
	StageSigning           Stage = "signing"
	StageSubmitting        Stage = "submitting"
)

// VerificationFailedError is the pipeline's terminal failure: it names the
// stage that exhausted its retries and the underlying cause.
type VerificationFailedError struct {
	EscrowID ID
	Stage    Stage
	Cause    error
}

func (e VerificationFailedError) Error() string {
	return fmt.Sprintf("verification failed for escrow %s at stage %s: %s", e.EscrowID, e.Stage, e.Cause)
}

func (e VerificationFailedError) Unwrap() error { return e.Cause }

// Retryable reports whether an error is a transient infrastructure failure
// that the pipeline may retry with backoff. Input and integrity errors are
// surfaced immediately.
func Retryable(err error) bool {
	var storage StorageUnavailableError
	var adjudication AdjudicationServiceError
	var rpc ChainRPCError
	return errors.As(err, &storage) || errors.As(err, &adjudication) || errors.As(err, &rpc)
}
