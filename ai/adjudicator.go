package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"aetherlock-backend/core/escrow"

	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
)

var logger = logging.Logger("adjudicator")

// MinConfidence is the hard safety floor: any verdict below it is forced to
// a negative result regardless of the adjudicator's textual claim.
const MinConfidence = 70

// Adjudicator submits evidence metadata to an external AI judgment service
// and parses its structured reply into a verdict.
type Adjudicator struct {
	endpoint string
	model    string
	client   *http.Client
	now      func() time.Time
}

// NewAdjudicator creates an adjudicator for an invoke-model style HTTP
// endpoint.
func NewAdjudicator(endpoint, model string, timeout time.Duration) *Adjudicator {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Adjudicator{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		client:   &http.Client{Timeout: timeout},
		now:      time.Now,
	}
}

type invokeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []invokeMessage `json:"messages"`
}

type invokeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type invokeResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// Analyze builds the decision prompt from the task description and evidence
// metadata, invokes the judgment service and parses the reply. Only file
// metadata and the bundle reference are sent, never raw evidence bytes.
// Transport and model failures are retryable; an unparseable reply settles
// as a negative verdict with confidence zero.
func (a *Adjudicator) Analyze(ctx context.Context, taskDescription string, manifest *escrow.EvidenceManifest) (*escrow.Verdict, error) {
	prompt := buildPrompt(taskDescription, manifest)

	body, err := json.Marshal(invokeRequest{
		Model:     a.model,
		MaxTokens: 1000,
		Messages:  []invokeMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal judgment request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build judgment request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, escrow.AdjudicationServiceError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, escrow.AdjudicationServiceError{
			Err: fmt.Errorf("judgment service returned %s: %s", resp.Status, strings.TrimSpace(string(raw))),
		}
	}

	var parsed invokeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, escrow.AdjudicationServiceError{Err: errors.Wrap(err, "decode judgment response")}
	}
	if len(parsed.Content) == 0 {
		return nil, escrow.AdjudicationServiceError{Err: errors.New("judgment response carried no content")}
	}

	verdict := a.parseReply(parsed.Content[0].Text)
	logger.With("result", verdict.Result, "confidence", verdict.Confidence).Info("adjudication complete")
	return verdict, nil
}

// buildPrompt embeds the task description and an evidence listing into a
// single structured prompt. Raw bytes stay out of the text channel; the
// bundle CID gives the model a fetchable reference where supported.
func buildPrompt(taskDescription string, manifest *escrow.EvidenceManifest) string {
	var b strings.Builder
	b.WriteString("You are an AI verification agent for an escrow protocol. ")
	b.WriteString("Analyze the provided evidence to determine if the task has been completed satisfactorily.\n\n")
	fmt.Fprintf(&b, "Task Description: %s\n\n", taskDescription)
	b.WriteString("Evidence Files:\n")
	for _, e := range manifest.Entries {
		fmt.Fprintf(&b, "- %s (%s, %d bytes)\n", e.Name, e.MimeType, e.Size)
	}
	fmt.Fprintf(&b, "\nEvidence bundle: ipfs://%s\n\n", manifest.CID)
	b.WriteString("Instructions:\n")
	b.WriteString("1. Carefully analyze all provided evidence\n")
	b.WriteString("2. Determine if the evidence demonstrates task completion\n")
	b.WriteString("3. Consider quality, completeness, and adherence to requirements\n")
	b.WriteString("4. Provide a confidence score (0-100)\n")
	b.WriteString("5. Give a clear boolean result (COMPLETED or NOT_COMPLETED)\n\n")
	b.WriteString("Response format:\n")
	b.WriteString("RESULT: [COMPLETED/NOT_COMPLETED]\n")
	b.WriteString("CONFIDENCE: [0-100]\n")
	b.WriteString("REASONING: [Brief explanation of your decision]\n")
	return b.String()
}

// parseReply extracts the three-line structured verdict. A RESULT line that
// is missing or ambiguous parses to false; a missing or non-numeric
// CONFIDENCE parses to zero. Confidence below the floor forces the result to
// false. A reply with none of the markers settles as a definitive "no"
// rather than blocking settlement.
func (a *Adjudicator) parseReply(text string) *escrow.Verdict {
	verdict := &escrow.Verdict{Timestamp: a.now().Unix()}

	sawMarker := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "RESULT:"):
			sawMarker = true
			verdict.Result = strings.Contains(line, "COMPLETED") && !strings.Contains(line, "NOT_COMPLETED")
		case strings.HasPrefix(line, "CONFIDENCE:"):
			sawMarker = true
			raw := strings.TrimSpace(strings.TrimPrefix(line, "CONFIDENCE:"))
			if v, err := strconv.Atoi(raw); err == nil {
				verdict.Confidence = clampConfidence(v)
			}
		case strings.HasPrefix(line, "REASONING:"):
			sawMarker = true
			verdict.Reasoning = strings.TrimSpace(strings.TrimPrefix(line, "REASONING:"))
		}
	}

	if !sawMarker {
		logger.With("error", escrow.MalformedResponseError{Raw: text}).Warn("unparseable adjudicator reply, settling as failed verdict")
		verdict.Result = false
		verdict.Confidence = 0
		verdict.Reasoning = "unparseable adjudicator response"
		return verdict
	}

	if verdict.Confidence < MinConfidence {
		verdict.Result = false
	}
	return verdict
}

// clampConfidence bounds a reported confidence to the 0-100 scale the prompt
// asks for; models occasionally step outside it.
func clampConfidence(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
