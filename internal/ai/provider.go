package ai

import (
	"context"
	"fmt"
)

// FailureKind classifies why a generation did not yield a usable image.
// The zero value means success.
type FailureKind string

const (
	FailureNone            FailureKind = ""
	FailurePolicyViolation FailureKind = "policy_violation"
	FailureSmallImage      FailureKind = "small_image"
	FailureNoImage         FailureKind = "no_image_in_response"
	FailureNoCandidates    FailureKind = "no_candidates"
	FailureAPIError        FailureKind = "api_error"
	FailureException       FailureKind = "exception"
	FailureOuterException  FailureKind = "outer_exception"
)

// Diagnostics carries raw provider details for the audit log and analytics.
type Diagnostics struct {
	Message       string         `json:"message,omitempty"`
	FinishReason  string         `json:"finishReason,omitempty"`
	SafetyRatings []SafetyRating `json:"safetyRatings,omitempty"`
	StatusCode    int            `json:"statusCode,omitempty"`
}

type SafetyRating struct {
	Category    string `json:"category"`
	Probability string `json:"probability"`
	Blocked     bool   `json:"blocked,omitempty"`
}

// Result is the tagged outcome of one generation call: either Image is set and
// Failure is FailureNone, or Failure names what went wrong.
type Result struct {
	Image       []byte
	Failure     FailureKind
	Diagnostics Diagnostics
}

func Success(img []byte, d Diagnostics) Result {
	return Result{Image: img, Diagnostics: d}
}

func Failure(kind FailureKind, format string, args ...any) Result {
	return Result{Failure: kind, Diagnostics: Diagnostics{Message: fmt.Sprintf(format, args...)}}
}

func (r Result) OK() bool { return r.Failure == FailureNone && len(r.Image) > 0 }

// ImageGenerator produces an image from a prompt, optionally refining prior.
// Implementations never return transport errors; they fold them into Result.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string, prior []byte) Result
}
