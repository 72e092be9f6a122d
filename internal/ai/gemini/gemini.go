// Package gemini generates images through the Gemini generateContent REST API.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kiliankoe/promptcraft/internal/ai"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.5-flash-image"
)

type Client struct {
	APIKey  string
	BaseURL string
	Model   string
	http    *http.Client
}

// New returns a client. Request deadlines come from the caller's context.
func New(apiKey, baseURL, model string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{APIKey: apiKey, BaseURL: strings.TrimRight(baseURL, "/"), Model: model, http: &http.Client{}}
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents         []content `json:"contents"`
	GenerationConfig struct {
		ResponseModalities []string `json:"responseModalities"`
	} `json:"generationConfig"`
}

type safetyRating struct {
	Category    string `json:"category"`
	Probability string `json:"probability"`
	Blocked     bool   `json:"blocked"`
}

type candidate struct {
	Content       content        `json:"content"`
	FinishReason  string         `json:"finishReason"`
	FinishMessage string         `json:"finishMessage"`
	SafetyRatings []safetyRating `json:"safetyRatings"`
}

type generateResponse struct {
	Candidates     []candidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason        string `json:"blockReason"`
		BlockReasonMessage string `json:"blockReasonMessage"`
	} `json:"promptFeedback"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate sends the prompt, with the prior image first when refining.
func (c *Client) Generate(ctx context.Context, prompt string, prior []byte) ai.Result {
	if c.APIKey == "" {
		return ai.Failure(ai.FailureException, "missing GEMINI_API_KEY")
	}
	var req generateRequest
	req.GenerationConfig.ResponseModalities = []string{"TEXT", "IMAGE"}
	parts := make([]part, 0, 2)
	if len(prior) > 0 {
		parts = append(parts, part{InlineData: &inlineData{MimeType: "image/png", Data: base64.StdEncoding.EncodeToString(prior)}})
	}
	parts = append(parts, part{Text: prompt})
	req.Contents = []content{{Role: "user", Parts: parts}}

	b, err := json.Marshal(req)
	if err != nil {
		return ai.Failure(ai.FailureException, "encode request: %v", err)
	}
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.BaseURL, c.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return ai.Failure(ai.FailureException, "build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return ai.Failure(ai.FailureException, "gemini request: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ai.Failure(ai.FailureException, "read response: %v", err)
	}
	if resp.StatusCode/100 != 2 {
		res := ai.Failure(ai.FailureAPIError, "gemini status %d", resp.StatusCode)
		var e apiError
		if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
			res.Diagnostics.Message = e.Error.Message
		}
		res.Diagnostics.StatusCode = resp.StatusCode
		return res
	}
	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return ai.Failure(ai.FailureException, "decode response: %v", err)
	}
	return classify(out)
}

// classify maps a decoded response onto a Result. Checks run in order of
// precedence: a blocked prompt beats anything the candidate says.
func classify(out generateResponse) ai.Result {
	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return ai.Failure(ai.FailurePolicyViolation, "Prompt blocked: %s", out.PromptFeedback.BlockReason)
	}
	if len(out.Candidates) == 0 {
		return ai.Failure(ai.FailureNoCandidates, "API returned no candidates")
	}
	cand := out.Candidates[0]
	diag := ai.Diagnostics{FinishReason: cand.FinishReason}
	for _, r := range cand.SafetyRatings {
		diag.SafetyRatings = append(diag.SafetyRatings, ai.SafetyRating{Category: r.Category, Probability: r.Probability, Blocked: r.Blocked})
	}

	fail := func(kind ai.FailureKind, format string, args ...any) ai.Result {
		res := ai.Failure(kind, format, args...)
		res.Diagnostics.FinishReason = diag.FinishReason
		res.Diagnostics.SafetyRatings = diag.SafetyRatings
		return res
	}

	switch cand.FinishReason {
	case "SAFETY", "RECITATION", "PROHIBITED_CONTENT", "IMAGE_SAFETY":
		return fail(ai.FailurePolicyViolation, "Content blocked: %s", cand.FinishReason)
	case "OTHER":
		return fail(ai.FailureAPIError, "API returned finish_reason: %s", cand.FinishReason)
	case "MAX_TOKENS":
		return fail(ai.FailureAPIError, "Response exceeded token limit")
	}
	for _, r := range cand.SafetyRatings {
		if r.Blocked || r.Probability == "HIGH" || r.Probability == "BLOCKED" {
			return fail(ai.FailurePolicyViolation, "Safety filter triggered: %s", r.Category)
		}
	}

	var text []string
	for _, p := range cand.Content.Parts {
		if p.InlineData == nil || p.InlineData.Data == "" {
			if p.Text != "" {
				text = append(text, p.Text)
			}
			continue
		}
		img, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
		if err != nil {
			return fail(ai.FailureException, "decode image: %v", err)
		}
		diag.Message = strings.Join(text, " ")
		return ai.Success(img, diag)
	}
	if len(text) > 0 {
		return fail(ai.FailureNoImage, "API returned text but no image: %s", strings.Join(text, " "))
	}
	return fail(ai.FailureNoImage, "API returned success but no image data")
}
