// Package openai generates images through the OpenAI images API.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	openaigo "github.com/sashabaranov/go-openai"

	"github.com/kiliankoe/promptcraft/internal/ai"
)

type Client struct {
	client *openaigo.Client
	model  string
	hasKey bool
}

func New(apiKey, baseURL, model string) *Client {
	cfg := openaigo.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if model == "" {
		model = openaigo.CreateImageModelDallE2
	}
	return &Client{client: openaigo.NewClientWithConfig(cfg), model: model, hasKey: apiKey != ""}
}

// Generate creates a new image, or edits prior when one is given.
func (c *Client) Generate(ctx context.Context, prompt string, prior []byte) ai.Result {
	if !c.hasKey {
		return ai.Failure(ai.FailureException, "missing OPENAI_API_KEY")
	}
	var (
		resp openaigo.ImageResponse
		err  error
	)
	if len(prior) > 0 {
		resp, err = c.edit(ctx, prompt, prior)
	} else {
		resp, err = c.client.CreateImage(ctx, openaigo.ImageRequest{
			Prompt:         prompt,
			Model:          c.model,
			N:              1,
			Size:           openaigo.CreateImageSize512x512,
			ResponseFormat: openaigo.CreateImageResponseFormatB64JSON,
		})
	}
	if err != nil {
		return fromError(err)
	}
	if len(resp.Data) == 0 {
		return ai.Failure(ai.FailureNoCandidates, "API returned no images")
	}
	d := resp.Data[0]
	if d.B64JSON == "" {
		return ai.Failure(ai.FailureNoImage, "API returned success but no image data")
	}
	img, err := base64.StdEncoding.DecodeString(d.B64JSON)
	if err != nil {
		return ai.Failure(ai.FailureException, "decode image: %v", err)
	}
	return ai.Success(img, ai.Diagnostics{Message: d.RevisedPrompt})
}

// edit uploads prior as a multipart file, which the client library reads from disk.
func (c *Client) edit(ctx context.Context, prompt string, prior []byte) (openaigo.ImageResponse, error) {
	f, err := os.CreateTemp("", "prior-*.png")
	if err != nil {
		return openaigo.ImageResponse{}, fmt.Errorf("stage prior image: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()
	if _, err := f.Write(prior); err != nil {
		return openaigo.ImageResponse{}, fmt.Errorf("stage prior image: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return openaigo.ImageResponse{}, fmt.Errorf("stage prior image: %w", err)
	}
	return c.client.CreateEditImage(ctx, openaigo.ImageEditRequest{
		Image:          f,
		Prompt:         prompt,
		Model:          c.model,
		N:              1,
		Size:           openaigo.CreateImageSize512x512,
		ResponseFormat: openaigo.CreateImageResponseFormatB64JSON,
	})
}

func fromError(err error) ai.Result {
	var apiErr *openaigo.APIError
	if errors.As(err, &apiErr) {
		kind := ai.FailureAPIError
		if apiErr.Code == "content_policy_violation" || strings.Contains(apiErr.Message, "safety system") {
			kind = ai.FailurePolicyViolation
		}
		res := ai.Failure(kind, "%s", apiErr.Message)
		res.Diagnostics.StatusCode = apiErr.HTTPStatusCode
		return res
	}
	var reqErr *openaigo.RequestError
	if errors.As(err, &reqErr) {
		res := ai.Failure(ai.FailureAPIError, "%v", reqErr.Err)
		res.Diagnostics.StatusCode = reqErr.HTTPStatusCode
		return res
	}
	return ai.Failure(ai.FailureException, "openai request: %v", err)
}
