package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

type GenAIConfig struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	// BaseURL overrides the Gemini API endpoint; empty uses the SDK default.
	BaseURL string
}

// GenAIClient ranks through Google's Gemini API.
type GenAIClient struct {
	client *genai.Client
	config GenAIConfig
}

func NewGenAIClient(ctx context.Context, cfg GenAIConfig) (*GenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIClient{client: client, config: cfg}, nil
}

func (c *GenAIClient) Call(ctx context.Context, req Request) (string, error) {
	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr(float32(c.config.Temperature)),
	}
	if c.config.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(c.config.MaxTokens)
	}

	resp, err := c.client.Models.GenerateContent(ctx,
		c.config.Model,
		[]*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)},
		genCfg,
	)
	if err != nil {
		return "", classifyGenAIError(err)
	}

	return responseText(resp)
}

// responseText extracts the text of the first candidate or a typed failure.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", &Error{Kind: KindEmpty, Body: "nil response"}
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", &Error{Kind: KindRefusal, Body: string(resp.PromptFeedback.BlockReason)}
	}
	if len(resp.Candidates) == 0 {
		return "", &Error{Kind: KindEmpty, Body: "no candidates"}
	}

	cand := resp.Candidates[0]
	switch cand.FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist, genai.FinishReasonSPII:
		return "", &Error{Kind: KindRefusal, Body: string(cand.FinishReason)}
	}
	if cand.Content == nil {
		return "", &Error{Kind: KindEmpty, Body: "no content"}
	}

	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil && part.Text != "" && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return "", &Error{Kind: KindEmpty, Body: "empty content"}
	}
	return text, nil
}

func classifyGenAIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErrorToProvider(apiErr, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrorToProvider(*apiErrPtr, err)
	}
	return classifyTransport(err)
}

func apiErrorToProvider(apiErr genai.APIError, err error) *Error {
	if apiErr.Code == http.StatusGatewayTimeout || apiErr.Code == http.StatusRequestTimeout {
		return &Error{Kind: KindTimeout, StatusCode: apiErr.Code, Body: apiErr.Message, Err: err}
	}
	return &Error{Kind: KindTransport, StatusCode: apiErr.Code, Body: apiErr.Message, Err: err}
}
