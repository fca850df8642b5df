package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{Role: genai.RoleModel}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: p})
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: content, FinishReason: genai.FinishReasonStop}},
	}
}

func TestResponseText(t *testing.T) {
	tests := []struct {
		name     string
		resp     *genai.GenerateContentResponse
		want     string
		wantKind Kind
	}{
		{name: "joins text parts", resp: textResponse(`{"selected":`, `[]}`), want: `{"selected":[]}`},
		{name: "nil response", resp: nil, wantKind: KindEmpty},
		{name: "no candidates", resp: &genai.GenerateContentResponse{}, wantKind: KindEmpty},
		{name: "blank text", resp: textResponse("  "), wantKind: KindEmpty},
		{
			name: "prompt blocked",
			resp: &genai.GenerateContentResponse{
				PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
			},
			wantKind: KindRefusal,
		},
		{
			name: "safety finish",
			resp: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
			},
			wantKind: KindRefusal,
		},
		{
			name: "thought parts skipped",
			resp: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{
					{Text: "thinking...", Thought: true},
					{Text: `{"a":1}`},
				}}}},
			},
			want: `{"a":1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, err := responseText(tt.resp)
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, AsError(err).Kind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, text)
		})
	}
}

func TestClassifyGenAIError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantKind   Kind
		wantStatus int
	}{
		{name: "api error value", err: genai.APIError{Code: 503, Message: "overloaded"}, wantKind: KindTransport, wantStatus: 503},
		{name: "wrapped api error", err: fmt.Errorf("call: %w", genai.APIError{Code: 504}), wantKind: KindTimeout, wantStatus: 504},
		{name: "deadline", err: context.DeadlineExceeded, wantKind: KindTimeout},
		{name: "other", err: errors.New("connection reset"), wantKind: KindTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := AsError(classifyGenAIError(tt.err))
			assert.Equal(t, tt.wantKind, pe.Kind)
			assert.Equal(t, tt.wantStatus, pe.StatusCode)
		})
	}
}

func TestGenAIClient_Call(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "test-model:generateContent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"trustFallback\":true,\"selected\":[]}"}]},"finishReason":"STOP"}]}`))
	}))
	defer server.Close()

	client, err := NewGenAIClient(context.Background(), GenAIConfig{
		APIKey:  "test-key",
		Model:   "test-model",
		BaseURL: server.URL,
	})
	require.NoError(t, err)

	text, err := client.Call(context.Background(), Request{System: "sys", Prompt: "prompt"})
	require.NoError(t, err)
	assert.Equal(t, `{"trustFallback":true,"selected":[]}`, text)
}

func TestNewGenAIClient_RequiresKey(t *testing.T) {
	_, err := NewGenAIClient(context.Background(), GenAIConfig{})
	assert.Error(t, err)
}
