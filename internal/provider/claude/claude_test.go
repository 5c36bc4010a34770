package claude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vnmchuo/llm-exec/internal/provider"
)

func testProvider(url string) *ClaudeProvider {
	return &ClaudeProvider{
		apiKey:  "test-key",
		baseURL: url,
		client:  http.DefaultClient,
	}
}

func TestComplete_Mock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("Expected x-api-key header, got %q", r.Header.Get("x-api-key"))
		}
		var got claudeRequest
		json.NewDecoder(r.Body).Decode(&got)
		if got.System != "be brief" {
			t.Errorf("Expected system prompt in top-level field, got %q", got.System)
		}
		if got.MaxTokens != 4096 {
			t.Errorf("Expected default max_tokens 4096, got %d", got.MaxTokens)
		}

		resp := claudeResponse{
			ID:         "msg-1",
			Content:    []claudeContent{{Type: "text", Text: "Hello from Claude mock!"}},
			Model:      "claude-3-5-sonnet-20241022",
			StopReason: "end_turn",
			Usage: claudeUsage{
				InputTokens:          12,
				OutputTokens:         34,
				CacheReadInputTokens: 5,
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	resp, err := testProvider(server.URL).Complete(context.Background(), &provider.Request{
		Model:        "claude-3-5-sonnet-20241022",
		Prompt:       "hi",
		SystemPrompt: "be brief",
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.Text != "Hello from Claude mock!" {
		t.Errorf("Expected 'Hello from Claude mock!', got %q", resp.Text)
	}
	if resp.Usage.PromptTokens != 12 || resp.Usage.CompletionTokens != 34 {
		t.Errorf("Expected 12/34 tokens, got %d/%d", resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	if resp.Usage.CachedTokens != 5 {
		t.Errorf("Expected 5 cached tokens, got %d", resp.Usage.CachedTokens)
	}
	if resp.FinishReason != "end_turn" {
		t.Errorf("Expected end_turn, got %q", resp.FinishReason)
	}
}

func TestComplete_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := testProvider(server.URL).Complete(context.Background(), &provider.Request{
		Model: "claude-3-5-sonnet-20241022", Prompt: "hi",
	})
	var pe *provider.Error
	if !errors.As(err, &pe) || pe.Code != provider.CodeServer {
		t.Errorf("Expected server error, got %v", err)
	}
}

func TestCompleteStream_Mock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")

		fmt.Fprint(w, "event: message_start\n")
		fmt.Fprint(w, `data: {"type": "message_start", "message": {"usage": {"input_tokens": 9}}}`+"\n\n")

		for _, text := range []string{"Hello", " from", " Claude!"} {
			fmt.Fprint(w, "event: content_block_delta\n")
			fmt.Fprintf(w, `data: {"type": "content_block_delta", "delta": {"type": "text_delta", "text": %q}}`+"\n\n", text)
		}

		fmt.Fprint(w, "event: message_delta\n")
		fmt.Fprint(w, `data: {"type": "message_delta", "delta": {"stop_reason": "end_turn"}, "usage": {"output_tokens": 3}}`+"\n\n")

		fmt.Fprint(w, "event: message_stop\n")
		fmt.Fprint(w, `data: {"type": "message_stop"}`+"\n\n")
	}))
	defer server.Close()

	ch, err := testProvider(server.URL).CompleteStream(context.Background(), &provider.Request{
		Model: "claude-3-5-sonnet-20241022", Prompt: "hi",
	})
	if err != nil {
		t.Fatalf("CompleteStream failed: %v", err)
	}

	var content string
	var usage *provider.TokenUsage
	finish := ""
	for c := range ch {
		if c.Err != nil {
			t.Fatalf("Unexpected chunk error: %v", c.Err)
		}
		content += c.Delta
		if c.Usage != nil {
			usage = c.Usage
		}
		if c.FinishReason != "" {
			finish = c.FinishReason
		}
	}

	if content != "Hello from Claude!" {
		t.Errorf("Expected 'Hello from Claude!', got %q", content)
	}
	if finish != "end_turn" {
		t.Errorf("Expected end_turn, got %q", finish)
	}
	if usage == nil || usage.PromptTokens != 9 || usage.CompletionTokens != 3 {
		t.Errorf("Expected merged usage 9/3, got %+v", usage)
	}
}

func TestCompleteStream_ErrorEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: error\n")
		fmt.Fprint(w, `data: {"type": "error", "error": {"type": "overloaded_error", "message": "overloaded"}}`+"\n\n")
	}))
	defer server.Close()

	ch, err := testProvider(server.URL).CompleteStream(context.Background(), &provider.Request{
		Model: "claude-3-5-sonnet-20241022", Prompt: "hi",
	})
	if err != nil {
		t.Fatalf("CompleteStream failed: %v", err)
	}

	var chunkErr error
	for c := range ch {
		if c.Err != nil {
			chunkErr = c.Err
		}
	}
	var pe *provider.Error
	if !errors.As(chunkErr, &pe) || pe.Code != provider.CodeServer {
		t.Errorf("Expected server error chunk, got %v", chunkErr)
	}
}
