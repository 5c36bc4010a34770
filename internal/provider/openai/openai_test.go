package openai

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

func testProvider(url string) *OpenAIProvider {
	return &OpenAIProvider{
		apiKey:  "test-key",
		baseURL: url,
		client:  http.DefaultClient,
	}
}

func TestComplete_Mock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var got openAIRequest
		json.NewDecoder(r.Body).Decode(&got)
		if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
			t.Errorf("Expected system+user messages, got %+v", got.Messages)
		}

		resp := openAIResponse{
			ID: "test-id",
			Choices: []openAIChoice{
				{
					Message:      openAIMessage{Role: "assistant", Content: "Hello from OpenAI mock!"},
					FinishReason: "stop",
				},
			},
			Usage: &openAIUsage{
				PromptTokens:     15,
				CompletionTokens: 25,
				TotalTokens:      40,
			},
			Model: "gpt-4o-mini",
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := testProvider(server.URL)

	resp, err := p.Complete(context.Background(), &provider.Request{
		Model:        "gpt-4o-mini",
		Prompt:       "hi",
		SystemPrompt: "be brief",
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.Text != "Hello from OpenAI mock!" {
		t.Errorf("Expected 'Hello from OpenAI mock!', got %s", resp.Text)
	}
	if resp.Usage.PromptTokens != 15 {
		t.Errorf("Expected 15 prompt tokens, got %d", resp.Usage.PromptTokens)
	}
	if resp.Usage.CompletionTokens != 25 {
		t.Errorf("Expected 25 completion tokens, got %d", resp.Usage.CompletionTokens)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("Expected finish reason stop, got %s", resp.FinishReason)
	}
}

func TestComplete_CachedTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"id": "x",
			"model": "gpt-4o",
			"choices": [{"message": {"role": "assistant", "content": "hi"}}],
			"usage": {
				"prompt_tokens": 100,
				"completion_tokens": 5,
				"total_tokens": 105,
				"prompt_tokens_details": {"cached_tokens": 80}
			}
		}`)
	}))
	defer server.Close()

	resp, err := testProvider(server.URL).Complete(context.Background(), &provider.Request{Model: "gpt-4o", Prompt: "hi"})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Usage.CachedTokens != 80 {
		t.Errorf("Expected 80 cached tokens, got %d", resp.Usage.CachedTokens)
	}
}

func TestComplete_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "rate limited"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := testProvider(server.URL).Complete(context.Background(), &provider.Request{Model: "gpt-4o", Prompt: "hi"})
	var pe *provider.Error
	if !errors.As(err, &pe) {
		t.Fatalf("Expected typed provider error, got %v", err)
	}
	if pe.Code != provider.CodeRateLimited || pe.Status != http.StatusTooManyRequests {
		t.Errorf("Expected rate_limited/429, got %s/%d", pe.Code, pe.Status)
	}
}

func TestComplete_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": "x", "model": "gpt-4o", "choices": []}`)
	}))
	defer server.Close()

	_, err := testProvider(server.URL).Complete(context.Background(), &provider.Request{Model: "gpt-4o", Prompt: "hi"})
	var pe *provider.Error
	if !errors.As(err, &pe) || pe.Code != provider.CodeNoChoice {
		t.Errorf("Expected no_choice error, got %v", err)
	}
}

func TestCompleteStream_Mock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var got openAIRequest
		json.NewDecoder(r.Body).Decode(&got)
		if !got.Stream || got.StreamOptions == nil || !got.StreamOptions.IncludeUsage {
			t.Errorf("Expected stream with include_usage, got %+v", got)
		}

		w.Header().Set("Content-Type", "text/event-stream")

		chunks := []string{"Hello", " from", " OpenAI", "!"}
		for _, chunk := range chunks {
			resp := openAIResponse{
				Choices: []openAIChoice{{Delta: openAIDelta{Content: chunk}}},
			}
			data, _ := json.Marshal(resp)
			fmt.Fprintf(w, "data: %s\n\n", string(data))
		}
		// Terminal usage-only chunk, then [DONE].
		fmt.Fprintf(w, "data: %s\n\n", `{"choices": [], "usage": {"prompt_tokens": 3, "completion_tokens": 4, "total_tokens": 7}}`)
		fmt.Fprintf(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	ch, err := testProvider(server.URL).CompleteStream(context.Background(), &provider.Request{
		Model:  "gpt-4o-mini",
		Prompt: "hi",
	})
	if err != nil {
		t.Fatalf("CompleteStream failed: %v", err)
	}

	var content string
	var usage *provider.TokenUsage
	done := false
	for c := range ch {
		if c.Err != nil {
			t.Fatalf("Unexpected chunk error: %v", c.Err)
		}
		content += c.Delta
		if c.Usage != nil {
			usage = c.Usage
		}
		if c.Done {
			done = true
		}
	}

	if content != "Hello from OpenAI!" {
		t.Errorf("Expected 'Hello from OpenAI!', got %q", content)
	}
	if !done {
		t.Errorf("Expected a terminal Done chunk")
	}
	if usage == nil || usage.TotalTokens != 7 {
		t.Errorf("Expected usage from terminal chunk, got %+v", usage)
	}
}

func TestCompleteStream_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	ch, err := testProvider(server.URL).CompleteStream(context.Background(), &provider.Request{Model: "gpt-4o", Prompt: "hi"})
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
