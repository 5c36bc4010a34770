package compat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vnmchuo/llm-exec/internal/provider"
)

func testProvider(name, url string) *CompatProvider {
	return &CompatProvider{
		name:    name,
		apiKey:  "test-key",
		baseURL: url,
		models:  []string{"test-model"},
		client:  http.DefaultClient,
	}
}

func TestComplete_Mock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected bearer auth, got %q", r.Header.Get("Authorization"))
		}

		resp := wireResponse{
			ID:    "cmpl-1",
			Model: "test-model",
			Choices: []wireChoice{
				{Message: wireMessage{Role: "assistant", Content: "Hello from compat mock!"}, FinishReason: "stop"},
			},
			Usage: &wireUsage{PromptTokens: 8, CompletionTokens: 16, TotalTokens: 24},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	resp, err := testProvider("mistral", server.URL).Complete(context.Background(), &provider.Request{
		Model: "test-model", Prompt: "hi",
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.Text != "Hello from compat mock!" {
		t.Errorf("Expected 'Hello from compat mock!', got %q", resp.Text)
	}
	if resp.Provider != "mistral" {
		t.Errorf("Expected provider mistral, got %q", resp.Provider)
	}
	if resp.Usage.TotalTokens != 24 {
		t.Errorf("Expected 24 total tokens, got %d", resp.Usage.TotalTokens)
	}
}

func TestComplete_PerplexityCitations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"id": "x",
			"model": "sonar-pro",
			"choices": [{"message": {"role": "assistant", "content": "answer"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30},
			"citations": ["https://a.example", "https://b.example", "https://c.example"]
		}`)
	}))
	defer server.Close()

	resp, err := testProvider("perplexity", server.URL).Complete(context.Background(), &provider.Request{
		Model: "sonar-pro", Prompt: "hi",
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Usage.LiveSearchSources != 3 {
		t.Errorf("Expected 3 search sources from citations, got %d", resp.Usage.LiveSearchSources)
	}
}

func TestComplete_NumSearchQueriesWins(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"id": "x",
			"model": "sonar-pro",
			"choices": [{"message": {"role": "assistant", "content": "answer"}}],
			"usage": {"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2, "num_search_queries": 5},
			"citations": ["https://a.example"]
		}`)
	}))
	defer server.Close()

	resp, err := testProvider("perplexity", server.URL).Complete(context.Background(), &provider.Request{
		Model: "sonar-pro", Prompt: "hi",
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Usage.LiveSearchSources != 5 {
		t.Errorf("Expected num_search_queries to take precedence, got %d", resp.Usage.LiveSearchSources)
	}
}

func TestCompleteStream_Mock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range []string{"Hello", " compat!"} {
			resp := wireResponse{Choices: []wireChoice{{Delta: wireMessage{Content: chunk}}}}
			data, _ := json.Marshal(resp)
			fmt.Fprintf(w, "data: %s\n\n", data)
		}
		fmt.Fprintf(w, "data: %s\n\n", `{"choices": [{"delta": {}, "finish_reason": "stop"}], "usage": {"prompt_tokens": 2, "completion_tokens": 2, "total_tokens": 4}}`)
		fmt.Fprintf(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	ch, err := testProvider("groq", server.URL).CompleteStream(context.Background(), &provider.Request{
		Model: "test-model", Prompt: "hi",
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

	if content != "Hello compat!" {
		t.Errorf("Expected 'Hello compat!', got %q", content)
	}
	if !done {
		t.Errorf("Expected terminal Done chunk")
	}
	if usage == nil || usage.TotalTokens != 4 {
		t.Errorf("Expected usage from final chunk, got %+v", usage)
	}
}
