// Package compat is a provider binding for OpenAI-compatible endpoints
// (Mistral, Groq, Perplexity, self-hosted routers). The provider name,
// base URL and model list are configuration.
package compat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vnmchuo/llm-exec/internal/provider"
)

type CompatProvider struct {
	name    string
	apiKey  string
	baseURL string
	models  []string
	client  *http.Client
}

// New creates a binding named name against an OpenAI-compatible baseURL
// (without the trailing /chat/completions).
func New(name, apiKey, baseURL string, models []string) provider.Provider {
	return &CompatProvider{
		name:    name,
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		models:  models,
		client:  http.DefaultClient,
	}
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	TopP        float64       `json:"top_p,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireResponse struct {
	ID        string       `json:"id"`
	Model     string       `json:"model"`
	Choices   []wireChoice `json:"choices"`
	Usage     *wireUsage   `json:"usage"`
	Citations []string     `json:"citations"` // Perplexity-style search sources
}

type wireChoice struct {
	Message      wireMessage `json:"message"`
	Delta        wireMessage `json:"delta"`
	FinishReason string      `json:"finish_reason"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	NumSearchQueries int `json:"num_search_queries"`
}

func (r *wireResponse) toTokenUsage() *provider.TokenUsage {
	if r.Usage == nil {
		return nil
	}
	u := provider.TokenUsage{
		PromptTokens:     r.Usage.PromptTokens,
		CompletionTokens: r.Usage.CompletionTokens,
		TotalTokens:      r.Usage.TotalTokens,
	}
	if r.Usage.NumSearchQueries > 0 {
		u.LiveSearchSources = r.Usage.NumSearchQueries
	} else if len(r.Citations) > 0 {
		u.LiveSearchSources = len(r.Citations)
	}
	return &u
}

func (p *CompatProvider) mapRequest(req *provider.Request) wireRequest {
	var messages []wireMessage
	if req.SystemPrompt != "" {
		messages = append(messages, wireMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, wireMessage{Role: "user", Content: req.Prompt})
	return wireRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      req.Stream,
	}
}

func (p *CompatProvider) post(ctx context.Context, body []byte) (*http.Response, error) {
	url := fmt.Sprintf("%s/chat/completions", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.apiKey))

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, provider.TransportError(p.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, provider.FromStatus(p.name, resp.StatusCode, string(respBody))
	}
	return resp, nil
}

func (p *CompatProvider) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	body, err := json.Marshal(p.mapRequest(req))
	if err != nil {
		return nil, err
	}

	resp, err := p.post(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, provider.TransportError(p.name, err)
	}
	if len(wire.Choices) == 0 {
		return nil, provider.NoChoiceError(p.name)
	}

	out := &provider.Response{
		ID:           wire.ID,
		Text:         wire.Choices[0].Message.Content,
		Model:        wire.Model,
		Provider:     p.name,
		FinishReason: wire.Choices[0].FinishReason,
	}
	if u := wire.toTokenUsage(); u != nil {
		out.Usage = *u
	}
	return out, nil
}

func (p *CompatProvider) CompleteStream(ctx context.Context, req *provider.Request) (<-chan *provider.Chunk, error) {
	wireReq := p.mapRequest(req)
	wireReq.Stream = true
	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, err
	}

	ch := make(chan *provider.Chunk)

	go func() {
		defer close(ch)

		resp, err := p.post(ctx, body)
		if err != nil {
			emit(ctx, ch, &provider.Chunk{Err: err})
			return
		}
		defer resp.Body.Close()

		var usage *provider.TokenUsage
		finish := ""

		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					emit(ctx, ch, &provider.Chunk{Done: true, FinishReason: finish, Usage: usage})
				} else {
					emit(ctx, ch, &provider.Chunk{Err: provider.TransportError(p.name, err)})
				}
				return
			}

			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				emit(ctx, ch, &provider.Chunk{Done: true, FinishReason: finish, Usage: usage})
				return
			}

			var wire wireResponse
			if err := json.Unmarshal([]byte(data), &wire); err != nil {
				continue
			}

			if u := wire.toTokenUsage(); u != nil {
				usage = u
			}
			if len(wire.Choices) > 0 {
				if fr := wire.Choices[0].FinishReason; fr != "" {
					finish = fr
				}
				if content := wire.Choices[0].Delta.Content; content != "" {
					if !emit(ctx, ch, &provider.Chunk{Delta: content}) {
						return
					}
				}
			}
		}
	}()

	return ch, nil
}

func emit(ctx context.Context, ch chan<- *provider.Chunk, c *provider.Chunk) bool {
	select {
	case ch <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *CompatProvider) Name() string { return p.name }

func (p *CompatProvider) SupportedModels() []string { return p.models }
