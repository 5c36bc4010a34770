// Package stream normalizes provider chunk sequences into a live token
// callback stream plus one aggregated response.
package stream

import (
	"context"
	"fmt"
	"strings"

	"github.com/vnmchuo/llm-exec/internal/provider"
)

// CharsPerToken is the average characters-per-token constant used when a
// provider never reports usage. It is an approximation; estimated counts
// are marked as such on the usage struct.
const CharsPerToken = 4

// Estimate derives token counts from text length. Counts round up so any
// non-empty text is at least one token.
func Estimate(prompt, completion string) provider.TokenUsage {
	p := (len(prompt) + CharsPerToken - 1) / CharsPerToken
	c := (len(completion) + CharsPerToken - 1) / CharsPerToken
	return provider.TokenUsage{
		PromptTokens:     p,
		CompletionTokens: c,
		TotalTokens:      p + c,
		Estimated:        true,
	}
}

// Collect consumes chunks until the sequence completes, invoking onToken
// once per text delta in arrival order. Text deltas concatenate into the
// final response; the last-seen finish reason and usage win. A chunk error,
// a callback error or context cancellation aborts the call — no partial
// response is fabricated.
func Collect(ctx context.Context, prompt string, ch <-chan *provider.Chunk, onToken func(delta string) error) (*provider.Response, error) {
	var text strings.Builder
	var usage *provider.TokenUsage
	finish := ""

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case c, ok := <-ch:
			if !ok {
				return finalize(prompt, text.String(), finish, usage), nil
			}
			if c.Err != nil {
				return nil, c.Err
			}
			if c.Usage != nil {
				usage = c.Usage
			}
			if c.FinishReason != "" {
				finish = c.FinishReason
			}
			if c.Delta != "" {
				if onToken != nil {
					if err := onToken(c.Delta); err != nil {
						return nil, fmt.Errorf("token callback: %w", err)
					}
				}
				text.WriteString(c.Delta)
			}
			if c.Done {
				return finalize(prompt, text.String(), finish, usage), nil
			}
		}
	}
}

func finalize(prompt, text, finish string, usage *provider.TokenUsage) *provider.Response {
	resp := &provider.Response{Text: text, FinishReason: finish}
	if usage != nil {
		resp.Usage = *usage
	} else {
		resp.Usage = Estimate(prompt, text)
	}
	return resp
}
