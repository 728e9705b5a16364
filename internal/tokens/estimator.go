// Package tokens estimates prompt sizes with tiktoken where an encoding is
// known, falling back to a character heuristic otherwise. Counts here are for
// budget logging; the authoritative usage numbers come from provider done
// chunks.
package tokens

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/ponderlabs/ponder/internal/domain"
)

// charsPerToken is the fallback ratio for models without a known encoding.
const charsPerToken = 4

// Per-message overhead for chat models: 3 tokens of structure plus 1 for the
// role, with 3 tokens of assistant priming at the end.
const (
	tokensPerMessage = 3
	tokensPerRole    = 1
	assistantPriming = 3
)

// Estimator counts tokens. Codecs are cached by encoding since construction
// loads the full vocabulary.
type Estimator struct {
	mu     sync.RWMutex
	codecs map[tokenizer.Encoding]tokenizer.Codec
}

// NewEstimator creates an Estimator.
func NewEstimator() *Estimator {
	return &Estimator{codecs: make(map[tokenizer.Encoding]tokenizer.Codec)}
}

// modelEncoding maps a model name to its tiktoken encoding. Anthropic and
// other non-OpenAI vocabularies are approximated with O200kBase, which is
// also the likeliest encoding for unknown future models.
func modelEncoding(model string) tokenizer.Encoding {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "gpt-5"),
		strings.HasPrefix(m, "gpt-4.1"), strings.HasPrefix(m, "gpt-41"),
		strings.HasPrefix(m, "gpt-4o"),
		strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return tokenizer.O200kBase
	case strings.HasPrefix(m, "gpt-4"), strings.HasPrefix(m, "gpt-3.5"):
		return tokenizer.Cl100kBase
	default:
		return tokenizer.O200kBase
	}
}

func (e *Estimator) codec(model string) (tokenizer.Codec, error) {
	encoding := modelEncoding(model)

	e.mu.RLock()
	if c, ok := e.codecs[encoding]; ok {
		e.mu.RUnlock()
		return c, nil
	}
	e.mu.RUnlock()

	c, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.codecs[encoding] = c
	e.mu.Unlock()
	return c, nil
}

// CountText counts tokens in a plain string, degrading to the character
// heuristic if no codec is available.
func (e *Estimator) CountText(model, text string) int {
	c, err := e.codec(model)
	if err != nil {
		return len(text) / charsPerToken
	}
	ids, _, err := c.Encode(text)
	if err != nil {
		return len(text) / charsPerToken
	}
	return len(ids)
}

// EstimateMessages approximates the prompt token count of a full request:
// system prompts, conversation, tool calls, and tool definitions.
func (e *Estimator) EstimateMessages(opts *domain.ChatOptions) int {
	total := 0

	for _, sp := range opts.SystemPrompts {
		total += tokensPerMessage + tokensPerRole
		total += e.CountText(opts.Model, sp)
	}

	for _, msg := range opts.Messages {
		total += tokensPerMessage + tokensPerRole
		total += e.CountText(opts.Model, msg.Content)
		for _, tc := range msg.ToolCalls {
			total += e.CountText(opts.Model, tc.Name)
			total += e.CountText(opts.Model, tc.Arguments)
			total += 3
		}
	}

	for _, tool := range opts.Tools {
		total += e.CountText(opts.Model, tool.Name)
		total += e.CountText(opts.Model, tool.Description)
		if tool.InputSchema != nil {
			if raw, err := json.Marshal(tool.InputSchema); err == nil {
				total += e.CountText(opts.Model, string(raw))
			}
		}
		total += 7
	}

	return total + assistantPriming
}
