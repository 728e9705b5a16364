// Package adapter selects and configures provider adapters. The per-family
// configuration tables live here so adding a provider is a data change, not a
// code change in the adapters themselves.
package adapter

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/ponderlabs/ponder/internal/adapter/anthropic"
	"github.com/ponderlabs/ponder/internal/adapter/openai"
	"github.com/ponderlabs/ponder/internal/domain"
)

// Family identifies a provider wire protocol.
type Family string

const (
	FamilyOpenAI    Family = "openai"
	FamilyAnthropic Family = "anthropic"
)

// DetectFamily picks the wire protocol for a model identifier. Anything not
// recognizably Anthropic speaks the OpenAI-compatible Chat Completions
// protocol, which is the lingua franca of aggregator providers.
func DetectFamily(model string) Family {
	m := strings.ToLower(model)
	if strings.Contains(m, "claude") || strings.HasPrefix(m, "anthropic/") {
		return FamilyAnthropic
	}
	return FamilyOpenAI
}

// reasoningFields maps a model-name prefix to the wire field its provider
// family uses for reasoning deltas on Chat Completions streams. There is no
// standard; providers picked different names.
var reasoningFields = map[string][]string{
	"deepseek": {"reasoning_content"},
	"qwen":     {"reasoning_content"},
	"glm":      {"reasoning_content"},
	"kimi":     {"reasoning_content"},
}

// defaultReasoningFields is the ordered candidate list for providers not in
// the table.
var defaultReasoningFields = []string{"reasoning_content", "thinking", "thinking_content"}

// ReasoningFieldsFor returns the reasoning delta field names to consult, in
// priority order, for the given model.
func ReasoningFieldsFor(model string) []string {
	m := strings.ToLower(model)
	for prefix, fields := range reasoningFields {
		if strings.HasPrefix(m, prefix) {
			return fields
		}
	}
	return defaultReasoningFields
}

// Config carries the per-request provider settings.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// New constructs the adapter for a model identifier.
func New(model string, cfg Config) domain.Adapter {
	switch DetectFamily(model) {
	case FamilyAnthropic:
		var opts []anthropic.Option
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		if cfg.HTTPClient != nil {
			opts = append(opts, anthropic.WithHTTPClient(cfg.HTTPClient))
		}
		if cfg.Logger != nil {
			opts = append(opts, anthropic.WithLogger(cfg.Logger))
		}
		return anthropic.New(cfg.APIKey, opts...)
	default:
		opts := []openai.Option{openai.WithReasoningFields(ReasoningFieldsFor(model))}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.HTTPClient != nil {
			opts = append(opts, openai.WithHTTPClient(cfg.HTTPClient))
		}
		if cfg.Logger != nil {
			opts = append(opts, openai.WithLogger(cfg.Logger))
		}
		return openai.New(cfg.APIKey, opts...)
	}
}
