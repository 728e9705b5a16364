package api

import "github.com/ponderlabs/ponder/internal/domain"

// Settings are per-request overrides of the server's provider defaults.
type Settings struct {
	BaseURL string `json:"baseURL,omitempty" validate:"omitempty,url"`
	APIKey  string `json:"apiKey,omitempty"`
	Model   string `json:"model,omitempty"`
}

// ChatRequest is the inbound chat contract: the full conversation plus
// optional overrides. SessionID correlates thinking history across turns; an
// empty one starts a fresh session.
type ChatRequest struct {
	SessionID string           `json:"sessionId,omitempty"`
	Messages  []domain.Message `json:"messages" validate:"required,min=1,dive"`
	Settings  *Settings        `json:"settings,omitempty"`
}
