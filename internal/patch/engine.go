package patch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ponderlabs/ponder/internal/domain"
)

const detectionMaxTokens = 500

// Detector issues the non-streaming classification call. It reuses the
// OpenAI-compatible completion shape regardless of the main model's family.
type Detector struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) DetectorOption {
	return func(d *Detector) { d.httpClient = httpClient }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) DetectorOption {
	return func(d *Detector) { d.logger = logger }
}

// NewDetector creates a Detector.
func NewDetector(opts ...DetectorOption) *Detector {
	d := &Detector{
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type detectionRequest struct {
	Model       string             `json:"model"`
	Messages    []detectionMessage `json:"messages"`
	Temperature float32            `json:"temperature"`
	MaxTokens   int                `json:"max_tokens"`
}

type detectionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type detectionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Detect runs one zero-temperature completion and returns the raw reply
// text. HTTP failures surface as a ProviderError.
func (d *Detector) Detect(ctx context.Context, prompt, apiKey, baseURL, model string) (string, error) {
	body, err := json.Marshal(detectionRequest{
		Model:       DetectionModel(model),
		Messages:    []detectionMessage{{Role: "user", Content: prompt}},
		Temperature: 0,
		MaxTokens:   detectionMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal detection request: %w", err)
	}

	url := strings.TrimSuffix(baseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create detection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("detection request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read detection response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &domain.ProviderError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var parsed detectionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal detection response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "[]", nil
	}
	return parsed.Choices[0].Message.Content, nil
}

// TokenCounter estimates token counts for budget logging.
type TokenCounter interface {
	CountText(model, text string) int
}

// Engine orchestrates the pipeline: classify the user's last message against
// the loaded triggers, then splice matched content into the system prompt.
type Engine struct {
	patches  []Patch
	detector *Detector
	counter  TokenCounter
	logger   *slog.Logger
}

// NewEngine creates an Engine over an already-loaded patch set. counter may
// be nil; injection sizes are then not logged.
func NewEngine(patches []Patch, detector *Detector, counter TokenCounter, logger *slog.Logger) *Engine {
	return &Engine{
		patches:  patches,
		detector: detector,
		counter:  counter,
		logger:   logger,
	}
}

// Credentials identifies the provider endpoint the classification call runs
// against.
type Credentials struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Apply classifies userMessage and returns basePrompt with any matched patch
// content appended. A failed or malformed classification degrades to the
// unmodified base prompt; it never blocks the main call.
func (e *Engine) Apply(ctx context.Context, basePrompt, userMessage string, creds Credentials) string {
	if len(e.patches) == 0 || userMessage == "" {
		return basePrompt
	}

	prompt := BuildDetectionPrompt(e.patches, userMessage)
	response, err := e.detector.Detect(ctx, prompt, creds.APIKey, creds.BaseURL, creds.Model)
	if err != nil {
		e.logger.Warn("patch detection failed", slog.String("error", err.Error()))
		return basePrompt
	}

	matches := ParseDetectionResponse(response)
	e.logMatches(matches)

	injection := BuildInjectionContent(e.patches, matches)
	if injection == "" {
		return basePrompt
	}
	if e.counter != nil {
		e.logger.Debug("patch injection size",
			slog.Int("tokens", e.counter.CountText(creds.Model, injection)))
	}
	return basePrompt + injection
}

// logMatches records hits only; silence on no match.
func (e *Engine) logMatches(matches []MatchResult) {
	if len(matches) == 0 {
		return
	}
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.PatchID
	}
	e.logger.Info("patches matched", slog.String("patches", strings.Join(ids, ", ")))
}
