package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Provider produces suggestions for a completed turn. Implementations must
// respect ctx and return promptly on cancellation; callers never retry.
type Provider interface {
	Suggest(ctx context.Context, turnText string, toolCtx []ToolResult) (*Content, error)
}

type HTTPConfig struct {
	// required
	URL string

	Timeout time.Duration // per-call deadline (default: 10s)

	// Custom HTTP client (for testing or special configs)
	HTTPClient *http.Client
}

// HTTPProvider calls an external enrichment endpoint.
type HTTPProvider struct {
	cfg        HTTPConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPProvider builds a provider. The call carries its own bounded
// timeout so a stuck enrichment backend can never hold a response open.
func NewHTTPProvider(cfg HTTPConfig, logger *zap.Logger) (*HTTPProvider, error) {
	if cfg.URL == "" {
		return nil, errors.New("suggest: URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &HTTPProvider{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.Named("suggest"),
	}, nil
}

type enrichRequest struct {
	Text        string       `json:"text"`
	ToolContext []ToolResult `json:"toolContext,omitempty"`
}

func (p *HTTPProvider) Suggest(parentCtx context.Context, turnText string, toolCtx []ToolResult) (*Content, error) {
	ctx, cancel := context.WithTimeout(parentCtx, p.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(enrichRequest{Text: turnText, ToolContext: toolCtx})
	if err != nil {
		return nil, fmt.Errorf("suggest: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("suggest: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("suggest: call enrichment endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("suggest: enrichment endpoint returned %d: %s", resp.StatusCode, raw)
	}

	var content Content
	if err := json.NewDecoder(resp.Body).Decode(&content); err != nil {
		return nil, fmt.Errorf("suggest: decode enrichment response: %w", err)
	}

	// The provider's own classification wins; fill in locally only when it
	// left the field empty.
	if content.QuestionType == "" {
		content.QuestionType = ClassifyQuestion(turnText)
	}

	p.logger.Debug("enrichment completed",
		zap.Int("suggestions", len(content.Suggestions)),
		zap.String("question_type", content.QuestionType),
		zap.Duration("duration", time.Since(start)),
	)

	return &content, nil
}
