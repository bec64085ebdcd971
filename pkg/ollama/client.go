// Package ollama talks to an Ollama server and adapts it into a refinement
// collaborator.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jmylchreest/qguard/pkg/httputil"
)

// Defaults for a local Ollama install.
const (
	DefaultURL     = "http://localhost:11434"
	DefaultModel   = "codellama:7b"
	DefaultTimeout = 2 * time.Minute
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Config selects the server and model.
type Config struct {
	URL         string        `koanf:"url"`
	Model       string        `koanf:"model"`
	Temperature float64       `koanf:"temperature"`
	Timeout     time.Duration `koanf:"timeout"`
	MaxRetries  int           `koanf:"max_retries"`
}

// Client calls the Ollama HTTP API.
type Client struct {
	http        *httputil.Client
	baseURL     string
	model       string
	temperature float64
	log         *zap.Logger
}

// New returns a Client. Zero Config fields take the package defaults; a
// negative MaxRetries disables retries.
func New(cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	retries := cfg.MaxRetries
	switch {
	case retries == 0:
		retries = httputil.DefaultMaxRetries
	case retries < 0:
		retries = 0
	}

	return &Client{
		http: httputil.NewClient(
			httputil.WithHTTPTimeout(cfg.Timeout),
			httputil.WithMaxRetries(retries),
			httputil.WithLogger(log),
		),
		baseURL:     strings.TrimRight(cfg.URL, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		log:         log,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options *generateOption `json:"options,omitempty"`
}

type generateOption struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate sends a single non-streaming completion request.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	req := generateRequest{Model: c.model, Prompt: prompt}
	if c.temperature > 0 {
		req.Options = &generateOption{Temperature: c.temperature}
	}

	start := time.Now()
	var resp generateResponse
	if err := c.http.PostJSON(ctx, c.baseURL+"/api/generate", req, &resp); err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	c.log.Debug("generation complete",
		zap.String("model", c.model),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("chars", len(resp.Response)))

	if strings.TrimSpace(resp.Response) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Response, nil
}

// Ping checks that the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ollama ping: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama ping: %w", &httputil.StatusError{StatusCode: resp.StatusCode})
	}
	return nil
}
