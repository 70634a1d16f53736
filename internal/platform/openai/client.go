package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/inkwell-backend/internal/observability"
	"github.com/yungbote/inkwell-backend/internal/platform/ctxutil"
	"github.com/yungbote/inkwell-backend/internal/platform/envutil"
	"github.com/yungbote/inkwell-backend/internal/platform/httpx"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

// Client is the subset of the OpenAI HTTP API the content tools use.
type Client interface {
	GenerateText(ctx context.Context, req TextRequest) (TextResult, error)
	GenerateImage(ctx context.Context, req ImageRequest) (ImageResult, error)
	EditImage(ctx context.Context, req ImageEditRequest) (ImageResult, error)
}

type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	ImageModel string
	ImageSize  string
	Timeout    time.Duration
	MaxRetries int
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:     envutil.String("OPENAI_API_KEY", ""),
		BaseURL:    envutil.String("OPENAI_BASE_URL", "https://api.openai.com"),
		Model:      envutil.String("OPENAI_MODEL", "gpt-4.1-mini"),
		ImageModel: envutil.String("OPENAI_IMAGE_MODEL", "gpt-image-1"),
		ImageSize:  envutil.String("OPENAI_IMAGE_SIZE", "1024x1024"),
		Timeout:    envutil.Duration("OPENAI_TIMEOUT_SECONDS", 180*time.Second),
		MaxRetries: envutil.Int("OPENAI_MAX_RETRIES", 3),
	}
}

func NewFromEnv(log *logger.Logger) (Client, error) {
	return New(log, ConfigFromEnv())
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if strings.TrimSpace(cfg.ImageSize) == "" {
		cfg.ImageSize = "1024x1024"
	}
	return &client{
		log:        log.With("client", "OpenAIClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

// HTTPError is a non-2xx OpenAI reply.
type HTTPError = httpx.StatusError

// request is one upstream call. build is re-invoked per attempt so bodies
// backed by readers can be replayed.
type request struct {
	method      string
	path        string
	model       string
	contentType string
	build       func() (io.Reader, error)
}

func jsonRequest(method, path, model string, body any) request {
	return request{
		method:      method,
		path:        path,
		model:       model,
		contentType: "application/json",
		build: func() (io.Reader, error) {
			var buf bytes.Buffer
			if err := json.NewEncoder(&buf).Encode(body); err != nil {
				return nil, err
			}
			return &buf, nil
		},
	}
}

func (c *client) do(ctx context.Context, r request, out any) error {
	ctx = ctxutil.Default(ctx)
	start := time.Now()
	metrics := observability.Current()

	var raw []byte
	err := httpx.Retry(ctx, httpx.Backoff{
		MaxRetries: c.cfg.MaxRetries,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			c.log.Warn("OpenAI request retrying",
				"path", r.path,
				"attempt", attempt,
				"max_retries", c.cfg.MaxRetries,
				"sleep", wait.String(),
				"error", err.Error(),
			)
		},
	}, func() (*http.Response, error) {
		resp, body, err := c.doOnce(ctx, r)
		raw = body
		return resp, err
	})
	if err != nil {
		metrics.ObserveLLMRequest(r.model, r.path, statusLabel(err), time.Since(start), 0, 0)
		return err
	}
	in, outTokens := usageFromRaw(raw)
	metrics.ObserveLLMRequest(r.model, r.path, "ok", time.Since(start), in, outTokens)
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("openai decode: %w", err)
	}
	return nil
}

func (c *client) doOnce(ctx context.Context, r request) (*http.Response, []byte, error) {
	body, err := r.build()
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.cfg.BaseURL+r.path, body)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", r.contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, err := httpx.ReadBody("openai", resp)
	return resp, raw, err
}

func statusLabel(err error) string {
	var he *HTTPError
	if errors.As(err, &he) {
		return fmt.Sprintf("%d", he.StatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}

func usageFromRaw(raw []byte) (int, int) {
	var u struct {
		Usage struct {
			InputTokens      int `json:"input_tokens"`
			OutputTokens     int `json:"output_tokens"`
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &u) != nil {
		return 0, 0
	}
	in, out := u.Usage.InputTokens, u.Usage.OutputTokens
	if in == 0 {
		in = u.Usage.PromptTokens
	}
	if out == 0 {
		out = u.Usage.CompletionTokens
	}
	return in, out
}
