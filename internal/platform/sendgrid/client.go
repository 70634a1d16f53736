package sendgrid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/inkwell-backend/internal/platform/ctxutil"
	"github.com/yungbote/inkwell-backend/internal/platform/envutil"
	"github.com/yungbote/inkwell-backend/internal/platform/httpx"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

const (
	defaultBaseURL = "https://api.sendgrid.com"
	mailSendPath   = "/v3/mail/send"
)

type Client interface {
	Send(ctx context.Context, req SendEmailRequest) (*SendEmailResult, error)
}

type Config struct {
	APIKey           string
	BaseURL          string
	DefaultFromEmail string
	DefaultFromName  string
	Timeout          time.Duration
	MaxRetries       int
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:           envutil.String("SENDGRID_API_KEY", ""),
		BaseURL:          envutil.String("SENDGRID_BASE_URL", defaultBaseURL),
		DefaultFromEmail: envutil.String("SENDGRID_FROM_EMAIL", ""),
		DefaultFromName:  envutil.String("SENDGRID_FROM_NAME", "Inkwell"),
		Timeout:          envutil.Duration("SENDGRID_TIMEOUT_SECONDS", 30*time.Second),
		MaxRetries:       envutil.Int("SENDGRID_MAX_RETRIES", 3),
	}
}

func NewFromEnv(log *logger.Logger) (Client, error) {
	return New(log, ConfigFromEnv())
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, errors.New("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("missing SENDGRID_API_KEY")
	}
	if cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.MaxRetries = max(cfg.MaxRetries, 0)
	return &client{
		log:  log.With("client", "SendGridClient"),
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type client struct {
	log  *logger.Logger
	cfg  Config
	http *http.Client
}

type EmailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// SendEmailRequest is one message. From falls back to the configured sender;
// at least one of Text and HTML is required.
type SendEmailRequest struct {
	From       EmailAddress
	To         []EmailAddress
	Subject    string
	Text       string
	HTML       string
	Categories []string
}

type SendEmailResult struct {
	StatusCode int
	MessageID  string
}

type mailSendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             EmailAddress      `json:"from"`
	Subject          string            `json:"subject"`
	Content          []mailContent     `json:"content"`
	Categories       []string          `json:"categories,omitempty"`
}

type personalization struct {
	To []EmailAddress `json:"to"`
}

type mailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (c *client) build(req SendEmailRequest) (*mailSendRequest, error) {
	from := req.From
	if strings.TrimSpace(from.Email) == "" {
		from = EmailAddress{Email: c.cfg.DefaultFromEmail, Name: c.cfg.DefaultFromName}
	}
	subject := strings.TrimSpace(req.Subject)
	switch {
	case strings.TrimSpace(from.Email) == "":
		return nil, errors.New("sendgrid: sender required (set SENDGRID_FROM_EMAIL)")
	case len(req.To) == 0:
		return nil, errors.New("sendgrid: recipient required")
	case subject == "":
		return nil, errors.New("sendgrid: subject required")
	}

	var content []mailContent
	for _, part := range []mailContent{{"text/plain", req.Text}, {"text/html", req.HTML}} {
		if v := strings.TrimSpace(part.Value); v != "" {
			content = append(content, mailContent{Type: part.Type, Value: v})
		}
	}
	if len(content) == 0 {
		return nil, errors.New("sendgrid: text or html body required")
	}
	return &mailSendRequest{
		Personalizations: []personalization{{To: req.To}},
		From:             from,
		Subject:          subject,
		Content:          content,
		Categories:       req.Categories,
	}, nil
}

func (c *client) Send(ctx context.Context, req SendEmailRequest) (*SendEmailResult, error) {
	wire, err := c.build(req)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(wire)
	if err != nil {
		return nil, err
	}
	ctx = ctxutil.Default(ctx)

	var resp *http.Response
	err = httpx.Retry(ctx, httpx.Backoff{
		MaxRetries: c.cfg.MaxRetries,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			c.log.Warn("SendGrid request retrying", "attempt", attempt, "sleep", wait.String(), "error", err.Error())
		},
	}, func() (*http.Response, error) {
		var err error
		resp, err = c.post(ctx, payload)
		return resp, err
	})
	if err != nil {
		return nil, fmt.Errorf("sendgrid send: %w", err)
	}
	return &SendEmailResult{
		StatusCode: resp.StatusCode,
		MessageID:  strings.TrimSpace(resp.Header.Get("X-Message-Id")),
	}, nil
}

func (c *client) post(ctx context.Context, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+mailSendPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	_, err = httpx.ReadBody("sendgrid", resp)
	return resp, err
}
