package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPStatusCoder is implemented by errors that carry an upstream status.
type HTTPStatusCoder interface {
	HTTPStatusCode() int
}

// StatusError is a non-2xx upstream reply. Service prefixes the message.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	switch {
	case body == "":
		body = "<empty body>"
	case len(body) > 2000:
		body = body[:2000] + "..."
	}
	return fmt.Sprintf("%s http %d: %s", e.Service, e.StatusCode, body)
}

func (e *StatusError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// ReadBody drains and closes resp.Body. A non-2xx status comes back as a
// *StatusError alongside the raw body.
func ReadBody(service string, resp *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return raw, &StatusError{Service: service, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}

func IsRetryableHTTPStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	case code >= 500 && code <= 599:
		return true
	}
	return false
}

// IsRetryableError treats deadlines, network timeouts and retryable statuses
// as transient. Cancellation never is.
func IsRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if netErr := net.Error(nil); errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if sc := HTTPStatusCoder(nil); errors.As(err, &sc) {
		return IsRetryableHTTPStatus(sc.HTTPStatusCode())
	}
	return false
}

// RetryAfterDuration honors a numeric Retry-After header, capped at max.
func RetryAfterDuration(resp *http.Response, fallback, max time.Duration) time.Duration {
	wait := fallback
	if resp != nil {
		secs, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After")))
		if err == nil && secs > 0 {
			wait = time.Duration(secs) * time.Second
		}
	}
	if max > 0 && wait > max {
		return max
	}
	return wait
}

// JitterSleep spreads base by +/-20%.
func JitterSleep(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	spread := float64(base) * 0.4
	return time.Duration(float64(base) - spread/2 + rand.Float64()*spread)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Backoff drives Retry. Zero Base and Cap mean one second and ten seconds.
// OnRetry runs before each wait with attempt counting from 1.
type Backoff struct {
	MaxRetries int
	Base       time.Duration
	Cap        time.Duration
	OnRetry    func(attempt int, wait time.Duration, err error)
}

// Retry runs call until it succeeds, returns a permanent error or the retry
// budget is spent. The response call returns, if any, feeds Retry-After.
func Retry(ctx context.Context, b Backoff, call func() (*http.Response, error)) error {
	step := b.Base
	if step <= 0 {
		step = time.Second
	}
	limit := b.Cap
	if limit <= 0 {
		limit = 10 * time.Second
	}
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, err := call()
		if err == nil {
			return nil
		}
		if attempt >= b.MaxRetries || !IsRetryableError(err) {
			return err
		}
		wait := JitterSleep(RetryAfterDuration(resp, step, limit))
		if b.OnRetry != nil {
			b.OnRetry(attempt+1, wait, err)
		}
		if err := Sleep(ctx, wait); err != nil {
			return err
		}
		step *= 2
	}
}
