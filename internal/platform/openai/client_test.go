package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

func newTestClient(t *testing.T, srv *httptest.Server, retries int) Client {
	t.Helper()
	c, err := New(logger.NewNop(), Config{
		APIKey:     "sk-test",
		BaseURL:    srv.URL,
		Model:      "gpt-test",
		ImageModel: "gpt-image-test",
		Timeout:    5 * time.Second,
		MaxRetries: retries,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(logger.NewNop(), Config{}); err == nil {
		t.Fatalf("expected error for missing api key")
	}
}

func TestGenerateTextRetriesThenDecodes(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("auth header: %q", got)
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"error":"busy"}`)
			return
		}
		var body responsesRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.Input) != 2 || body.Input[0].Role != "system" {
			t.Errorf("unexpected input: %#v", body.Input)
		}
		_, _ = io.WriteString(w, `{
			"model":"gpt-test",
			"output":[{"type":"message","role":"assistant","content":[{"type":"output_text","text":"Hello "},{"type":"output_text","text":"world"}]}],
			"usage":{"input_tokens":12,"output_tokens":3}
		}`)
	}))
	defer srv.Close()

	out, err := newTestClient(t, srv, 1).GenerateText(context.Background(), TextRequest{System: "be brief", User: "greet"})
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if out.Text != "Hello world" || out.InputTokens != 12 || out.OutputTokens != 3 {
		t.Fatalf("unexpected result: %#v", out)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("calls: want=2 got=%d", calls)
	}
}

func TestGenerateTextDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"bad"}}`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, 3).GenerateText(context.Background(), TextRequest{User: "x"})
	var he *HTTPError
	if !errors.As(err, &he) || he.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 HTTPError, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("calls: want=1 got=%d", calls)
	}
}

func TestEditImageSendsMultipart(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/images/edits" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Errorf("content type %q", r.Header.Get("Content-Type"))
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.FormValue("background") != "transparent" || r.FormValue("model") != "gpt-image-test" {
			t.Errorf("fields: %v", r.MultipartForm.Value)
		}
		if _, _, err := r.FormFile("image"); err != nil {
			t.Errorf("image part: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString(png)}},
		})
	}))
	defer srv.Close()

	out, err := newTestClient(t, srv, 0).EditImage(context.Background(), ImageEditRequest{
		Image:      []byte("source"),
		Prompt:     "remove the background",
		Background: "transparent",
	})
	if err != nil {
		t.Fatalf("EditImage: %v", err)
	}
	if string(out.Bytes) != string(png) || out.MimeType != "image/png" {
		t.Fatalf("unexpected image: %#v", out)
	}
}
