package vlm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/parsegate/parsegate/fault"
	"github.com/parsegate/parsegate/filetype"
)

var testDataURI = filetype.ToDataURI("image/png", []byte{0x89, 'P', 'N', 'G'})

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content []struct {
			Type     string `json:"type"`
			Text     string `json:"text"`
			ImageURL struct {
				URL string `json:"url"`
			} `json:"image_url"`
		} `json:"content"`
	} `json:"messages"`
	MaxTokens int `json:"max_tokens"`
}

func ocrServer(t *testing.T, reply string, hits *atomic.Int64, lastReq *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if hits != nil {
			hits.Add(1)
		}
		if lastReq != nil {
			if err := json.NewDecoder(r.Body).Decode(lastReq); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": reply}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOCR(t *testing.T) {
	var req chatRequest
	srv := ocrServer(t, "extracted text", nil, &req)

	pool, err := New(Config{Servers: []Server{{BaseURL: srv.URL, Model: "test-vlm"}}})
	if err != nil {
		t.Fatal(err)
	}

	text, err := pool.OCR(context.Background(), testDataURI, "")
	if err != nil {
		t.Fatal(err)
	}
	if text != "extracted text" {
		t.Fatalf("OCR = %q", text)
	}

	// The wire request carries the image and the default prompt as two parts.
	if req.Model != "test-vlm" {
		t.Errorf("model = %q", req.Model)
	}
	if len(req.Messages) != 1 || len(req.Messages[0].Content) != 2 {
		t.Fatalf("unexpected message shape: %+v", req.Messages)
	}
	if req.Messages[0].Content[0].ImageURL.URL != testDataURI {
		t.Errorf("image part does not carry the data URI")
	}
	if req.Messages[0].Content[1].Text != DefaultPrompt {
		t.Errorf("prompt = %q, want default", req.Messages[0].Content[1].Text)
	}
	if req.MaxTokens != 4096 {
		t.Errorf("max_tokens = %d, want 4096", req.MaxTokens)
	}
}

func TestOCRCustomPrompt(t *testing.T) {
	var req chatRequest
	srv := ocrServer(t, "ok", nil, &req)
	pool, _ := New(Config{Servers: []Server{{BaseURL: srv.URL, Model: "m"}}})

	if _, err := pool.OCR(context.Background(), testDataURI, "describe the chart"); err != nil {
		t.Fatal(err)
	}
	if req.Messages[0].Content[1].Text != "describe the chart" {
		t.Errorf("prompt = %q", req.Messages[0].Content[1].Text)
	}
}

func TestOCRRejectsMalformedDataURI(t *testing.T) {
	pool, _ := New(Config{Servers: []Server{{BaseURL: "http://127.0.0.1:1", Model: "m"}}})

	for _, uri := range []string{"", "not-a-uri", "data:image/png;base64"} {
		if _, err := pool.OCR(context.Background(), uri, ""); !errors.Is(err, fault.ErrBadRequest) {
			t.Errorf("OCR(%q): expected ErrBadRequest, got %v", uri, err)
		}
	}
}

func TestOCRNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	pool, _ := New(Config{Servers: []Server{{BaseURL: srv.URL, Model: "m"}}})
	if _, err := pool.OCR(context.Background(), testDataURI, ""); !errors.Is(err, fault.ErrVLM) {
		t.Fatalf("expected ErrVLM, got %v", err)
	}
}

func TestOCRBackendDown(t *testing.T) {
	pool, _ := New(Config{Servers: []Server{{BaseURL: "http://127.0.0.1:1", Model: "m"}}})
	if _, err := pool.OCR(context.Background(), testDataURI, ""); !errors.Is(err, fault.ErrVLM) {
		t.Fatalf("expected ErrVLM, got %v", err)
	}
}

func TestOCREmptyContentIsNotAnError(t *testing.T) {
	srv := ocrServer(t, "", nil, nil)
	pool, _ := New(Config{Servers: []Server{{BaseURL: srv.URL, Model: "m"}}})

	text, err := pool.OCR(context.Background(), testDataURI, "")
	if err != nil {
		t.Fatal(err)
	}
	if text != "" {
		t.Fatalf("expected empty text, got %q", text)
	}
}

func TestRoundRobinFairness(t *testing.T) {
	var hitsA, hitsB atomic.Int64
	srvA := ocrServer(t, "a", &hitsA, nil)
	srvB := ocrServer(t, "b", &hitsB, nil)

	pool, err := New(Config{Servers: []Server{
		{BaseURL: srvA.URL, Model: "model-a"},
		{BaseURL: srvB.URL, Model: "model-b"},
	}})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 4; i++ {
		if _, err := pool.OCR(context.Background(), testDataURI, ""); err != nil {
			t.Fatal(err)
		}
	}
	if hitsA.Load() != 2 || hitsB.Load() != 2 {
		t.Fatalf("unfair distribution: A=%d B=%d", hitsA.Load(), hitsB.Load())
	}
}

func TestNewRequiresServers(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty pool")
	}
	if _, err := New(Config{Servers: []Server{{BaseURL: "  "}}}); err == nil {
		t.Fatal("expected error for blank base URLs")
	}
}

func TestPoolAccessors(t *testing.T) {
	pool, _ := New(Config{
		Servers:             []Server{{BaseURL: "http://127.0.0.1:1", Model: "m"}},
		EmbeddedImagePrompt: "custom embedded prompt",
	})
	if pool.Size() != 1 {
		t.Errorf("Size = %d", pool.Size())
	}
	if pool.EmbeddedImagePrompt() != "custom embedded prompt" {
		t.Errorf("EmbeddedImagePrompt = %q", pool.EmbeddedImagePrompt())
	}
}
