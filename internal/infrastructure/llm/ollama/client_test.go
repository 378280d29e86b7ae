package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pitchlabs/pitchscore/internal/core/domain"
)

func TestCompleteAppendsSchemaHintAndRequestsJSON(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"response":"  {\"ok\":true}  "}`))
	}))
	defer server.Close()

	client := New(server.URL, "gen-model", "embed-model", Options{})
	out, err := client.Complete(context.Background(), "score this pitch", `{"shape":0}`)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if out != `{"ok":true}` {
		t.Fatalf("Complete() = %q, want trimmed response", out)
	}

	prompt, _ := captured["prompt"].(string)
	if !strings.Contains(prompt, "score this pitch") || !strings.Contains(prompt, `{"shape":0}`) {
		t.Fatalf("prompt missing input or schema hint: %s", prompt)
	}
	if captured["format"] != "json" {
		t.Fatalf("expected format=json, got %v", captured["format"])
	}
	if captured["model"] != "gen-model" {
		t.Fatalf("expected gen model, got %v", captured["model"])
	}
}

func TestCompleteServerErrorCarriesTemporaryKind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL, "gen", "embed", Options{})
	_, err := client.Complete(context.Background(), "prompt", "")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
	if !strings.Contains(err.Error(), "model loading") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestCompleteClientErrorCarriesCapabilityKind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unknown model", http.StatusNotFound)
	}))
	defer server.Close()

	client := New(server.URL, "gen", "embed", Options{})
	_, err := client.Complete(context.Background(), "prompt", "")
	if !domain.IsKind(err, domain.ErrAnalysisCapability) {
		t.Fatalf("expected ErrAnalysisCapability, got %v", err)
	}
}

func TestEmbedRejectsCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2]]}`))
	}))
	defer server.Close()

	client := New(server.URL, "gen", "embed", Options{})
	_, err := client.Embed(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatalf("expected mismatch error")
	}
	if !strings.Contains(err.Error(), "mismatch") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestEmbedQueryReturnsFirstVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload["model"] != "embed-model" {
			t.Fatalf("expected embed model, got %v", payload["model"])
		}
		_, _ = w.Write([]byte(`{"embeddings":[[0.5,0.5]]}`))
	}))
	defer server.Close()

	client := New(server.URL, "gen-model", "embed-model", Options{})
	vec, err := client.EmbedQuery(context.Background(), "query text")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.5 {
		t.Fatalf("unexpected vector %v", vec)
	}
}

func TestEmbedEmptyInputIsNoOp(t *testing.T) {
	client := New("http://localhost:1", "gen", "embed", Options{})
	vectors, err := client.Embed(context.Background(), nil)
	if err != nil || vectors != nil {
		t.Fatalf("expected no-op, got %v / %v", vectors, err)
	}
}
