package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestOpenAIEmbedderOrdersByIndex(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != defaultOpenAIModel || len(req.Input) != 2 {
			t.Errorf("unexpected request %+v", req)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  defaultOpenAIModel,
			"data": []map[string]any{
				{"object": "embedding", "index": 1, "embedding": []float64{0, 1}},
				{"object": "embedding", "index": 0, "embedding": []float64{1, 0}},
			},
			"usage": map[string]any{"prompt_tokens": 2, "total_tokens": 2},
		})
	}))
	defer server.Close()

	embedder := NewOpenAIEmbedder("key", "", server.URL+"/v1/", time.Second)
	if embedder.ModelName() != defaultOpenAIModel {
		t.Fatalf("unexpected model %s", embedder.ModelName())
	}

	vectors, err := embedder.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("EmbedBatch returned error: %v", err)
	}
	if len(vectors) != 2 || vectors[0][0] != 1 || vectors[1][1] != 1 {
		t.Fatalf("unexpected vectors %v", vectors)
	}
}

func TestOpenAIEmbedderEmptyInput(t *testing.T) {
	t.Parallel()

	embedder := NewOpenAIEmbedder("key", "", "http://127.0.0.1:1/v1/", time.Second)
	vectors, err := embedder.EmbedBatch(context.Background(), nil)
	if err != nil || len(vectors) != 0 {
		t.Fatalf("expected no call for empty input, got %v, %v", vectors, err)
	}
}

func TestCohereEmbedderSplitsLargeBatches(t *testing.T) {
	t.Parallel()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/v2/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Texts     []string `json:"texts"`
			Model     string   `json:"model"`
			InputType string   `json:"input_type"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Texts) > cohereMaxTexts {
			t.Errorf("batch of %d exceeds limit", len(req.Texts))
		}
		if req.Model != defaultCohereModel || req.InputType != "search_document" {
			t.Errorf("unexpected request model=%s input_type=%s", req.Model, req.InputType)
		}

		floats := make([][]float64, len(req.Texts))
		for i := range floats {
			floats[i] = []float64{float64(i), 1}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":         "embed-1",
			"texts":      req.Texts,
			"embeddings": map[string]any{"float": floats},
		})
	}))
	defer server.Close()

	embedder := NewCohereEmbedder("key", "", server.URL, time.Second)
	texts := make([]string, 100)
	for i := range texts {
		texts[i] = "text"
	}

	vectors, err := embedder.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch returned error: %v", err)
	}
	if len(vectors) != 100 {
		t.Fatalf("expected 100 vectors, got %d", len(vectors))
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 requests, got %d", got)
	}
	if vectors[96][0] != 0 || vectors[95][0] != 95 {
		t.Fatalf("unexpected chunk ordering: %v %v", vectors[95], vectors[96])
	}
}

func TestToFloat32(t *testing.T) {
	t.Parallel()

	got := toFloat32([][]float64{{0.5, -1}, {}})
	if len(got) != 2 || got[0][0] != 0.5 || got[0][1] != -1 || len(got[1]) != 0 {
		t.Fatalf("unexpected conversion %v", got)
	}
}
