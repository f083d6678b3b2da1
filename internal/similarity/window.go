package similarity

import (
	"context"
	"fmt"

	"NewsDigest/internal/ports"
)

// Match is the closest window entry to a probe vector.
type Match struct {
	Score float64
	Text  string
	Found bool
}

// Window is the in-memory set of recent embeddings compared against new candidates.
// It is rebuilt for every batch and never persisted.
type Window struct {
	texts   []string
	vectors [][]float32
}

// NewWindow returns an empty window.
func NewWindow() *Window {
	return &Window{}
}

// Build embeds texts with a single batch call.
func Build(ctx context.Context, embedder ports.Embedder, texts []string) (*Window, error) {
	w := NewWindow()
	if len(texts) == 0 {
		return w, nil
	}

	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed window: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embed window: got %d vectors for %d texts", len(vectors), len(texts))
	}

	for i := range texts {
		w.Add(texts[i], vectors[i])
	}
	return w, nil
}

// Add appends an entry. Empty vectors are ignored.
func (w *Window) Add(text string, vector []float32) {
	if len(vector) == 0 {
		return
	}
	w.texts = append(w.texts, text)
	w.vectors = append(w.vectors, vector)
}

// Len returns the number of stored embeddings.
func (w *Window) Len() int {
	if w == nil {
		return 0
	}
	return len(w.vectors)
}

// Best returns the highest cosine similarity between vector and any entry.
func (w *Window) Best(vector []float32) Match {
	var best Match
	if w == nil {
		return best
	}
	for i, candidate := range w.vectors {
		score := CosineSimilarity(vector, candidate)
		if !best.Found || score > best.Score {
			best = Match{Score: score, Text: w.texts[i], Found: true}
		}
	}
	return best
}
