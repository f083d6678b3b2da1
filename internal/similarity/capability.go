package similarity

import (
	"context"
	"log/slog"
	"sync"

	"NewsDigest/internal/ports"
)

const probeText = "embedding capability probe"

// Capability lazily checks once per process whether the embedding backend works.
// Callers query it instead of retrying the backend mid-batch.
type Capability struct {
	once      sync.Once
	embedder  ports.Embedder
	available bool
	logger    *slog.Logger
}

// NewCapability wraps an optional embedder. A nil embedder is never available.
func NewCapability(embedder ports.Embedder, logger *slog.Logger) *Capability {
	return &Capability{embedder: embedder, logger: logger}
}

// Embedder returns the backend when the probe succeeded.
func (c *Capability) Embedder(ctx context.Context) (ports.Embedder, bool) {
	if c == nil {
		return nil, false
	}
	c.once.Do(func() { c.probe(ctx) })
	if !c.available {
		return nil, false
	}
	return c.embedder, true
}

// Available reports the cached probe result, probing on first use.
func (c *Capability) Available(ctx context.Context) bool {
	_, ok := c.Embedder(ctx)
	return ok
}

func (c *Capability) probe(ctx context.Context) {
	if c.embedder == nil {
		c.info("semantic deduplication disabled", "reason", "no embedding backend configured")
		return
	}
	vector, err := c.embedder.EmbedOne(ctx, probeText)
	if err != nil || len(vector) == 0 {
		c.warn("semantic deduplication disabled", "model", c.embedder.ModelName(), "error", err)
		return
	}
	c.available = true
	c.info("semantic deduplication enabled", "model", c.embedder.ModelName(), "dimensions", len(vector))
}

func (c *Capability) info(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

func (c *Capability) warn(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
