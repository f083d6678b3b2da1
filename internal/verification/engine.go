package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"NewsDigest/internal/credibility"
	"NewsDigest/internal/domain"
	"NewsDigest/internal/metrics"
	"NewsDigest/internal/ports"
	"NewsDigest/internal/similarity"
)

// ErrCommit marks a batch whose writes were rolled back.
var ErrCommit = errors.New("commit verification batch")

// Config tunes the engine thresholds.
type Config struct {
	MinCredibility      float64
	SimilarityThreshold float64
	WindowDays          int
	BodyPrefix          int
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		MinCredibility:      0.6,
		SimilarityThreshold: 0.85,
		WindowDays:          2,
		BodyPrefix:          200,
	}
}

// Deps wires the engine collaborators. Embeddings and Metrics are optional.
type Deps struct {
	Scorer     *credibility.Scorer
	Candidates ports.CandidateRepository
	Verified   ports.VerifiedRepository
	Committer  ports.VerificationCommitter
	Embeddings *similarity.Capability
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Clock      func() time.Time
}

// ItemResult is the outcome of one candidate.
type ItemResult struct {
	CandidateID int64
	Outcome     domain.Outcome
	Score       float64
	// Similarity is the best cosine match against the window, when one was computed.
	Similarity float64
	// Degraded is set when the semantic check could not run for this item.
	Degraded bool
}

// BatchResult aggregates the item results of one batch.
type BatchResult struct {
	Items                  []ItemResult
	Verified               int
	RejectedLowCredibility int
	RejectedDuplicate      int
	Skipped                int
	Semantic               bool
}

// Processed returns the number of candidates that reached a terminal state.
func (r BatchResult) Processed() int {
	return r.Verified + r.RejectedLowCredibility + r.RejectedDuplicate
}

// Engine scores, deduplicates and promotes candidates.
type Engine struct {
	cfg        Config
	scorer     *credibility.Scorer
	candidates ports.CandidateRepository
	verified   ports.VerifiedRepository
	committer  ports.VerificationCommitter
	embeddings *similarity.Capability
	metrics    *metrics.Metrics
	logger     *slog.Logger
	clock      func() time.Time
}

// NewEngine applies defaults for zero config values.
func NewEngine(cfg Config, deps Deps) *Engine {
	def := DefaultConfig()
	if cfg.MinCredibility == 0 {
		cfg.MinCredibility = def.MinCredibility
	}
	if cfg.SimilarityThreshold == 0 {
		cfg.SimilarityThreshold = def.SimilarityThreshold
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = def.WindowDays
	}
	if cfg.BodyPrefix <= 0 {
		cfg.BodyPrefix = def.BodyPrefix
	}

	scorer := deps.Scorer
	if scorer == nil {
		scorer = credibility.NewScorer(nil, 0)
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Engine{
		cfg:        cfg,
		scorer:     scorer,
		candidates: deps.Candidates,
		verified:   deps.Verified,
		committer:  deps.Committer,
		embeddings: deps.Embeddings,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		clock:      clock,
	}
}

// VerifyBatch processes the given candidates in order and commits every write at once.
// Missing and already processed candidates are skipped. On commit failure nothing is
// persisted, the result reports zero verified and the error wraps ErrCommit.
func (e *Engine) VerifyBatch(ctx context.Context, ids []int64) (BatchResult, error) {
	var result BatchResult
	if len(ids) == 0 {
		return result, nil
	}

	loaded, err := e.candidates.CandidatesByIDs(ctx, ids)
	if err != nil {
		return result, fmt.Errorf("load candidates: %w", err)
	}
	byID := make(map[int64]domain.CandidateItem, len(loaded))
	for _, c := range loaded {
		byID[c.ID] = c
	}

	pending := make([]domain.CandidateItem, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		c, ok := byID[id]
		if !ok || c.Processed || seen[id] {
			result.Skipped++
			continue
		}
		seen[id] = true
		pending = append(pending, c)
	}
	if len(pending) == 0 {
		return result, nil
	}

	now := e.clock()
	cutoff := now.Add(-time.Duration(e.cfg.WindowDays) * 24 * time.Hour)
	history, err := e.verified.VerifiedSince(ctx, cutoff)
	if err != nil {
		return result, fmt.Errorf("load window: %w", err)
	}

	titles := make(map[string]bool, len(history)+len(pending))
	for _, r := range history {
		titles[r.Title] = true
	}

	embedder, window := e.buildWindow(ctx, history)
	result.Semantic = embedder != nil

	batch := domain.VerificationBatch{}
	for _, c := range pending {
		item := ItemResult{CandidateID: c.ID, Score: e.scorer.Score(c.SourceID, c.URL)}

		switch {
		case item.Score < e.cfg.MinCredibility:
			item.Outcome = domain.OutcomeRejectedLowCredibility
		case titles[c.Title]:
			item.Outcome = domain.OutcomeRejectedDuplicate
		default:
			text := similarity.Text(c.Title, c.Text(), e.cfg.BodyPrefix)
			var vector []float32
			if embedder != nil {
				vector, err = embedder.EmbedOne(ctx, text)
				if err != nil {
					item.Degraded = true
					vector = nil
					e.warn("embed candidate failed, exact-title check only", "candidate", c.ID, "error", err)
				} else if match := window.Best(vector); match.Found {
					item.Similarity = match.Score
				}
			} else {
				item.Degraded = true
			}

			if IsDuplicate(item.Similarity, e.cfg.SimilarityThreshold) {
				item.Outcome = domain.OutcomeRejectedDuplicate
				break
			}

			item.Outcome = domain.OutcomeVerified
			batch.Records = append(batch.Records, domain.VerifiedRecord{
				CandidateID:      c.ID,
				Title:            c.Title,
				Body:             c.Text(),
				CredibilityScore: item.Score,
				PublishedAt:      c.PublishedAt,
				CreatedAt:        now,
				Source: domain.SourceRef{
					CandidateID: c.ID,
					SourceID:    c.SourceID,
					SourceName:  c.SourceName,
					URL:         c.URL,
					ImageURL:    c.ImageURL,
				},
			})
			titles[c.Title] = true
			if vector != nil {
				window.Add(text, vector)
			}
		}

		batch.Updates = append(batch.Updates, domain.CandidateUpdate{
			CandidateID:       c.ID,
			VerificationScore: item.Score,
			IsVerified:        item.Score >= e.cfg.MinCredibility,
			Duplicate:         item.Outcome == domain.OutcomeRejectedDuplicate,
		})
		result.Items = append(result.Items, item)
		e.debug("candidate processed", "candidate", c.ID, "outcome", item.Outcome, "score", item.Score, "similarity", item.Similarity)
	}

	if err := e.committer.CommitVerification(ctx, batch); err != nil {
		e.warn("verification batch rolled back", "candidates", len(batch.Updates), "error", err)
		return BatchResult{Skipped: result.Skipped, Semantic: result.Semantic}, fmt.Errorf("%w: %w", ErrCommit, err)
	}

	for _, item := range result.Items {
		switch item.Outcome {
		case domain.OutcomeVerified:
			result.Verified++
		case domain.OutcomeRejectedLowCredibility:
			result.RejectedLowCredibility++
		case domain.OutcomeRejectedDuplicate:
			result.RejectedDuplicate++
		}
		e.metrics.IncOutcome(string(item.Outcome))
	}

	if e.logger != nil {
		e.logger.Info("verification batch committed",
			"verified", result.Verified,
			"rejected_low_credibility", result.RejectedLowCredibility,
			"rejected_duplicate", result.RejectedDuplicate,
			"skipped", result.Skipped,
			"semantic", result.Semantic)
	}
	return result, nil
}

// IsDuplicate applies the strict similarity threshold: equality is not a duplicate.
func IsDuplicate(similarity, threshold float64) bool {
	return similarity > threshold
}

// buildWindow returns a nil embedder when semantic checks are off for this batch.
func (e *Engine) buildWindow(ctx context.Context, history []domain.VerifiedRecord) (ports.Embedder, *similarity.Window) {
	embedder, ok := e.embeddings.Embedder(ctx)
	e.metrics.SetEmbeddingAvailable(ok)
	if !ok {
		return nil, similarity.NewWindow()
	}

	texts := make([]string, 0, len(history))
	for _, r := range history {
		texts = append(texts, similarity.Text(r.Title, r.Body, e.cfg.BodyPrefix))
	}

	window, err := similarity.Build(ctx, embedder, texts)
	if err != nil {
		e.warn("window embedding failed, exact-title check only", "records", len(texts), "error", err)
		return nil, similarity.NewWindow()
	}
	return embedder, window
}

func (e *Engine) debug(msg string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}

func (e *Engine) warn(msg string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}
