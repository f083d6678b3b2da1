package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/metrics"
	"NewsDigest/internal/ports"
	"NewsDigest/internal/ranking"
	"NewsDigest/internal/verification"
)

// Pipeline stages, used as metric labels.
const (
	StageCollect = "collect"
	StageVerify  = "verify"
	StageAnalyze = "analyze"
	StageRank    = "rank"
	StageDeliver = "deliver"
)

// PipelineConfig sizes each stage.
type PipelineConfig struct {
	VerifyBatch         int
	AnalysisBatch       int
	AnalysisConcurrency int
	RecentLimit         int
	NotifyTopStories    int
	LeaseTTL            time.Duration
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
// Source, Analyzer, Fallback, Archive, Lease and Metrics are optional.
type PipelineDeps struct {
	Source    ports.CandidateSource
	Store     ports.Store
	Engine    *verification.Engine
	Analyzer  ports.Analyzer
	Fallback  ports.Analyzer
	// CategoryOverride adjusts the analysed category from the source id.
	CategoryOverride func(sourceID, category string) string
	Assembler        *ranking.Assembler
	Notifiers        []ports.Notifier
	Archive          ports.DigestArchive
	Lease            ports.RunLease
	Metrics          *metrics.Metrics
	Logger           *slog.Logger
	Config           PipelineConfig
}

// RunReport summarises one cycle.
type RunReport struct {
	Trigger                time.Time `json:"trigger"`
	Skipped                bool      `json:"skipped"`
	Collected              int       `json:"collected"`
	Inserted               int       `json:"inserted"`
	Verified               int       `json:"verified"`
	RejectedLowCredibility int       `json:"rejected_low_credibility"`
	RejectedDuplicate      int       `json:"rejected_duplicate"`
	Semantic               bool      `json:"semantic"`
	Analyzed               int       `json:"analyzed"`
	Fallbacks              int       `json:"fallbacks"`
	DigestID               int64     `json:"digest_id"`
	Delivered              int       `json:"delivered"`
}

// Pipeline runs collection, verification, analysis, ranking and delivery in sequence.
type Pipeline struct {
	source    ports.CandidateSource
	store     ports.Store
	engine    *verification.Engine
	analyzer  ports.Analyzer
	fallback  ports.Analyzer
	override  func(sourceID, category string) string
	assembler *ranking.Assembler
	notifiers []ports.Notifier
	archive   ports.DigestArchive
	lease     ports.RunLease
	metrics   *metrics.Metrics
	logger    *slog.Logger
	cfg       PipelineConfig
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	cfg := deps.Config
	if cfg.VerifyBatch <= 0 {
		cfg.VerifyBatch = 500
	}
	if cfg.AnalysisBatch <= 0 {
		cfg.AnalysisBatch = 50
	}
	if cfg.AnalysisConcurrency <= 0 {
		cfg.AnalysisConcurrency = 4
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 100
	}
	if cfg.NotifyTopStories < 0 {
		cfg.NotifyTopStories = 0
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 10 * time.Minute
	}

	assembler := deps.Assembler
	if assembler == nil {
		assembler = ranking.NewAssembler(ranking.DefaultConfig(), nil, nil)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Pipeline{
		source:    deps.Source,
		store:     deps.Store,
		engine:    deps.Engine,
		analyzer:  deps.Analyzer,
		fallback:  deps.Fallback,
		override:  deps.CategoryOverride,
		assembler: assembler,
		notifiers: deps.Notifiers,
		archive:   deps.Archive,
		lease:     deps.Lease,
		metrics:   deps.Metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// RunCycle executes one full cycle. It returns ports.ErrLeaseHeld when another run is active.
func (p *Pipeline) RunCycle(ctx context.Context, trigger time.Time) (RunReport, error) {
	report := RunReport{Trigger: trigger}

	if p.lease != nil {
		release, err := p.lease.Acquire(ctx, p.cfg.LeaseTTL)
		if err != nil {
			if errors.Is(err, ports.ErrLeaseHeld) {
				report.Skipped = true
				p.metrics.IncRun(metrics.StatusSkipped)
				return report, err
			}
			p.metrics.IncRun(metrics.StatusFailure)
			return report, fmt.Errorf("acquire lease: %w", err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				p.logger.Warn("release lease failed", "error", err)
			}
		}()
	}

	if err := p.run(ctx, trigger, &report); err != nil {
		p.metrics.IncRun(metrics.StatusFailure)
		return report, err
	}
	p.metrics.IncRun(metrics.StatusSuccess)
	p.logger.Info("news cycle completed",
		"collected", report.Collected,
		"inserted", report.Inserted,
		"verified", report.Verified,
		"analyzed", report.Analyzed,
		"digest", report.DigestID,
		"delivered", report.Delivered)
	return report, nil
}

func (p *Pipeline) run(ctx context.Context, trigger time.Time, report *RunReport) error {
	if p.store == nil {
		return errors.New("pipeline store is nil")
	}

	if err := p.timed(StageCollect, func() error { return p.collect(ctx, trigger, report) }); err != nil {
		return err
	}
	if err := p.timed(StageVerify, func() error { return p.verify(ctx, report) }); err != nil {
		return err
	}
	if err := p.timed(StageAnalyze, func() error { return p.analyzeAll(ctx, report) }); err != nil {
		return err
	}

	var digest domain.Digest
	err := p.timed(StageRank, func() error {
		var rErr error
		digest, rErr = p.buildDigest(ctx)
		return rErr
	})
	if err != nil {
		return err
	}
	report.DigestID = digest.ID

	return p.timed(StageDeliver, func() error {
		report.Delivered = p.deliver(ctx, digest)
		return nil
	})
}

func (p *Pipeline) collect(ctx context.Context, trigger time.Time, report *RunReport) error {
	if p.source == nil {
		return nil
	}

	items, err := p.source.FetchCandidates(ctx, trigger)
	if err != nil {
		// Candidates stored by earlier runs are still worth verifying.
		p.logger.Error("collect candidates failed", "error", err)
		return nil
	}
	report.Collected = len(items)

	inserted, err := p.store.SaveCandidates(ctx, items)
	if err != nil {
		return fmt.Errorf("save candidates: %w", err)
	}
	report.Inserted = inserted
	p.logger.Info("candidates collected", "fetched", len(items), "inserted", inserted)
	return nil
}

func (p *Pipeline) verify(ctx context.Context, report *RunReport) error {
	if p.engine == nil {
		return nil
	}

	ids, err := p.store.UnprocessedCandidateIDs(ctx, p.cfg.VerifyBatch)
	if err != nil {
		return fmt.Errorf("load unprocessed candidates: %w", err)
	}

	result, err := p.engine.VerifyBatch(ctx, ids)
	if err != nil {
		return fmt.Errorf("verify batch: %w", err)
	}
	report.Verified = result.Verified
	report.RejectedLowCredibility = result.RejectedLowCredibility
	report.RejectedDuplicate = result.RejectedDuplicate
	report.Semantic = result.Semantic
	return nil
}

func (p *Pipeline) analyzeAll(ctx context.Context, report *RunReport) error {
	if p.analyzer == nil && p.fallback == nil {
		return nil
	}

	records, err := p.store.RecordsMissingAnalysis(ctx, p.cfg.AnalysisBatch)
	if err != nil {
		return fmt.Errorf("load records missing analysis: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	var analyzed, fallbacks int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.AnalysisConcurrency)
	for _, record := range records {
		g.Go(func() error {
			analysis, usedFallback, ok := p.analyze(gctx, record)
			if !ok {
				return nil
			}
			if err := p.store.SaveAnalysis(gctx, record.ID, analysis); err != nil {
				return fmt.Errorf("save analysis for record %d: %w", record.ID, err)
			}
			atomic.AddInt64(&analyzed, 1)
			if usedFallback {
				atomic.AddInt64(&fallbacks, 1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	report.Analyzed = int(analyzed)
	report.Fallbacks = int(fallbacks)
	p.logger.Info("records analyzed", "count", report.Analyzed, "fallbacks", report.Fallbacks)
	return nil
}

// analyze returns ok=false when no analysis could be produced; the record is retried next run.
func (p *Pipeline) analyze(ctx context.Context, record domain.VerifiedRecord) (domain.Analysis, bool, bool) {
	var (
		analysis     domain.Analysis
		usedFallback bool
	)

	err := errors.New("no analyzer configured")
	if p.analyzer != nil {
		analysis, err = p.analyzer.Analyze(ctx, record.Title, record.Body)
	}
	if err != nil {
		if p.analyzer != nil {
			if errors.Is(err, ports.ErrAnalysisQuota) {
				p.logger.Error("analysis quota exceeded, using keyword fallback", "record", record.ID)
			} else {
				p.logger.Warn("analysis failed, using keyword fallback", "record", record.ID, "error", err)
			}
			p.metrics.IncAnalysisFallback()
		}
		if p.fallback == nil {
			return domain.Analysis{}, false, false
		}
		analysis, err = p.fallback.Analyze(ctx, record.Title, record.Body)
		if err != nil {
			p.logger.Warn("fallback analysis failed", "record", record.ID, "error", err)
			return domain.Analysis{}, false, false
		}
		usedFallback = true
	}

	if p.override != nil {
		analysis.Category = p.override(record.Source.SourceID, analysis.Category)
	}
	return analysis, usedFallback, true
}

func (p *Pipeline) buildDigest(ctx context.Context) (domain.Digest, error) {
	records, err := p.store.RecentRecords(ctx, p.cfg.RecentLimit)
	if err != nil {
		return domain.Digest{}, fmt.Errorf("load recent records: %w", err)
	}

	digest := p.assembler.Assemble(records)
	id, err := p.store.SaveDigest(ctx, digest)
	if err != nil {
		return domain.Digest{}, fmt.Errorf("save digest: %w", err)
	}
	digest.ID = id

	stories := 0
	for _, entries := range digest.Categories {
		stories += len(entries)
	}
	p.metrics.SetDigestStories(stories)
	p.logger.Info("digest generated", "digest", id, "records", len(records), "top_stories", len(digest.TopStories))
	return digest, nil
}

// deliver archives and notifies; failures are logged and never fail the run.
func (p *Pipeline) deliver(ctx context.Context, digest domain.Digest) int {
	if p.archive != nil {
		if err := p.archive.Archive(ctx, digest); err != nil {
			p.logger.Warn("archive digest failed", "digest", digest.ID, "error", err)
		}
	}

	delivery := BuildDelivery(digest, p.cfg.NotifyTopStories)
	delivered := 0
	for _, n := range p.notifiers {
		if n == nil {
			continue
		}
		if err := n.Deliver(ctx, delivery); err != nil {
			p.logger.Warn("deliver digest failed", "digest", digest.ID, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

// BuildDelivery takes the whole brief and the first topN top stories.
func BuildDelivery(digest domain.Digest, topN int) domain.Delivery {
	delivery := domain.Delivery{
		DigestID:    digest.ID,
		GeneratedAt: digest.GeneratedAt,
		Brief:       make([]domain.Notice, 0, len(digest.Brief)),
		TopStories:  make([]domain.Notice, 0, topN),
	}
	for _, b := range digest.Brief {
		delivery.Brief = append(delivery.Brief, domain.Notice{Title: b.Title})
	}
	for i, s := range digest.TopStories {
		if i >= topN {
			break
		}
		delivery.TopStories = append(delivery.TopStories, domain.Notice{
			Title:    s.Title,
			Category: s.Category,
			URL:      s.URL,
		})
	}
	return delivery
}

func (p *Pipeline) timed(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	p.metrics.ObserveStage(stage, time.Since(start).Seconds())
	return err
}
