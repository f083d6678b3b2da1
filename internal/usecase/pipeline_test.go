package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/infrastructure/lease"
	"NewsDigest/internal/infrastructure/storage"
	"NewsDigest/internal/ports"
	"NewsDigest/internal/ranking"
	"NewsDigest/internal/verification"
)

var now = time.Date(2026, 10, 19, 6, 30, 0, 0, time.UTC)

func clock() time.Time { return now }

type staticSource struct {
	items []domain.CandidateItem
	err   error
}

func (s staticSource) FetchCandidates(ctx context.Context, _ time.Time) ([]domain.CandidateItem, error) {
	return s.items, s.err
}

type stubAnalyzer struct {
	analysis domain.Analysis
	err      error

	mu    sync.Mutex
	calls int
}

func (s *stubAnalyzer) Analyze(ctx context.Context, title, body string) (domain.Analysis, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return domain.Analysis{}, s.err
	}
	return s.analysis, nil
}

type recordingNotifier struct {
	err error

	mu         sync.Mutex
	deliveries []domain.Delivery
}

func (n *recordingNotifier) Deliver(ctx context.Context, d domain.Delivery) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deliveries = append(n.deliveries, d)
	return n.err
}

type recordingArchive struct {
	digests []domain.Digest
}

func (a *recordingArchive) Archive(ctx context.Context, d domain.Digest) error {
	a.digests = append(a.digests, d)
	return nil
}

type failingCommitter struct{}

func (failingCommitter) CommitVerification(ctx context.Context, batch domain.VerificationBatch) error {
	return errors.New("connection reset")
}

func candidate(source, title, url string) domain.CandidateItem {
	return domain.CandidateItem{
		SourceID:    source,
		SourceName:  source,
		Title:       title,
		Body:        title + " body",
		URL:         url,
		PublishedAt: now.Add(-time.Hour),
	}
}

func defaultItems() []domain.CandidateItem {
	return []domain.CandidateItem{
		candidate("reuters", "Parliament passes budget", "https://reuters.com/a"),
		candidate("bbc-news", "Parliament passes budget", "https://bbc.co.uk/a"),
		candidate("unknown-blog", "Hot take", "https://blog.example/a"),
	}
}

func newTestPipeline(store *storage.MemoryStore, committer ports.VerificationCommitter, deps PipelineDeps) *Pipeline {
	if committer == nil {
		committer = store
	}
	deps.Store = store
	deps.Engine = verification.NewEngine(verification.DefaultConfig(), verification.Deps{
		Candidates: store,
		Verified:   store,
		Committer:  committer,
		Clock:      clock,
	})
	deps.Assembler = ranking.NewAssembler(ranking.DefaultConfig(), nil, clock)
	deps.Config.NotifyTopStories = 2
	return NewPipeline(deps)
}

func TestRunCycleEndToEnd(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	analyzer := &stubAnalyzer{analysis: domain.Analysis{Category: domain.CategoryPolitics, ImpactScore: 8}}
	notifier := &recordingNotifier{}
	archive := &recordingArchive{}

	p := newTestPipeline(store, nil, PipelineDeps{
		Source:    staticSource{items: defaultItems()},
		Analyzer:  analyzer,
		Notifiers: []ports.Notifier{notifier},
		Archive:   archive,
		Lease:     lease.NewLocalLease(),
	})

	report, err := p.RunCycle(context.Background(), now)
	if err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}

	if report.Collected != 3 || report.Inserted != 3 {
		t.Fatalf("unexpected collection counts %+v", report)
	}
	if report.Verified != 1 || report.RejectedDuplicate != 1 || report.RejectedLowCredibility != 1 {
		t.Fatalf("unexpected verification counts %+v", report)
	}
	if report.Analyzed != 1 || report.Fallbacks != 0 {
		t.Fatalf("unexpected analysis counts %+v", report)
	}
	if report.DigestID == 0 || report.Delivered != 1 {
		t.Fatalf("unexpected digest or delivery %+v", report)
	}

	digest, ok, err := store.LatestDigest(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected stored digest, got %v %v", ok, err)
	}
	if got := digest.Categories[domain.CategoryPolitics]; len(got) != 1 || got[0].URL != "https://reuters.com/a" {
		t.Fatalf("unexpected politics section %+v", got)
	}
	if len(digest.Categories) != len(domain.Categories) {
		t.Fatalf("expected %d categories, got %d", len(domain.Categories), len(digest.Categories))
	}

	if len(archive.digests) != 1 || archive.digests[0].ID != report.DigestID {
		t.Fatalf("expected archived digest, got %+v", archive.digests)
	}

	if len(notifier.deliveries) != 1 {
		t.Fatalf("expected one delivery, got %d", len(notifier.deliveries))
	}
	d := notifier.deliveries[0]
	if d.DigestID != report.DigestID || len(d.Brief) != 1 || len(d.TopStories) != 1 {
		t.Fatalf("unexpected delivery %+v", d)
	}
	if d.TopStories[0].Category != domain.CategoryPolitics || d.TopStories[0].Title != "Parliament passes budget" {
		t.Fatalf("unexpected top story notice %+v", d.TopStories[0])
	}
}

func TestRunCycleIsIdempotent(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	analyzer := &stubAnalyzer{analysis: domain.Analysis{Category: domain.CategoryPolitics, ImpactScore: 5}}
	p := newTestPipeline(store, nil, PipelineDeps{
		Source:   staticSource{items: defaultItems()},
		Analyzer: analyzer,
	})

	if _, err := p.RunCycle(context.Background(), now); err != nil {
		t.Fatalf("first run: %v", err)
	}
	report, err := p.RunCycle(context.Background(), now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if report.Inserted != 0 || report.Verified != 0 || report.Analyzed != 0 {
		t.Fatalf("expected no new work on rerun, got %+v", report)
	}
	if analyzer.calls != 1 {
		t.Fatalf("expected one analyzer call overall, got %d", analyzer.calls)
	}
	if report.DigestID != 2 {
		t.Fatalf("expected a fresh digest on every run, got id %d", report.DigestID)
	}
}

func TestRunCycleFallsBackToKeywordsAndOverridesCategory(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	fallback := &stubAnalyzer{analysis: domain.Analysis{Category: domain.CategoryBusiness, ImpactScore: 7}}
	p := newTestPipeline(store, nil, PipelineDeps{
		Source: staticSource{items: []domain.CandidateItem{
			candidate("wired", "Chip makers rally", "https://wired.com/a"),
		}},
		Analyzer: &stubAnalyzer{err: errors.New("timeout")},
		Fallback: fallback,
		CategoryOverride: func(sourceID, category string) string {
			if sourceID == "wired" {
				return domain.CategoryTechnology
			}
			return category
		},
	})

	report, err := p.RunCycle(context.Background(), now)
	if err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}
	if report.Analyzed != 1 || report.Fallbacks != 1 {
		t.Fatalf("expected one fallback analysis, got %+v", report)
	}

	records, _ := store.RecentRecords(context.Background(), 10)
	if len(records) != 1 || records[0].Category() != domain.CategoryTechnology || records[0].ImpactScore() != 7 {
		t.Fatalf("unexpected stored record %+v", records)
	}
}

func TestRunCycleLeavesRecordUnanalysedWithoutFallback(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	p := newTestPipeline(store, nil, PipelineDeps{
		Source:   staticSource{items: defaultItems()[:1]},
		Analyzer: &stubAnalyzer{err: ports.ErrAnalysisQuota},
	})

	report, err := p.RunCycle(context.Background(), now)
	if err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}
	if report.Analyzed != 0 {
		t.Fatalf("expected no analysis, got %+v", report)
	}
	pending, _ := store.RecordsMissingAnalysis(context.Background(), 10)
	if len(pending) != 1 {
		t.Fatalf("expected record left for retry, got %d", len(pending))
	}
}

func TestRunCycleSkipsWhenLeaseHeld(t *testing.T) {
	t.Parallel()

	l := lease.NewLocalLease()
	release, err := l.Acquire(context.Background(), time.Minute)
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	defer release(context.Background())

	store := storage.NewMemoryStore()
	p := newTestPipeline(store, nil, PipelineDeps{
		Source: staticSource{items: defaultItems()},
		Lease:  l,
	})

	report, err := p.RunCycle(context.Background(), now)
	if !errors.Is(err, ports.ErrLeaseHeld) {
		t.Fatalf("expected ErrLeaseHeld, got %v", err)
	}
	if !report.Skipped || report.Inserted != 0 {
		t.Fatalf("expected skipped run without work, got %+v", report)
	}
}

func TestRunCycleSurfacesCommitFailure(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	notifier := &recordingNotifier{}
	p := newTestPipeline(store, failingCommitter{}, PipelineDeps{
		Source:    staticSource{items: defaultItems()},
		Notifiers: []ports.Notifier{notifier},
	})

	_, err := p.RunCycle(context.Background(), now)
	if !errors.Is(err, verification.ErrCommit) {
		t.Fatalf("expected ErrCommit, got %v", err)
	}

	ids, _ := store.UnprocessedCandidateIDs(context.Background(), 0)
	if len(ids) != 3 {
		t.Fatalf("expected all candidates still pending, got %d", len(ids))
	}
	if _, ok, _ := store.LatestDigest(context.Background()); ok {
		t.Fatalf("expected no digest after failed verification")
	}
	if len(notifier.deliveries) != 0 {
		t.Fatalf("expected no delivery after failed verification")
	}
}

func TestRunCycleContinuesAfterCollectionAndDeliveryFailures(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	if _, err := store.SaveCandidates(context.Background(), defaultItems()[:1]); err != nil {
		t.Fatalf("seed candidates: %v", err)
	}

	broken := &recordingNotifier{err: errors.New("telegram down")}
	healthy := &recordingNotifier{}
	p := newTestPipeline(store, nil, PipelineDeps{
		Source:    staticSource{err: errors.New("all feeds failed")},
		Notifiers: []ports.Notifier{broken, healthy},
	})

	report, err := p.RunCycle(context.Background(), now)
	if err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}
	if report.Verified != 1 {
		t.Fatalf("expected stored candidate verified, got %+v", report)
	}
	if report.Delivered != 1 || len(healthy.deliveries) != 1 {
		t.Fatalf("expected healthy notifier to receive the digest, got %+v", report)
	}
}

func TestBuildDelivery(t *testing.T) {
	t.Parallel()

	digest := domain.Digest{
		ID:          4,
		GeneratedAt: now,
		Brief:       []domain.BriefEntry{{RecordID: 1, Title: "One"}, {RecordID: 2, Title: "Two"}},
		TopStories: []domain.DigestEntry{
			{Title: "A", Category: domain.CategoryWorld, URL: "https://a"},
			{Title: "B", Category: domain.CategorySports, URL: "https://b"},
			{Title: "C", Category: domain.CategoryAI, URL: "https://c"},
		},
	}

	got := BuildDelivery(digest, 2)
	if got.DigestID != 4 || len(got.Brief) != 2 || got.Brief[1].Title != "Two" {
		t.Fatalf("unexpected brief %+v", got)
	}
	if len(got.TopStories) != 2 || got.TopStories[1] != (domain.Notice{Title: "B", Category: domain.CategorySports, URL: "https://b"}) {
		t.Fatalf("unexpected top stories %+v", got.TopStories)
	}

	if none := BuildDelivery(digest, 0); len(none.TopStories) != 0 {
		t.Fatalf("expected no top stories, got %+v", none.TopStories)
	}
}
