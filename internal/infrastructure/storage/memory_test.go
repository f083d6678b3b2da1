package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"NewsDigest/internal/domain"
)

func TestMemorySaveCandidatesDedupsByURL(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	n, err := store.SaveCandidates(ctx, []domain.CandidateItem{
		{Title: "a", URL: "https://x/a"},
		{Title: "a again", URL: "https://x/a"},
		{Title: "no url"},
		{Title: "b", URL: "https://x/b"},
	})
	if err != nil {
		t.Fatalf("SaveCandidates: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 inserted, got %d", n)
	}

	n, _ = store.SaveCandidates(ctx, []domain.CandidateItem{{Title: "b", URL: "https://x/b"}})
	if n != 0 {
		t.Fatalf("expected known url to be skipped, got %d", n)
	}

	ids, _ := store.UnprocessedCandidateIDs(ctx, 1)
	if len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("unexpected pending ids: %v", ids)
	}
}

func TestMemoryCommitIsAllOrNothing(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	_, _ = store.SaveCandidates(ctx, []domain.CandidateItem{{Title: "a", URL: "https://x/a"}})

	err := store.CommitVerification(ctx, domain.VerificationBatch{
		Updates: []domain.CandidateUpdate{
			{CandidateID: 1, IsVerified: true, VerificationScore: 0.9},
			{CandidateID: 42, IsVerified: true},
		},
		Records: []domain.VerifiedRecord{{CandidateID: 1, Title: "a"}},
	})
	if !errors.Is(err, ErrStaleCandidate) {
		t.Fatalf("expected ErrStaleCandidate, got %v", err)
	}

	c, _ := store.Candidate(1)
	if c.Processed {
		t.Fatalf("candidate must stay unprocessed after a failed commit")
	}
	records, _ := store.RecentRecords(ctx, 0)
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestMemoryCommitRejectsProcessedCandidates(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	_, _ = store.SaveCandidates(ctx, []domain.CandidateItem{{Title: "a", URL: "https://x/a", SourceName: "Wire"}})

	batch := domain.VerificationBatch{
		Updates: []domain.CandidateUpdate{{CandidateID: 1, IsVerified: true, VerificationScore: 0.9}},
		Records: []domain.VerifiedRecord{{CandidateID: 1, Title: "a"}},
	}
	if err := store.CommitVerification(ctx, batch); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if err := store.CommitVerification(ctx, batch); !errors.Is(err, ErrStaleCandidate) {
		t.Fatalf("expected second commit to fail, got %v", err)
	}

	records, _ := store.RecentRecords(ctx, 0)
	if len(records) != 1 || records[0].Source.SourceName != "Wire" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestMemoryAnalysisAndRecency(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 11, 8, 0, 0, 0, 0, time.UTC)

	older := store.InsertVerified(domain.VerifiedRecord{Title: "older", CreatedAt: base, PublishedAt: base})
	newer := store.InsertVerified(domain.VerifiedRecord{Title: "newer", CreatedAt: base.Add(time.Hour), PublishedAt: base.Add(time.Hour)})

	missing, _ := store.RecordsMissingAnalysis(ctx, 0)
	if len(missing) != 2 {
		t.Fatalf("expected 2 records missing analysis, got %d", len(missing))
	}

	if err := store.SaveAnalysis(ctx, older, domain.Analysis{Category: domain.CategorySports, ImpactScore: 6}); err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}
	if err := store.SaveAnalysis(ctx, 99, domain.Analysis{}); err == nil {
		t.Fatalf("expected error for unknown record")
	}

	missing, _ = store.RecordsMissingAnalysis(ctx, 0)
	if len(missing) != 1 || missing[0].ID != newer {
		t.Fatalf("unexpected missing analysis: %+v", missing)
	}

	recent, _ := store.RecentRecords(ctx, 0)
	if recent[0].ID != newer || recent[1].Category() != domain.CategorySports {
		t.Fatalf("unexpected recent order: %+v", recent)
	}

	since, _ := store.VerifiedSince(ctx, base.Add(30*time.Minute))
	if len(since) != 1 || since[0].ID != newer {
		t.Fatalf("unexpected window: %+v", since)
	}
}

func TestMemoryDigests(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	if _, ok, _ := store.LatestDigest(ctx); ok {
		t.Fatalf("expected no digest")
	}
	first, _ := store.SaveDigest(ctx, domain.Digest{GeneratedAt: time.Now()})
	second, _ := store.SaveDigest(ctx, domain.Digest{GeneratedAt: time.Now()})
	if first == second {
		t.Fatalf("each digest must get a new id")
	}
	latest, ok, err := store.LatestDigest(ctx)
	if err != nil || !ok || latest.ID != second {
		t.Fatalf("unexpected latest digest: %+v %v %v", latest, ok, err)
	}
}
