package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

// ErrStaleCandidate is returned when a batch touches a missing or already processed candidate.
var ErrStaleCandidate = errors.New("candidate missing or already processed")

// MemoryStore keeps all pipeline state in process memory.
type MemoryStore struct {
	mu sync.RWMutex

	nextCandidateID int64
	nextRecordID    int64
	nextDigestID    int64

	candidates map[int64]domain.CandidateItem
	byURL      map[string]int64
	records    []domain.VerifiedRecord
	digests    []domain.Digest

	now func() time.Time
}

var _ ports.Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		candidates: map[int64]domain.CandidateItem{},
		byURL:      map[string]int64{},
		now:        time.Now,
	}
}

// SaveCandidates inserts items whose URL is not stored yet.
func (m *MemoryStore) SaveCandidates(ctx context.Context, items []domain.CandidateItem) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inserted := 0
	for _, item := range items {
		if item.URL == "" {
			continue
		}
		if _, ok := m.byURL[item.URL]; ok {
			continue
		}
		m.nextCandidateID++
		item.ID = m.nextCandidateID
		item.Processed = false
		item.IsVerified = false
		item.Duplicate = false
		item.VerificationScore = 0
		if item.CollectedAt.IsZero() {
			item.CollectedAt = m.now().UTC()
		}
		m.candidates[item.ID] = item
		m.byURL[item.URL] = item.ID
		inserted++
	}
	return inserted, nil
}

// UnprocessedCandidateIDs returns pending ids in insertion order.
func (m *MemoryStore) UnprocessedCandidateIDs(ctx context.Context, limit int) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]int64, 0)
	for id, c := range m.candidates {
		if !c.Processed {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// CandidatesByIDs returns the stored candidates in request order; unknown ids are omitted.
func (m *MemoryStore) CandidatesByIDs(ctx context.Context, ids []int64) ([]domain.CandidateItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.CandidateItem, 0, len(ids))
	for _, id := range ids {
		if c, ok := m.candidates[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// CommitVerification validates the whole batch before applying any of it.
func (m *MemoryStore) CommitVerification(ctx context.Context, batch domain.VerificationBatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[int64]bool, len(batch.Updates))
	for _, u := range batch.Updates {
		c, ok := m.candidates[u.CandidateID]
		if !ok || c.Processed || seen[u.CandidateID] {
			return fmt.Errorf("candidate %d: %w", u.CandidateID, ErrStaleCandidate)
		}
		seen[u.CandidateID] = true
	}
	for _, r := range batch.Records {
		if !seen[r.CandidateID] {
			return fmt.Errorf("record for candidate %d has no update: %w", r.CandidateID, ErrStaleCandidate)
		}
	}

	for _, u := range batch.Updates {
		c := m.candidates[u.CandidateID]
		c.Processed = true
		c.IsVerified = u.IsVerified
		c.Duplicate = u.Duplicate
		c.VerificationScore = u.VerificationScore
		m.candidates[u.CandidateID] = c
	}

	for _, r := range batch.Records {
		m.nextRecordID++
		r.ID = m.nextRecordID
		if r.CreatedAt.IsZero() {
			r.CreatedAt = m.now().UTC()
		}
		c := m.candidates[r.CandidateID]
		r.Source = domain.SourceRef{
			CandidateID: c.ID,
			SourceID:    c.SourceID,
			SourceName:  c.SourceName,
			URL:         c.URL,
			ImageURL:    c.ImageURL,
		}
		r.Analysis = copyAnalysis(r.Analysis)
		m.records = append(m.records, r)
	}
	return nil
}

// VerifiedSince returns records with a known publication time at or after cutoff.
func (m *MemoryStore) VerifiedSince(ctx context.Context, cutoff time.Time) ([]domain.VerifiedRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.VerifiedRecord, 0)
	for _, r := range m.records {
		if r.PublishedAt.IsZero() || r.PublishedAt.Before(cutoff) {
			continue
		}
		out = append(out, cloneRecord(r))
	}
	return out, nil
}

// RecordsMissingAnalysis returns up to limit records without enrichment, oldest first.
func (m *MemoryStore) RecordsMissingAnalysis(ctx context.Context, limit int) ([]domain.VerifiedRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.VerifiedRecord, 0)
	for _, r := range m.records {
		if r.Analysis != nil {
			continue
		}
		out = append(out, cloneRecord(r))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// SaveAnalysis attaches enrichment to a record.
func (m *MemoryStore) SaveAnalysis(ctx context.Context, recordID int64, analysis domain.Analysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.records {
		if m.records[i].ID == recordID {
			m.records[i].Analysis = copyAnalysis(&analysis)
			return nil
		}
	}
	return fmt.Errorf("verified record %d not found", recordID)
}

// RecentRecords returns the newest records by creation time.
func (m *MemoryStore) RecentRecords(ctx context.Context, limit int) ([]domain.VerifiedRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.VerifiedRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, cloneRecord(r))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SaveDigest stores a new digest and returns its id.
func (m *MemoryStore) SaveDigest(ctx context.Context, digest domain.Digest) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextDigestID++
	digest.ID = m.nextDigestID
	m.digests = append(m.digests, digest)
	return digest.ID, nil
}

// LatestDigest returns the most recently stored digest.
func (m *MemoryStore) LatestDigest(ctx context.Context) (domain.Digest, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.digests) == 0 {
		return domain.Digest{}, false, nil
	}
	return m.digests[len(m.digests)-1], true, nil
}

// Candidate returns a stored candidate; intended for inspection in tests and ops tooling.
func (m *MemoryStore) Candidate(id int64) (domain.CandidateItem, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.candidates[id]
	return c, ok
}

// InsertVerified stores a record directly, bypassing verification. Used to seed history.
func (m *MemoryStore) InsertVerified(record domain.VerifiedRecord) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRecordID++
	record.ID = m.nextRecordID
	record.Analysis = copyAnalysis(record.Analysis)
	m.records = append(m.records, record)
	return record.ID
}

func cloneRecord(r domain.VerifiedRecord) domain.VerifiedRecord {
	r.Analysis = copyAnalysis(r.Analysis)
	return r
}

func copyAnalysis(a *domain.Analysis) *domain.Analysis {
	if a == nil {
		return nil
	}
	cp := *a
	cp.SummaryBullets = append([]string(nil), a.SummaryBullets...)
	cp.ImpactTags = append([]string(nil), a.ImpactTags...)
	return &cp
}
