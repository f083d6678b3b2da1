package ports

import (
	"context"
	"errors"
	"time"

	"NewsDigest/internal/domain"
)

var (
	// ErrLeaseHeld is returned when another run owns the job lease.
	ErrLeaseHeld = errors.New("job lease held by another run")
	// ErrAnalysisQuota marks an analyzer failure caused by an exhausted provider quota.
	ErrAnalysisQuota = errors.New("analysis quota exceeded")
)

// CandidateSource pulls fresh candidate items from upstream feeds.
type CandidateSource interface {
	FetchCandidates(ctx context.Context, now time.Time) ([]domain.CandidateItem, error)
}

// CandidateRepository stores collected candidates.
type CandidateRepository interface {
	// SaveCandidates inserts new items, skipping URLs already stored, and returns the number inserted.
	SaveCandidates(ctx context.Context, items []domain.CandidateItem) (int, error)
	UnprocessedCandidateIDs(ctx context.Context, limit int) ([]int64, error)
	CandidatesByIDs(ctx context.Context, ids []int64) ([]domain.CandidateItem, error)
}

// VerifiedRepository reads and enriches verified records.
type VerifiedRepository interface {
	VerifiedSince(ctx context.Context, cutoff time.Time) ([]domain.VerifiedRecord, error)
	RecordsMissingAnalysis(ctx context.Context, limit int) ([]domain.VerifiedRecord, error)
	SaveAnalysis(ctx context.Context, recordID int64, analysis domain.Analysis) error
	// RecentRecords returns the newest records by creation time, newest first.
	RecentRecords(ctx context.Context, limit int) ([]domain.VerifiedRecord, error)
}

// VerificationCommitter applies a verification batch in a single transaction.
type VerificationCommitter interface {
	CommitVerification(ctx context.Context, batch domain.VerificationBatch) error
}

// DigestRepository persists immutable digests.
type DigestRepository interface {
	SaveDigest(ctx context.Context, digest domain.Digest) (int64, error)
	LatestDigest(ctx context.Context) (domain.Digest, bool, error)
}

// Store is the full persistence surface used by the pipeline.
type Store interface {
	CandidateRepository
	VerifiedRepository
	VerificationCommitter
	DigestRepository
}

// Embedder turns texts into dense vectors for similarity search.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	ModelName() string
}

// Analyzer enriches a verified record with category, impact and summary.
type Analyzer interface {
	Analyze(ctx context.Context, title, body string) (domain.Analysis, error)
}

// Notifier hands a finished digest to a delivery channel.
type Notifier interface {
	Deliver(ctx context.Context, delivery domain.Delivery) error
}

// DigestArchive keeps an external copy of every stored digest.
type DigestArchive interface {
	Archive(ctx context.Context, digest domain.Digest) error
}

// RunLease serialises pipeline runs across processes.
type RunLease interface {
	// Acquire returns a release func, or ErrLeaseHeld when another run holds the lease.
	Acquire(ctx context.Context, ttl time.Duration) (func(context.Context) error, error)
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
