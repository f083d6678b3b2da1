package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

//go:embed schema.sql
var schema string

const insertChunk = 500

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresRepository persists candidates, verified records and digests into Postgres.
type PostgresRepository struct {
	db *sql.DB
}

var _ ports.Store = (*PostgresRepository)(nil)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string, maxOpenConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate creates the tables when they do not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// SaveCandidates inserts items, ignoring URLs that are already stored.
func (r *PostgresRepository) SaveCandidates(ctx context.Context, items []domain.CandidateItem) (int, error) {
	inserted := 0
	for start := 0; start < len(items); start += insertChunk {
		end := min(start+insertChunk, len(items))

		builder := psql.Insert("raw_news").
			Columns("source_id", "source_name", "author", "title", "description", "content",
				"url", "url_to_image", "published_at", "collected_at").
			Suffix("ON CONFLICT (url) DO NOTHING")

		rows := 0
		for _, item := range items[start:end] {
			if item.URL == "" {
				continue
			}
			collected := item.CollectedAt
			if collected.IsZero() {
				collected = time.Now().UTC()
			}
			builder = builder.Values(item.SourceID, item.SourceName, item.Author, item.Title, item.Description,
				nullString(item.Body), item.URL, item.ImageURL, nullTime(item.PublishedAt), collected)
			rows++
		}
		if rows == 0 {
			continue
		}

		query, args, err := builder.ToSql()
		if err != nil {
			return inserted, fmt.Errorf("build insert candidates: %w", err)
		}
		res, err := r.db.ExecContext(ctx, query, args...)
		if err != nil {
			return inserted, fmt.Errorf("insert candidates: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(affected)
	}
	return inserted, nil
}

// UnprocessedCandidateIDs returns pending candidate ids, oldest first.
func (r *PostgresRepository) UnprocessedCandidateIDs(ctx context.Context, limit int) ([]int64, error) {
	builder := psql.Select("id").From("raw_news").Where("NOT processed").OrderBy("id")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pending query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}
	return ids, nil
}

// CandidatesByIDs loads candidates in the requested order; unknown ids are omitted.
func (r *PostgresRepository) CandidatesByIDs(ctx context.Context, ids []int64) ([]domain.CandidateItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := psql.Select("id", "source_id", "source_name", "author", "title", "description", "content",
		"url", "url_to_image", "published_at", "collected_at", "verification_score", "is_verified", "duplicate", "processed").
		From("raw_news").
		Where(sq.Expr("id = ANY(?)", pq.Array(ids))).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build candidates query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}

	byID := make(map[int64]domain.CandidateItem, len(ids))
	for rows.Next() {
		var (
			c         domain.CandidateItem
			content   sql.NullString
			published sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.SourceID, &c.SourceName, &c.Author, &c.Title, &c.Description, &content,
			&c.URL, &c.ImageURL, &published, &c.CollectedAt, &c.VerificationScore, &c.IsVerified, &c.Duplicate, &c.Processed); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		c.Body = content.String
		if published.Valid {
			c.PublishedAt = published.Time
		}
		byID[c.ID] = c
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	out := make([]domain.CandidateItem, 0, len(byID))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// CommitVerification marks candidates processed and inserts verified records in one transaction.
func (r *PostgresRepository) CommitVerification(ctx context.Context, batch domain.VerificationBatch) (err error) {
	if batch.Empty() {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
		}
	}()

	for _, u := range batch.Updates {
		query, args, buildErr := psql.Update("raw_news").
			Set("processed", true).
			Set("is_verified", u.IsVerified).
			Set("duplicate", u.Duplicate).
			Set("verification_score", u.VerificationScore).
			Where(sq.Eq{"id": u.CandidateID}).
			Where("NOT processed").
			ToSql()
		if buildErr != nil {
			return fmt.Errorf("build candidate update: %w", buildErr)
		}
		res, execErr := tx.ExecContext(ctx, query, args...)
		if execErr != nil {
			return fmt.Errorf("update candidate %d: %w", u.CandidateID, execErr)
		}
		affected, affErr := res.RowsAffected()
		if affErr != nil {
			return fmt.Errorf("rows affected: %w", affErr)
		}
		if affected != 1 {
			return fmt.Errorf("candidate %d: %w", u.CandidateID, ErrStaleCandidate)
		}
	}

	if len(batch.Records) > 0 {
		builder := psql.Insert("verified_news").
			Columns("raw_news_id", "title", "content", "credibility_score", "published_at", "created_at")
		for _, rec := range batch.Records {
			created := rec.CreatedAt
			if created.IsZero() {
				created = time.Now().UTC()
			}
			builder = builder.Values(rec.CandidateID, rec.Title, rec.Body, rec.CredibilityScore,
				nullTime(rec.PublishedAt), created)
		}
		query, args, buildErr := builder.ToSql()
		if buildErr != nil {
			return fmt.Errorf("build verified insert: %w", buildErr)
		}
		if _, execErr := tx.ExecContext(ctx, query, args...); execErr != nil {
			return fmt.Errorf("insert verified: %w", execErr)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func verifiedSelect() sq.SelectBuilder {
	return psql.Select("v.id", "v.raw_news_id", "v.title", "v.content", "v.credibility_score",
		"v.published_at", "v.created_at", "v.analysis",
		"r.source_id", "r.source_name", "r.url", "r.url_to_image").
		From("verified_news v").
		Join("raw_news r ON r.id = v.raw_news_id")
}

// VerifiedSince returns records published at or after cutoff.
func (r *PostgresRepository) VerifiedSince(ctx context.Context, cutoff time.Time) ([]domain.VerifiedRecord, error) {
	return r.queryRecords(ctx, verifiedSelect().
		Where(sq.GtOrEq{"v.published_at": cutoff}).
		OrderBy("v.id"))
}

// RecordsMissingAnalysis returns up to limit records without enrichment.
func (r *PostgresRepository) RecordsMissingAnalysis(ctx context.Context, limit int) ([]domain.VerifiedRecord, error) {
	builder := verifiedSelect().Where("v.analysis IS NULL").OrderBy("v.id")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	return r.queryRecords(ctx, builder)
}

// RecentRecords returns the newest records by creation time.
func (r *PostgresRepository) RecentRecords(ctx context.Context, limit int) ([]domain.VerifiedRecord, error) {
	builder := verifiedSelect().OrderBy("v.created_at DESC", "v.id DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	return r.queryRecords(ctx, builder)
}

// SaveAnalysis stores the enrichment together with its indexed columns.
func (r *PostgresRepository) SaveAnalysis(ctx context.Context, recordID int64, analysis domain.Analysis) error {
	payload, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}

	query, args, err := psql.Update("verified_news").
		Set("analysis", string(payload)).
		Set("category", analysis.Category).
		Set("impact_score", analysis.ImpactScore).
		Where(sq.Eq{"id": recordID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build analysis update: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update analysis: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("verified record %d not found", recordID)
	}
	return nil
}

// SaveDigest inserts a new digest row.
func (r *PostgresRepository) SaveDigest(ctx context.Context, digest domain.Digest) (int64, error) {
	payload, err := json.Marshal(digest)
	if err != nil {
		return 0, fmt.Errorf("marshal digest: %w", err)
	}

	query, args, err := psql.Insert("daily_digests").
		Columns("generated_at", "content").
		Values(digest.GeneratedAt, string(payload)).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build digest insert: %w", err)
	}

	var id int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert digest: %w", err)
	}
	return id, nil
}

// LatestDigest loads the newest digest.
func (r *PostgresRepository) LatestDigest(ctx context.Context) (domain.Digest, bool, error) {
	query, args, err := psql.Select("id", "content").From("daily_digests").
		OrderBy("id DESC").Limit(1).ToSql()
	if err != nil {
		return domain.Digest{}, false, fmt.Errorf("build digest query: %w", err)
	}

	var (
		id      int64
		payload []byte
	)
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&id, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Digest{}, false, nil
	}
	if err != nil {
		return domain.Digest{}, false, fmt.Errorf("query digest: %w", err)
	}

	var digest domain.Digest
	if err := json.Unmarshal(payload, &digest); err != nil {
		return domain.Digest{}, false, fmt.Errorf("decode digest %d: %w", id, err)
	}
	digest.ID = id
	return digest, true, nil
}

func (r *PostgresRepository) queryRecords(ctx context.Context, builder sq.SelectBuilder) ([]domain.VerifiedRecord, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build records query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}

	var records []domain.VerifiedRecord
	for rows.Next() {
		var (
			rec       domain.VerifiedRecord
			published sql.NullTime
			analysis  []byte
		)
		if err := rows.Scan(&rec.ID, &rec.CandidateID, &rec.Title, &rec.Body, &rec.CredibilityScore,
			&published, &rec.CreatedAt, &analysis,
			&rec.Source.SourceID, &rec.Source.SourceName, &rec.Source.URL, &rec.Source.ImageURL); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if published.Valid {
			rec.PublishedAt = published.Time
		}
		rec.Source.CandidateID = rec.CandidateID
		if analysis != nil {
			var a domain.Analysis
			if err := json.Unmarshal(analysis, &a); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("decode analysis for record %d: %w", rec.ID, err)
			}
			rec.Analysis = &a
		}
		records = append(records, rec)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}
	return records, nil
}

func closeRows(rows *sql.Rows) error {
	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return fmt.Errorf("rows iteration: %w", rowsErr)
	}
	if closeErr := rows.Close(); closeErr != nil {
		return fmt.Errorf("close rows: %w", closeErr)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
