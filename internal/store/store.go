package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/ramonfullstack/automation-scripts/internal/audit"
	"github.com/ramonfullstack/automation-scripts/internal/capture"
	"github.com/ramonfullstack/automation-scripts/internal/secrets"
)

// DBPool abstracts pgxpool.Pool so tests can substitute pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Schema creates the hit-log tables. Raw bearer tokens are never stored;
// only their masked form and fingerprint.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_runs (
    id         UUID PRIMARY KEY,
    target_url TEXT NOT NULL,
    started_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS audit_hits (
    run_id        UUID NOT NULL REFERENCES audit_runs (id),
    phase         INTEGER NOT NULL,
    seq           INTEGER NOT NULL,
    label         TEXT NOT NULL,
    offset_ms     BIGINT NOT NULL,
    method        TEXT NOT NULL,
    url           TEXT NOT NULL,
    has_bearer    BOOLEAN NOT NULL,
    bearer_masked TEXT,
    bearer_hash   TEXT,
    tenant_id     TEXT,
    tenant_hash   TEXT,
    origin        TEXT,
    referer       TEXT,
    PRIMARY KEY (run_id, phase, seq)
);
CREATE TABLE IF NOT EXISTS audit_captures (
    run_id      UUID NOT NULL REFERENCES audit_runs (id),
    tenant_hash TEXT NOT NULL,
    bearer_hash TEXT NOT NULL,
    url         TEXT NOT NULL,
    captured_at TIMESTAMPTZ NOT NULL
);`

var hitColumns = []string{
	"run_id", "phase", "seq", "label", "offset_ms", "method", "url", "has_bearer",
	"bearer_masked", "bearer_hash", "tenant_id", "tenant_hash", "origin", "referer",
}

// Run identifies one audit run in the hit log.
type Run struct {
	ID        uuid.UUID
	TargetURL string
	StartedAt time.Time
}

// Store mirrors audit results into PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
	now  func() time.Time
}

// New creates a store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
		now:  time.Now,
	}, nil
}

// EnsureSchema creates the tables if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// BeginRun records the start of a run.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_runs (id, target_url, started_at) VALUES ($1, $2, $3)`,
		run.ID.String(), run.TargetURL, run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	return nil
}

// PersistHits copies one phase's frozen hit log in a single transaction.
// phase is the position of the phase within the run and orders read-back.
func (s *Store) PersistHits(ctx context.Context, runID uuid.UUID, phase int, hits []audit.Hit) error {
	if len(hits) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	rows := make([][]interface{}, len(hits))
	for i, h := range hits {
		rows[i] = []interface{}{
			runID.String(), phase, i, h.Label, h.OffsetMillis, h.Method, h.URL, h.HasBearer,
			h.BearerMasked, h.BearerHash, h.TenantID, h.TenantHash, h.Origin, h.Referer,
		}
	}

	copied, err := tx.CopyFrom(ctx, pgx.Identifier{"audit_hits"}, hitColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy hits: %w", err)
	}
	if int(copied) != len(hits) {
		return fmt.Errorf("mismatch in copied hits count: expected %d, got %d", len(hits), copied)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Persisted hits", zap.String("run_id", runID.String()), zap.Int("phase", phase), zap.Int("count", len(hits)))
	return nil
}

// RecordCapture notes that a pair was written to the capture file. Only
// fingerprints are kept; the token is hashed in header form so it joins
// audit_hits.bearer_hash.
func (s *Store) RecordCapture(ctx context.Context, runID uuid.UUID, pair capture.Pair) error {
	if err := pair.Validate(); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_captures (run_id, tenant_hash, bearer_hash, url, captured_at) VALUES ($1, $2, $3, $4, $5)`,
		runID.String(), secrets.Fingerprint(pair.TenantID), secrets.Fingerprint("Bearer "+pair.Token), pair.URL, s.now(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert capture: %w", err)
	}
	return nil
}

// GetHitsByRun reads a run's hits back in the order the phases ran, then in
// arrival order. The
// returned hits never carry a raw token.
func (s *Store) GetHitsByRun(ctx context.Context, runID uuid.UUID) ([]audit.Hit, error) {
	query := `
        SELECT label, offset_ms, method, url, has_bearer, bearer_masked, bearer_hash, tenant_id, tenant_hash, origin, referer
        FROM audit_hits
        WHERE run_id = $1
        ORDER BY phase ASC, seq ASC;
    `
	rows, err := s.pool.Query(ctx, query, runID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query hits: %w", err)
	}
	defer rows.Close()

	hits := []audit.Hit{}
	for rows.Next() {
		var h audit.Hit
		err := rows.Scan(
			&h.Label, &h.OffsetMillis, &h.Method, &h.URL, &h.HasBearer,
			&h.BearerMasked, &h.BearerHash, &h.TenantID, &h.TenantHash,
			&h.Origin, &h.Referer,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan hit row: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return hits, nil
}
