package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver
	"github.com/jmoiron/sqlx"

	"github.com/ahrav/finjudge/internal/domain"
)

// schema is applied by Migrate. Traces are stored as json, not jsonb, so the
// recorded bytes come back exactly as written.
const schema = `
CREATE TABLE IF NOT EXISTS finjudge_traces (
	seq         BIGSERIAL,
	run_id      TEXT NOT NULL,
	task_id     TEXT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL,
	final_score DOUBLE PRECISION NOT NULL,
	trace       JSON NOT NULL,
	PRIMARY KEY (run_id, task_id)
);
CREATE INDEX IF NOT EXISTS finjudge_traces_run_seq ON finjudge_traces (run_id, seq);
CREATE TABLE IF NOT EXISTS finjudge_manifests (
	run_id     TEXT PRIMARY KEY,
	manifest   JSON NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// PostgresStore keeps traces in Postgres through sqlx and the pgx driver.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an open connection pool.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects to dsn and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := NewPostgresStore(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the trace and manifest tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate trace schema: %w", err)
	}
	return nil
}

// Put implements Store.
func (s *PostgresStore) Put(ctx context.Context, t *domain.Trace) error {
	if err := domain.ValidateRunID(t.RunID); err != nil {
		return err
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode trace: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO finjudge_traces (run_id, task_id, recorded_at, final_score, trace)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id, task_id) DO NOTHING`,
		t.RunID, t.TaskID, t.RecordedAt, t.Score.FinalScore, string(data))
	if err != nil {
		return fmt.Errorf("insert trace %s/%s: %w", t.RunID, t.TaskID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert trace %s/%s: %w", t.RunID, t.TaskID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", ErrTraceExists, t.RunID, t.TaskID)
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, runID, taskID string) (*domain.Trace, error) {
	if err := domain.ValidateRunID(runID); err != nil {
		return nil, err
	}
	var data string
	err := s.db.GetContext(ctx, &data,
		`SELECT trace FROM finjudge_traces WHERE run_id = $1 AND task_id = $2`, runID, taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrTraceNotFound, runID, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("select trace %s/%s: %w", runID, taskID, err)
	}
	return decodeTrace([]byte(data))
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, runID string) ([]*domain.Trace, error) {
	if err := domain.ValidateRunID(runID); err != nil {
		return nil, err
	}
	var rows []string
	err := s.db.SelectContext(ctx, &rows,
		`SELECT trace FROM finjudge_traces WHERE run_id = $1 ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("select traces %s: %w", runID, err)
	}
	out := make([]*domain.Trace, 0, len(rows))
	for _, r := range rows {
		t, err := decodeTrace([]byte(r))
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// PutManifest implements ManifestStore.
func (s *PostgresStore) PutManifest(ctx context.Context, m domain.RunManifest) error {
	if err := domain.ValidateRunID(m.RunID); err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO finjudge_manifests (run_id, manifest) VALUES ($1, $2)
		ON CONFLICT (run_id) DO UPDATE SET manifest = EXCLUDED.manifest, updated_at = now()`,
		m.RunID, string(data))
	if err != nil {
		return fmt.Errorf("upsert manifest %s: %w", m.RunID, err)
	}
	return nil
}

// GetManifest implements ManifestStore.
func (s *PostgresStore) GetManifest(ctx context.Context, runID string) (domain.RunManifest, error) {
	if err := domain.ValidateRunID(runID); err != nil {
		return domain.RunManifest{}, err
	}
	var data string
	err := s.db.GetContext(ctx, &data, `SELECT manifest FROM finjudge_manifests WHERE run_id = $1`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RunManifest{}, fmt.Errorf("%w: %s", ErrManifestNotFound, runID)
	}
	if err != nil {
		return domain.RunManifest{}, fmt.Errorf("select manifest %s: %w", runID, err)
	}
	var m domain.RunManifest
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return domain.RunManifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }
