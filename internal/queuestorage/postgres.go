package queuestorage

import (
	"context"
	"errors"

	"github.com/geocoder89/jobrt/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a durable Storage backed by a pgxpool.Pool, grounded on
// the teacher's internal/repo/postgres.JobsRepo: the same
// observe(op, fn)/Metrics.ObserveDB wrapper around every statement, and
// the same errors.Is(pgx.ErrNoRows) "not found" translation. The schema
// is the single table spec §6 says the core persists:
//
//	offline_queue_entries(id, job_type, payload, retry_count,
//	                       created_at, status, last_error)
type Postgres struct {
	pool    *pgxpool.Pool
	metrics *observability.Metrics
}

func NewPostgres(pool *pgxpool.Pool, metrics *observability.Metrics) *Postgres {
	return &Postgres{pool: pool, metrics: metrics}
}

func (s *Postgres) observe(op string, fn func() error) error {
	if s.metrics != nil {
		return s.metrics.ObserveDB(op, fn)
	}
	return fn()
}

// Schema returns the DDL for the offline queue table, executed by host
// bootstrap code the same way the teacher's migrations create `jobs`.
const Schema = `
CREATE TABLE IF NOT EXISTS offline_queue_entries (
	id          TEXT PRIMARY KEY,
	job_type    TEXT NOT NULL,
	payload     BYTEA NOT NULL,
	retry_count INT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	status      TEXT NOT NULL,
	last_error  TEXT NOT NULL DEFAULT ''
);
`

func (s *Postgres) Save(e Entry) error {
	ctx := context.Background()
	op := "offline_queue.save"

	return s.observe(op, func() error {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO offline_queue_entries
				(id, job_type, payload, retry_count, created_at, status, last_error)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (id) DO UPDATE SET
				job_type = EXCLUDED.job_type,
				payload = EXCLUDED.payload,
				retry_count = EXCLUDED.retry_count,
				status = EXCLUDED.status,
				last_error = EXCLUDED.last_error
		`, e.JobID, e.JobType, e.Payload, e.RetryCount, e.CreatedAt, string(e.Status), e.LastError)
		return err
	})
}

func (s *Postgres) Get(id string) (Entry, bool, error) {
	ctx := context.Background()
	op := "offline_queue.get"

	var e Entry
	var status string

	err := s.observe(op, func() error {
		return s.pool.QueryRow(ctx, `
			SELECT id, job_type, payload, retry_count, created_at, status, last_error
			FROM offline_queue_entries
			WHERE id = $1
		`, id).Scan(&e.JobID, &e.JobType, &e.Payload, &e.RetryCount, &e.CreatedAt, &status, &e.LastError)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}

	e.Status = Status(status)
	return e, true, nil
}

// GetAll returns entries ordered by created_at, matching spec §4.5's
// "drain() iterates pending entries in insertion order".
func (s *Postgres) GetAll() ([]Entry, error) {
	ctx := context.Background()
	op := "offline_queue.get_all"

	var rows pgx.Rows
	err := s.observe(op, func() error {
		var qerr error
		rows, qerr = s.pool.Query(ctx, `
			SELECT id, job_type, payload, retry_count, created_at, status, last_error
			FROM offline_queue_entries
			ORDER BY created_at ASC
		`)
		return qerr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var status string
		if err := rows.Scan(&e.JobID, &e.JobType, &e.Payload, &e.RetryCount, &e.CreatedAt, &status, &e.LastError); err != nil {
			return nil, err
		}
		e.Status = Status(status)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Postgres) Update(id string, patch Patch) error {
	ctx := context.Background()
	op := "offline_queue.update"

	existing, ok, err := s.Get(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}

	if patch.RetryCount != nil {
		existing.RetryCount = *patch.RetryCount
	}
	if patch.Status != nil {
		existing.Status = *patch.Status
	}
	if patch.LastError != nil {
		existing.LastError = *patch.LastError
	}

	return s.observe(op, func() error {
		tag, err := s.pool.Exec(ctx, `
			UPDATE offline_queue_entries
			SET retry_count = $2, status = $3, last_error = $4
			WHERE id = $1
		`, id, existing.RetryCount, string(existing.Status), existing.LastError)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *Postgres) Remove(id string) error {
	ctx := context.Background()
	op := "offline_queue.remove"

	return s.observe(op, func() error {
		_, err := s.pool.Exec(ctx, `DELETE FROM offline_queue_entries WHERE id = $1`, id)
		return err
	})
}

func (s *Postgres) Clear() error {
	ctx := context.Background()
	op := "offline_queue.clear"

	return s.observe(op, func() error {
		_, err := s.pool.Exec(ctx, `DELETE FROM offline_queue_entries`)
		return err
	})
}
