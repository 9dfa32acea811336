package sqlstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rezkam/agentforge/internal/domain"
)

// rebind rewrites "?" placeholders into pgx's "$1", "$2", ... form when the
// target is Postgres; SQLite accepts "?" as written. Every query in this
// file is authored with "?" and passed through rebind before execution.
func rebind(driver Driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Store is the SQL-backed implementation of jobstatus.Store. It satisfies
// the same interface as jobstatus.MemoryStore so cmd/worker can swap one
// for the other behind a configuration flag, without the rest of the
// fabric knowing the difference.
type Store struct {
	db     *sql.DB
	driver Driver
}

// NewStore wraps an already-migrated *sql.DB (see Open/OpenSQLite).
func NewStore(db *sql.DB, driver Driver) *Store {
	return &Store{db: db, driver: driver}
}

// Set upserts the status record, matching jobstatus.MemoryStore.Set
// semantics (last write wins, full replace not merge).
func (s *Store) Set(info domain.JobStatusInfo) error {
	metadata, err := json.Marshal(map[string]string{})
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.db.Exec(rebind(s.driver, `
		INSERT INTO job_status (job_id, type, status, source, attempts, started_at, completed_at, last_error, metadata, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (job_id) DO UPDATE SET
			type = excluded.type,
			status = excluded.status,
			source = excluded.source,
			attempts = excluded.attempts,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			last_error = excluded.last_error,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`), info.JobID, info.Type, string(info.Status), info.Source, info.Attempts,
		nullTime(info.StartedAt), nullTime(info.CompletedAt), info.LastError, metadata, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert job status: %w", err)
	}
	return nil
}

// Get returns the status record for jobID.
func (s *Store) Get(jobID string) (domain.JobStatusInfo, bool, error) {
	row := s.db.QueryRow(rebind(s.driver, `
		SELECT job_id, type, status, source, attempts, started_at, completed_at, last_error
		FROM job_status WHERE job_id = ?
	`), jobID)
	info, err := scanStatus(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.JobStatusInfo{}, false, nil
	}
	if err != nil {
		return domain.JobStatusInfo{}, false, fmt.Errorf("get job status: %w", err)
	}
	return info, true, nil
}

// Delete removes the status record for jobID.
func (s *Store) Delete(jobID string) error {
	if _, err := s.db.Exec(rebind(s.driver, `DELETE FROM job_status WHERE job_id = ?`), jobID); err != nil {
		return fmt.Errorf("delete job status: %w", err)
	}
	return nil
}

// ListByStatus returns a descending-startedAt page of jobs in status.
func (s *Store) ListByStatus(status domain.JobStatus, skip, take int) ([]domain.JobStatusInfo, error) {
	return s.listWhere("status = ?", string(status), skip, take)
}

// ListByType returns a descending-startedAt page of jobs of jobType.
func (s *Store) ListByType(jobType string, skip, take int) ([]domain.JobStatusInfo, error) {
	return s.listWhere("type = ?", jobType, skip, take)
}

// ListBySource returns a descending-startedAt page of jobs from source.
func (s *Store) ListBySource(source string, skip, take int) ([]domain.JobStatusInfo, error) {
	return s.listWhere("source = ?", source, skip, take)
}

func (s *Store) listWhere(predicate, value string, skip, take int) ([]domain.JobStatusInfo, error) {
	if take <= 0 {
		take = 1 << 30
	}
	rows, err := s.db.Query(rebind(s.driver, fmt.Sprintf(`
		SELECT job_id, type, status, source, attempts, started_at, completed_at, last_error
		FROM job_status WHERE %s
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`, predicate)), value, take, skip)
	if err != nil {
		return nil, fmt.Errorf("list job status: %w", err)
	}
	defer rows.Close()

	var out []domain.JobStatusInfo
	for rows.Next() {
		info, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job status: %w", err)
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job status rows: %w", err)
	}
	if out == nil {
		out = []domain.JobStatusInfo{}
	}
	return out, nil
}

// Metrics returns the aggregate count of jobs per status.
func (s *Store) Metrics() (map[domain.JobStatus]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM job_status GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("aggregate job status metrics: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.JobStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan job status metrics: %w", err)
		}
		out[domain.JobStatus(status)] = count
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStatus(row scanner) (domain.JobStatusInfo, error) {
	var info domain.JobStatusInfo
	var status string
	var startedAt, completedAt sql.NullTime
	if err := row.Scan(&info.JobID, &info.Type, &status, &info.Source, &info.Attempts, &startedAt, &completedAt, &info.LastError); err != nil {
		return domain.JobStatusInfo{}, err
	}
	info.Status = domain.JobStatus(status)
	if startedAt.Valid {
		t := startedAt.Time
		info.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		info.CompletedAt = &t
	}
	return info, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// Dedup is the SQL-backed DeduplicationIndex, durable across worker
// restarts: a crashed worker's in-flight keys survive in the dedup_keys
// table until explicitly unregistered.
type Dedup struct {
	db     *sql.DB
	driver Driver
}

// NewDedup wraps an already-migrated *sql.DB.
func NewDedup(db *sql.DB, driver Driver) *Dedup {
	return &Dedup{db: db, driver: driver}
}

// GetInFlight returns the job id currently registered under key.
func (d *Dedup) GetInFlight(key string) (string, bool) {
	var jobID string
	err := d.db.QueryRow(rebind(d.driver, `SELECT job_id FROM dedup_keys WHERE idempotency_key = ?`), key).Scan(&jobID)
	if err != nil {
		return "", false
	}
	return jobID, true
}

// Register attempts to atomically claim key for jobID.
func (d *Dedup) Register(jobID, key string) (string, bool) {
	_, err := d.db.Exec(rebind(d.driver, `INSERT INTO dedup_keys (idempotency_key, job_id, registered_at) VALUES (?, ?, ?)`),
		key, jobID, time.Now().UTC())
	if err == nil {
		return jobID, true
	}
	if owner, ok := d.GetInFlight(key); ok {
		return owner, false
	}
	return "", false
}

// Unregister removes every key mapped to jobID.
func (d *Dedup) Unregister(jobID string) {
	d.db.Exec(rebind(d.driver, `DELETE FROM dedup_keys WHERE job_id = ?`), jobID)
}

// ClearAll removes every mapping.
func (d *Dedup) ClearAll() {
	d.db.Exec(`DELETE FROM dedup_keys`)
}
