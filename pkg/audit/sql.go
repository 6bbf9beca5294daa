package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/civicmind/civicmind/pkg/config"
)

// SQLStore persists audit records in the agent_decisions table. Indexed
// columns carry the fields reviewers filter on; the full record is stored as
// a JSON payload column so the schema never chases the Record struct.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

const createAuditTable = `
CREATE TABLE IF NOT EXISTS agent_decisions (
	id         VARCHAR(64) PRIMARY KEY,
	job_id     VARCHAR(64) NOT NULL,
	agent_type VARCHAR(32) NOT NULL,
	location   VARCHAR(255) NOT NULL,
	decision   VARCHAR(16) NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMP NOT NULL,
	payload    TEXT NOT NULL
)`

// OpenSQL opens the audit database and ensures the table exists.
func OpenSQL(cfg *config.StoreConfig) (*SQLStore, error) {
	driver := cfg.Driver
	if driver == "sqlite" {
		driver = "sqlite3"
	}
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping audit store: %w", err)
	}
	if _, err := db.ExecContext(ctx, createAuditTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create agent_decisions table: %w", err)
	}
	return &SQLStore{db: db, dialect: cfg.Driver}, nil
}

func (s *SQLStore) rebind(query string) string {
	if s.dialect != "postgres" {
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

// Close releases the connection pool.
func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) Append(ctx context.Context, rec *Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	location := ""
	if rec.Request != nil {
		location = rec.Request.Location
	}
	_, err = s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO agent_decisions (id, job_id, agent_type, location, decision, confidence, created_at, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.JobID, string(rec.AgentType), location,
		string(rec.Decision), rec.Confidence, rec.CreatedAt, string(payload))
	if err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Record, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		s.rebind(`SELECT payload FROM agent_decisions WHERE id = ?`), id))
}

func (s *SQLStore) ByJob(ctx context.Context, jobID string) (*Record, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		s.rebind(`SELECT payload FROM agent_decisions WHERE job_id = ? ORDER BY created_at DESC LIMIT 1`), jobID))
}

func (s *SQLStore) Recent(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT payload FROM agent_decisions ORDER BY created_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var rec Record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("decode audit record: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *SQLStore) scanOne(row *sql.Row) (*Record, error) {
	var payload string
	err := row.Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("decode audit record: %w", err)
	}
	return &rec, nil
}

// FromConfig builds a Store from configuration.
func FromConfig(cfg *config.StoreConfig) (Store, error) {
	if cfg.Driver == "memory" {
		return NewMemoryStore(), nil
	}
	return OpenSQL(cfg)
}
