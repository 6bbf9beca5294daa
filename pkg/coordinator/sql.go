package coordinator

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

	"github.com/civicmind/civicmind/pkg/civic"
	"github.com/civicmind/civicmind/pkg/config"
)

// SQLDecisionStore persists coordination decisions in the
// coordination_decisions table.
type SQLDecisionStore struct {
	db      *sql.DB
	dialect string
}

const createCoordinationTable = `
CREATE TABLE IF NOT EXISTS coordination_decisions (
	id               VARCHAR(64) PRIMARY KEY,
	agent_type       VARCHAR(32) NOT NULL,
	location         VARCHAR(255) NOT NULL,
	resources_needed TEXT,
	estimated_cost   BIGINT NOT NULL DEFAULT 0,
	status           VARCHAR(16) NOT NULL,
	created_at       TIMESTAMP NOT NULL,
	plan_summary     TEXT,
	waits_for        TEXT
)`

// OpenSQL opens the coordination database and ensures the table exists.
func OpenSQL(cfg *config.StoreConfig) (*SQLDecisionStore, error) {
	driver := cfg.Driver
	if driver == "sqlite" {
		driver = "sqlite3"
	}
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open coordination store: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping coordination store: %w", err)
	}
	if _, err := db.ExecContext(ctx, createCoordinationTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create coordination_decisions table: %w", err)
	}
	return &SQLDecisionStore{db: db, dialect: cfg.Driver}, nil
}

func (s *SQLDecisionStore) rebind(query string) string {
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
func (s *SQLDecisionStore) Close() error { return s.db.Close() }

func (s *SQLDecisionStore) Insert(ctx context.Context, dec *civic.CoordinationDecision) error {
	resources, _ := json.Marshal(dec.ResourcesNeeded)
	waits, _ := json.Marshal(dec.WaitsFor)
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO coordination_decisions
		 (id, agent_type, location, resources_needed, estimated_cost, status, created_at, plan_summary, waits_for)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		dec.ID, string(dec.AgentType), dec.Location, string(resources),
		int64(dec.EstimatedCost), string(dec.Status), dec.CreatedAt,
		dec.PlanSummary, string(waits))
	if err != nil {
		return fmt.Errorf("insert coordination decision: %w", err)
	}
	return nil
}

func (s *SQLDecisionStore) Get(ctx context.Context, id string) (*civic.CoordinationDecision, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, agent_type, location, resources_needed, estimated_cost, status, created_at, plan_summary, waits_for
		 FROM coordination_decisions WHERE id = ?`), id)
	dec, err := scanDecision(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return dec, err
}

func (s *SQLDecisionStore) Active(ctx context.Context, since time.Time) ([]*civic.CoordinationDecision, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, agent_type, location, resources_needed, estimated_cost, status, created_at, plan_summary, waits_for
		 FROM coordination_decisions WHERE status = 'active' AND created_at > ?`), since)
	if err != nil {
		return nil, fmt.Errorf("list active coordination decisions: %w", err)
	}
	defer rows.Close()

	var out []*civic.CoordinationDecision
	for rows.Next() {
		dec, err := scanDecision(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, dec)
	}
	return out, rows.Err()
}

func (s *SQLDecisionStore) SetStatus(ctx context.Context, id string, status civic.CoordinationStatus) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE coordination_decisions SET status = ? WHERE id = ? AND status = 'active'`),
		string(status), id)
	if err != nil {
		return fmt.Errorf("update coordination decision: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Already transitioned, or unknown; distinguish for the caller.
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func scanDecision(scan func(...any) error) (*civic.CoordinationDecision, error) {
	var dec civic.CoordinationDecision
	var agent, status, resources, waits string
	var cost int64
	if err := scan(&dec.ID, &agent, &dec.Location, &resources, &cost,
		&status, &dec.CreatedAt, &dec.PlanSummary, &waits); err != nil {
		return nil, err
	}
	dec.AgentType = civic.AgentType(agent)
	dec.Status = civic.CoordinationStatus(status)
	dec.EstimatedCost = civic.Money(cost)
	if resources != "" {
		_ = json.Unmarshal([]byte(resources), &dec.ResourcesNeeded)
	}
	if waits != "" {
		_ = json.Unmarshal([]byte(waits), &dec.WaitsFor)
	}
	return &dec, nil
}

// StoreFromConfig builds a DecisionStore from configuration.
func StoreFromConfig(cfg *config.StoreConfig) (DecisionStore, error) {
	if cfg.Driver == "memory" {
		return NewMemoryDecisionStore(), nil
	}
	return OpenSQL(cfg)
}
