package contextstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	// Database drivers, selected by config driver name.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/civicmind/civicmind/pkg/civic"
	"github.com/civicmind/civicmind/pkg/config"
)

// SQLStore reads snapshots from the department context database. The service
// never writes these tables; they are maintained by the departments' own
// systems.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// OpenSQL opens the context database described by cfg. The cfg driver name
// "sqlite" maps to the go-sqlite3 driver.
func OpenSQL(cfg *config.StoreConfig) (*SQLStore, error) {
	driver := cfg.Driver
	if driver == "sqlite" {
		driver = "sqlite3"
	}
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open context store: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping context store: %w", err)
	}
	return &SQLStore{db: db, dialect: cfg.Driver}, nil
}

// rebind converts ?-style placeholders to $N for postgres. Queries are
// written with ? (sqlite and mysql native form).
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

// Snapshot bulk-reads every context table for the location. Each section is
// read independently; a failed section logs, marks the snapshot degraded,
// and leaves its fields empty.
func (s *SQLStore) Snapshot(ctx context.Context, location string) (*Snapshot, error) {
	snap := &Snapshot{Location: location, RetrievedAt: time.Now()}

	degrade := func(section string, err error) {
		slog.Warn("context read failed", "section", section, "location", location, "error", err)
		snap.Degraded = true
	}

	if err := s.readProjects(ctx, location, snap); err != nil {
		degrade("projects", err)
	}
	if err := s.readShifts(ctx, location, snap); err != nil {
		degrade("shifts", err)
	}
	if err := s.readCrews(ctx, location, snap); err != nil {
		degrade("crews", err)
	}
	if err := s.readAssets(ctx, location, snap); err != nil {
		degrade("assets", err)
	}
	if err := s.readBudget(ctx, location, snap); err != nil {
		degrade("budget", err)
	}
	if err := s.readIncidents(ctx, location, snap); err != nil {
		degrade("incidents", err)
	}
	return snap, nil
}

func (s *SQLStore) readProjects(ctx context.Context, location string, snap *Snapshot) error {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT name, agent_type, status, cost FROM context_projects WHERE location = ? AND status = 'in_progress'`),
		location)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var p Project
		var cost int64
		if err := rows.Scan(&p.Name, &p.AgentType, &p.Status, &cost); err != nil {
			return err
		}
		p.Cost = civic.Money(cost)
		snap.Projects = append(snap.Projects, p)
	}
	return rows.Err()
}

func (s *SQLStore) readShifts(ctx context.Context, location string, snap *Snapshot) error {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT shift_name, crews_assigned, crews_required FROM context_shifts WHERE location = ?`),
		location)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var sh Shift
		if err := rows.Scan(&sh.Name, &sh.CrewsAssigned, &sh.CrewsRequired); err != nil {
			return err
		}
		snap.Shifts = append(snap.Shifts, sh)
	}
	return rows.Err()
}

func (s *SQLStore) readCrews(ctx context.Context, location string, snap *Snapshot) error {
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT available, baseline FROM context_crews WHERE location = ?`), location)
	err := row.Scan(&snap.Crews.Available, &snap.Crews.Baseline)
	if err == sql.ErrNoRows {
		return nil
	}
	return err
}

func (s *SQLStore) readAssets(ctx context.Context, location string, snap *Snapshot) error {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT name, kind, condition, last_inspected FROM context_assets WHERE location = ?`),
		location)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var a Asset
		var inspected sql.NullTime
		if err := rows.Scan(&a.Name, &a.Kind, &a.Condition, &inspected); err != nil {
			return err
		}
		if inspected.Valid {
			a.LastInspected = inspected.Time
		}
		snap.Assets = append(snap.Assets, a)
	}
	return rows.Err()
}

func (s *SQLStore) readBudget(ctx context.Context, location string, snap *Snapshot) error {
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT remaining FROM context_budgets WHERE location = ?`), location)
	var remaining int64
	err := row.Scan(&remaining)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}
	snap.BudgetRemaining = civic.Money(remaining)
	return nil
}

func (s *SQLStore) readIncidents(ctx context.Context, location string, snap *Snapshot) error {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT kind, severity, occurred_at FROM context_incidents
		 WHERE location = ? AND occurred_at > ?`),
		location, time.Now().Add(-7*24*time.Hour))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var in Incident
		if err := rows.Scan(&in.Kind, &in.Severity, &in.OccurredAt); err != nil {
			return err
		}
		snap.Incidents = append(snap.Incidents, in)
	}
	return rows.Err()
}

// FromConfig builds a Store from configuration: the memory driver yields the
// seeded in-memory store.
func FromConfig(cfg *config.StoreConfig) (Store, error) {
	if cfg.Driver == "memory" {
		return Seeded(), nil
	}
	return OpenSQL(cfg)
}
