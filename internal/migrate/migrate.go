// Package migrate applies versioned schema changes before the server starts.
//
// Migrations are SQL files named NNNN_description.sql. Each one runs in its
// own transaction and is recorded in the migrations table, so a crashed run
// resumes at the first unapplied version.
package migrate

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

//go:embed sql/*.sql
var embedded embed.FS

// lockKey serializes concurrent runners through pg_advisory_xact_lock
const lockKey int64 = 7_301_115_042

const createMigrationsTable = `
	CREATE TABLE IF NOT EXISTS migrations (
		version INTEGER PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		applied_at TIMESTAMP NOT NULL DEFAULT NOW()
	)
`

// Migration is one versioned schema change
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Status describes whether a migration has been applied
type Status struct {
	Version   int        `db:"version" json:"version"`
	Name      string     `db:"name" json:"name"`
	AppliedAt *time.Time `db:"applied_at" json:"appliedAt,omitempty"`
}

// Runner applies migrations to a database
type Runner struct {
	db         *sqlx.DB
	logger     *zap.Logger
	migrations []Migration
}

// NewRunner creates a runner for the given migrations
func NewRunner(db *sqlx.DB, logger *zap.Logger, migrations []Migration) *Runner {
	return &Runner{db: db, logger: logger, migrations: migrations}
}

// Embedded returns the migrations compiled into the binary
func Embedded() ([]Migration, error) {
	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		return nil, err
	}
	return Load(sub)
}

// Load reads every *.sql file at the root of fsys, ordered by version
func Load(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("error reading migrations: %w", err)
	}

	var migrations []Migration
	seen := make(map[int]string)

	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}

		version, name, err := parseFilename(entry.Name())
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %d: %s and %s", version, prev, entry.Name())
		}
		seen[version] = entry.Name()

		body, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("error reading migration %s: %w", entry.Name(), err)
		}

		migrations = append(migrations, Migration{Version: version, Name: name, SQL: string(body)})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

func parseFilename(filename string) (int, string, error) {
	base := strings.TrimSuffix(filename, ".sql")
	prefix, name, ok := strings.Cut(base, "_")
	if !ok || name == "" {
		return 0, "", fmt.Errorf("migration %q must be named NNNN_description.sql", filename)
	}

	version, err := strconv.Atoi(prefix)
	if err != nil || version <= 0 {
		return 0, "", fmt.Errorf("migration %q has an invalid version", filename)
	}

	return version, name, nil
}

// Up applies every pending migration in version order and returns how many ran
func (r *Runner) Up(ctx context.Context) (int, error) {
	if _, err := r.db.ExecContext(ctx, createMigrationsTable); err != nil {
		return 0, fmt.Errorf("error creating migrations table: %w", err)
	}

	applied, err := r.appliedVersions(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, m := range r.migrations {
		if applied[m.Version] {
			continue
		}

		ran, err := r.apply(ctx, m)
		if err != nil {
			return count, err
		}
		if ran {
			count++
			r.logger.Info("applied migration", zap.Int("version", m.Version), zap.String("name", m.Name))
		}
	}

	return count, nil
}

// apply runs a single migration. It reports false when another runner
// recorded the version while this one waited for the lock.
func (r *Runner) apply(ctx context.Context, m Migration) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey); err != nil {
		return false, fmt.Errorf("error acquiring migration lock: %w", err)
	}

	var exists bool
	if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM migrations WHERE version = $1)`, m.Version); err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return false, fmt.Errorf("error applying migration %04d_%s: %w", m.Version, m.Name, err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name); err != nil {
		return false, fmt.Errorf("error recording migration %04d_%s: %w", m.Version, m.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Runner) appliedVersions(ctx context.Context) (map[int]bool, error) {
	var versions []int
	if err := r.db.SelectContext(ctx, &versions, `SELECT version FROM migrations ORDER BY version`); err != nil {
		return nil, fmt.Errorf("error reading applied migrations: %w", err)
	}

	applied := make(map[int]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

// Status lists every known migration with its applied time, if any
func (r *Runner) Status(ctx context.Context) ([]Status, error) {
	if _, err := r.db.ExecContext(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("error creating migrations table: %w", err)
	}

	var rows []Status
	if err := r.db.SelectContext(ctx, &rows, `SELECT version, name, applied_at FROM migrations ORDER BY version`); err != nil {
		return nil, fmt.Errorf("error reading applied migrations: %w", err)
	}

	byVersion := make(map[int]Status, len(rows))
	for _, row := range rows {
		byVersion[row.Version] = row
	}

	statuses := make([]Status, 0, len(r.migrations))
	for _, m := range r.migrations {
		if row, ok := byVersion[m.Version]; ok {
			statuses = append(statuses, row)
			continue
		}
		statuses = append(statuses, Status{Version: m.Version, Name: m.Name})
	}
	return statuses, nil
}

// Pending filters statuses down to the migrations not yet applied
func Pending(statuses []Status) []Status {
	var pending []Status
	for _, st := range statuses {
		if st.AppliedAt == nil {
			pending = append(pending, st)
		}
	}
	return pending
}
