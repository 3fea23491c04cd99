package db

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Migration is one forward-only SQL file.
type Migration struct {
	Version string
	SQL     string
}

// MigrationStatus pairs a migration with whether it has been applied.
type MigrationStatus struct {
	Version string
	Applied bool
}

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// LoadMigrations reads every top level .sql file in fsys, ordered by file name.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		contents, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		migrations = append(migrations, Migration{Version: entry.Name(), SQL: string(contents)})
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// Pending filters out the migrations whose versions are in applied, keeping order.
func Pending(migrations []Migration, applied map[string]bool) []Migration {
	var out []Migration
	for _, m := range migrations {
		if !applied[m.Version] {
			out = append(out, m)
		}
	}
	return out
}

// Migrator applies migrations over a single connection so the bookkeeping table and the
// schema changes always see the same session.
type Migrator struct {
	conn *pgxpool.Conn
}

// NewMigrator acquires a connection from pool. Release it with Close.
func NewMigrator(ctx context.Context, pool Pool) (*Migrator, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	if _, err := conn.Exec(ctx, createMigrationsTable); err != nil {
		conn.Release()
		return nil, fmt.Errorf("ensure schema_migrations table: %w", err)
	}
	return &Migrator{conn: conn}, nil
}

// Close returns the connection to the pool.
func (m *Migrator) Close() {
	m.conn.Release()
}

// Applied returns the set of recorded versions.
func (m *Migrator) Applied(ctx context.Context) (map[string]bool, error) {
	rows, err := m.conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("fetch applied migrations: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan applied migrations: %w", err)
	}
	applied := make(map[string]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

// Status reports every migration alongside whether it has run.
func (m *Migrator) Status(ctx context.Context, migrations []Migration) ([]MigrationStatus, error) {
	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]MigrationStatus, 0, len(migrations))
	for _, mig := range migrations {
		out = append(out, MigrationStatus{Version: mig.Version, Applied: applied[mig.Version]})
	}
	return out, nil
}

// Up applies each pending migration in its own serializable transaction and calls onApplied
// after every commit. It returns the versions that were applied.
func (m *Migrator) Up(ctx context.Context, migrations []Migration, onApplied func(version string)) ([]string, error) {
	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}

	var done []string
	for _, mig := range Pending(migrations, applied) {
		err := RunInTx(ctx, m.conn, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(ctx context.Context, tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.SQL); err != nil {
				return fmt.Errorf("apply migration %s: %w", mig.Version, err)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, mig.Version); err != nil {
				return fmt.Errorf("record migration %s: %w", mig.Version, err)
			}
			return nil
		})
		if err != nil {
			return done, err
		}
		done = append(done, mig.Version)
		if onApplied != nil {
			onApplied(mig.Version)
		}
	}
	return done, nil
}
