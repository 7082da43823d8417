// Package migrate applies the embedded schema migrations with goose.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
)

//go:embed migrations/*.sql
var embedded embed.FS

// Migrations returns the embedded migration files rooted at their directory.
func Migrations() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Manager executes the embedded SQL migrations.
type Manager struct {
	provider *goose.Provider
}

// Option configures Manager.
type Option func(*options)

type options struct {
	table   string
	verbose bool
}

// WithMigrationsTable overrides the default goose bookkeeping table.
func WithMigrationsTable(name string) Option {
	return func(o *options) {
		if name != "" {
			o.table = name
		}
	}
}

// WithVerbose logs each applied migration.
func WithVerbose(on bool) Option {
	return func(o *options) { o.verbose = on }
}

// NewManager constructs a Manager over db.
func NewManager(db *sql.DB, opts ...Option) (*Manager, error) {
	if db == nil {
		return nil, errors.New("migrate: db is required")
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	dialect := goose.DialectPostgres
	var popts []goose.ProviderOption
	if o.table != "" {
		store, err := database.NewStore(database.DialectPostgres, o.table)
		if err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		// A custom store carries the dialect itself.
		dialect = ""
		popts = append(popts, goose.WithStore(store))
	}
	if o.verbose {
		popts = append(popts, goose.WithVerbose(true))
	}
	p, err := goose.NewProvider(dialect, db, Migrations(), popts...)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Manager{provider: p}, nil
}

// Up applies all pending migrations and returns how many ran.
func (m *Manager) Up(ctx context.Context) (int, error) {
	res, err := m.provider.Up(ctx)
	if err != nil {
		return len(res), fmt.Errorf("migrate up: %w", err)
	}
	return len(res), nil
}

// Down rolls back the most recent applied migration.
func (m *Manager) Down(ctx context.Context) error {
	if _, err := m.provider.Down(ctx); err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// Status describes one migration file.
type Status struct {
	Version int64
	Path    string
	Applied bool
}

// Status returns every known migration in order.
func (m *Manager) Status(ctx context.Context) ([]Status, error) {
	res, err := m.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate status: %w", err)
	}
	out := make([]Status, 0, len(res))
	for _, r := range res {
		out = append(out, Status{
			Version: r.Source.Version,
			Path:    r.Source.Path,
			Applied: r.State == goose.StateApplied,
		})
	}
	return out, nil
}
