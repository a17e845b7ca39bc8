package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var migrations embed.FS

const migrationsDir = "sql"

var (
	setupOnce sync.Once
	setupErr  error
)

// Seams for tests.
var (
	gooseUp      = goose.UpContext
	gooseDown    = goose.DownContext
	gooseVersion = goose.GetDBVersionContext
)

func setup() error {
	setupOnce.Do(func() {
		goose.SetBaseFS(migrations)
		goose.SetLogger(goose.NopLogger())
		setupErr = goose.SetDialect("pgx")
	})
	return setupErr
}

// Manager applies the embedded schema migrations.
type Manager struct {
	db *sql.DB
}

// Option configures Manager.
type Option func(*Manager)

// WithTable overrides the default goose bookkeeping table.
func WithTable(name string) Option {
	return func(*Manager) {
		if name != "" {
			goose.SetTableName(name)
		}
	}
}

// NewManager constructs a Manager.
func NewManager(db *sql.DB, opts ...Option) (*Manager, error) {
	if db == nil {
		return nil, errors.New("migrate: db is nil")
	}
	if err := setup(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	m := &Manager{db: db}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Up applies all pending migrations.
func (m *Manager) Up(ctx context.Context) error {
	if err := gooseUp(ctx, m.db, migrationsDir); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Down rolls back the most recent applied migration.
func (m *Manager) Down(ctx context.Context) error {
	if err := gooseDown(ctx, m.db, migrationsDir); err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// Status lists every known migration with its state, oldest first.
func (m *Manager) Status(ctx context.Context) ([]string, error) {
	current, err := gooseVersion(ctx, m.db)
	if err != nil {
		return nil, fmt.Errorf("migrate status: %w", err)
	}
	all, err := Migrations()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(all))
	for _, mig := range all {
		state := "pending"
		if mig.Version <= current {
			state = "applied"
		}
		out = append(out, fmt.Sprintf("%05d %s %s", mig.Version, path.Base(mig.Source), state))
	}
	return out, nil
}

// Migrations returns the embedded migrations in version order.
func Migrations() (goose.Migrations, error) {
	if err := setup(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	all, err := goose.CollectMigrations(migrationsDir, 0, goose.MaxVersion)
	if err != nil {
		return nil, fmt.Errorf("collect migrations: %w", err)
	}
	return all, nil
}
