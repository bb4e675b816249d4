package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/annachatkara/moviedb/internal/server/migrations"
)

// Manager owns the connection pool behind a Repository. Pooling itself is
// left to database/sql and the pgx driver.
type Manager struct {
	db   *sql.DB
	repo *Repository
}

// Open connects to dsn and optionally applies the embedded migrations.
func Open(ctx context.Context, dsn string, runMigrations bool) (*Manager, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	m := &Manager{db: db, repo: NewRepository(db)}
	if runMigrations {
		if err := m.RunMigrations(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migration error: %w", err)
		}
	}
	return m, nil
}

// Conn exposes the underlying pool.
func (m *Manager) Conn() *sql.DB {
	return m.db
}

// Backend returns the repository bound to the pool.
func (m *Manager) Backend() *Repository {
	return m.repo
}

// RunMigrations applies the embedded goose migrations.
func (m *Manager) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, m.db, ".")
}

// Close releases the pool.
func (m *Manager) Close(ctx context.Context) error {
	return m.db.Close()
}
