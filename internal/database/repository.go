package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var _ Store = (*Repository)(nil)

// Repository is the PostgreSQL Store
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Ping performs a database health check
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// Close releases the pool
func (r *Repository) Close() error {
	r.db.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
