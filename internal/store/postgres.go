package store

import (
	"context"
	"database/sql"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) GetIdentity(ctx context.Context, id int64) (Identity, error) {
	var item Identity
	err := s.db.QueryRowContext(ctx, `
		SELECT id, full_name, faculty, degree, course, avatar, is_active
		FROM users
		WHERE id=$1
	`, id).Scan(&item.ID, &item.FullName, &item.Faculty, &item.Degree, &item.Course, &item.Avatar, &item.IsActive)
	if err != nil {
		return Identity{}, translate(err, "get identity")
	}
	return item, nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
