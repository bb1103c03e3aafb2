package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/freeeve/vendetta/api/internal/model"
)

// UserRepo handles user database operations.
type UserRepo struct {
	db *sql.DB
}

// NewUserRepo creates a UserRepo.
func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

const userCols = `id, display_name, last_seen_at, last_advance_at, created_at`

func scanUser(s scanner) (*model.User, error) {
	var u model.User
	var seen, advanced sql.NullTime
	if err := s.Scan(&u.ID, &u.DisplayName, &seen, &advanced, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.LastSeenAt = timePtr(seen)
	u.LastAdvanceAt = timePtr(advanced)
	return &u, nil
}

func findUser(ctx context.Context, q querier, id string) (*model.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return u, nil
}

// Upsert creates the user, or renames them when displayName is not empty.
func (r *UserRepo) Upsert(ctx context.Context, id, displayName string) (*model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, display_name) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE
		 SET display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), users.display_name)
		 RETURNING `+userCols,
		id, displayName,
	))
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return u, nil
}

// ListIDs returns every user id, oldest first.
func (r *UserRepo) ListIDs(ctx context.Context) ([]string, error) {
	return queryList(ctx, r.db, "user ids", func(s scanner) (string, error) {
		var id string
		return id, s.Scan(&id)
	}, `SELECT id FROM users ORDER BY created_at, id`)
}
