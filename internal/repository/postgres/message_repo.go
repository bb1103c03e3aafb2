package postgres

import (
	"context"
	"database/sql"

	"github.com/freeeve/vendetta/api/internal/model"
)

// MessageRepo is the read side of the inbox. The engine writes messages
// through GameTx when reports and deliveries are created.
type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

func scanMessage(s scanner) (model.Message, error) {
	var m model.Message
	err := s.Scan(&m.ID, &m.UserID, &m.Kind, &m.Subject, &m.ReportID, &m.Body, &m.CreatedAt)
	return m, err
}

// ListByUser returns the user's newest messages first.
func (r *MessageRepo) ListByUser(ctx context.Context, userID string, limit int) ([]model.Message, error) {
	return queryList(ctx, r.db, "messages", scanMessage,
		`SELECT id, user_id, kind, subject, COALESCE(report_id::text, ''), body, created_at
		 FROM messages WHERE user_id = $1
		 ORDER BY created_at DESC, id LIMIT $2`, userID, limit)
}
