package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/DKorytin/Herald/internal/domain/recipient"
	"github.com/jackc/pgx/v5"
)

var _ recipient.Repo = (*RecipientRepo)(nil)

type RecipientRepo struct{ db *DB }

func NewRecipientRepo(db *DB) *RecipientRepo { return &RecipientRepo{db: db} }

const qRecipientByUser = `
SELECT user_id, email, phone, push_token
FROM recipients
WHERE user_id = $1;`

func (r *RecipientRepo) GetByUserID(ctx context.Context, userID string) (*recipient.Recipient, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var rec recipient.Recipient
	err := r.db.Pool.QueryRow(ctx, qRecipientByUser, userID).
		Scan(&rec.UserID, &rec.Email, &rec.Phone, &rec.PushToken)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query recipient: %w", err)
	}
	return &rec, nil
}
