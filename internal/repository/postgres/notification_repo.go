package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/DKorytin/Herald/internal/domain/notification"
	"github.com/google/uuid"
)

var _ notification.Repo = (*NotificationRepo)(nil)

type NotificationRepo struct{ db *DB }

func NewNotificationRepo(db *DB) *NotificationRepo { return &NotificationRepo{db: db} }

const (
	qNotifInsert = `
INSERT INTO notifications (user_id, channel, title, body, meta, read)
VALUES ($1, $2, $3, $4, $5, FALSE)
RETURNING id, created_at;`

	qNotifByUser = `
SELECT id, user_id, channel, title, body, meta, read, read_at, created_at
FROM notifications
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2;`

	qNotifMarkRead = `
UPDATE notifications
SET read = TRUE, read_at = $3
WHERE id = $1 AND user_id = $2;`

	qNotifMarkAllRead = `
UPDATE notifications
SET read = TRUE, read_at = $2
WHERE user_id = $1 AND read = FALSE;`
)

func (r *NotificationRepo) Create(ctx context.Context, n *notification.Notification) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	// A nil map would reach the column as json null and violate the
	// empty-object contract; normalize before encoding.
	if n.Meta == nil {
		n.Meta = map[string]any{}
	}

	eq := r.db.execQueryer(ctx)
	if err := eq.QueryRow(ctx, qNotifInsert,
		n.UserID,
		string(n.Channel),
		n.Title,
		n.Body,
		n.Meta,
	).Scan(&n.ID, &n.CreatedAt); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *NotificationRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*notification.Notification, error) {
	if limit <= 0 {
		limit = 20
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qNotifByUser, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	out := make([]*notification.Notification, 0, limit)
	for rows.Next() {
		var n notification.Notification
		var channel string
		if err := rows.Scan(&n.ID, &n.UserID, &channel, &n.Title, &n.Body, &n.Meta, &n.Read, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Channel = notification.Channel(channel)
		nc := n
		out = append(out, &nc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// MarkRead matches on both id and owner; a miss updates zero rows and is
// not an error.
func (r *NotificationRepo) MarkRead(ctx context.Context, id uuid.UUID, userID string, at time.Time) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.Pool.Exec(ctx, qNotifMarkRead, id, userID, at); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID string, at time.Time) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.Pool.Exec(ctx, qNotifMarkAllRead, userID, at); err != nil {
		return fmt.Errorf("mark all read: %w", err)
	}
	return nil
}
