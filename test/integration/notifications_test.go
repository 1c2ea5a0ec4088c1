//go:build integration

package integration

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DKorytin/Herald/internal/domain/notification"
	pg "github.com/DKorytin/Herald/internal/repository/postgres"
)

func openNotifRepo(t *testing.T, dsn string) *pg.NotificationRepo {
	t.Helper()
	db, err := pg.New(context.Background(), pg.Config{DSN: dsn, QueryTimeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("[db] pool: %v", err)
	}
	t.Cleanup(db.Close)
	return pg.NewNotificationRepo(db)
}

func readState(t *testing.T, db *sql.DB, id string) (read bool, readAt sql.NullTime) {
	t.Helper()
	err := db.QueryRow(`select read, read_at from notifications where id = $1`, id).Scan(&read, &readAt)
	if err != nil {
		t.Fatalf("[db] read state: %v", err)
	}
	return read, readAt
}

func TestNotifications_MarkRead_ScopedToOwner(t *testing.T) {
	cfg := LoadCfg()
	repo := openNotifRepo(t, cfg.DBDSN)
	db := DBOpen(t, cfg.DBDSN)
	defer db.Close()

	ctx := context.Background()
	owner := RandUserID()
	n := &notification.Notification{
		UserID: owner, Channel: notification.ChannelEmail,
		Title: "Invoice ready", Body: "Your invoice is ready",
	}
	if err := repo.Create(ctx, n); err != nil {
		t.Fatalf("create: %v", err)
	}

	// another user's mark-read is a silent no-op
	if err := repo.MarkRead(ctx, n.ID, RandUserID(), time.Now().UTC()); err != nil {
		t.Fatalf("mark read (stranger): %v", err)
	}
	read, readAt := readState(t, db, n.ID.String())
	if read || readAt.Valid {
		t.Fatalf("stranger flipped the record: read=%v read_at=%v", read, readAt)
	}

	if err := repo.MarkRead(ctx, n.ID, owner, time.Now().UTC()); err != nil {
		t.Fatalf("mark read (owner): %v", err)
	}
	read, readAt = readState(t, db, n.ID.String())
	if !read || !readAt.Valid {
		t.Fatalf("owner mark-read did not stick: read=%v read_at=%v", read, readAt)
	}
}

func TestNotifications_MarkAllRead_Idempotent(t *testing.T) {
	cfg := LoadCfg()
	repo := openNotifRepo(t, cfg.DBDSN)
	db := DBOpen(t, cfg.DBDSN)
	defer db.Close()

	ctx := context.Background()
	owner := RandUserID()
	ids := make([]string, 0, 2)
	for _, title := range []string{"first", "second"} {
		n := &notification.Notification{
			UserID: owner, Channel: notification.ChannelPush, Title: title, Body: "b",
		}
		if err := repo.Create(ctx, n); err != nil {
			t.Fatalf("create %q: %v", title, err)
		}
		ids = append(ids, n.ID.String())
	}

	first := time.Now().UTC()
	if err := repo.MarkAllRead(ctx, owner, first); err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	stamps := make([]time.Time, 0, len(ids))
	for _, id := range ids {
		read, readAt := readState(t, db, id)
		if !read || !readAt.Valid {
			t.Fatalf("record %s not read after mark-all", id)
		}
		stamps = append(stamps, readAt.Time)
	}

	// second pass matches only unread rows, so earlier stamps survive
	if err := repo.MarkAllRead(ctx, owner, first.Add(time.Hour)); err != nil {
		t.Fatalf("mark all read again: %v", err)
	}
	for i, id := range ids {
		_, readAt := readState(t, db, id)
		if !readAt.Time.Equal(stamps[i]) {
			t.Fatalf("record %s read_at moved on repeat: %v -> %v", id, stamps[i], readAt.Time)
		}
	}
}

func TestNotifications_NilMetaStoredAsEmptyObject(t *testing.T) {
	cfg := LoadCfg()
	repo := openNotifRepo(t, cfg.DBDSN)
	db := DBOpen(t, cfg.DBDSN)
	defer db.Close()

	n := &notification.Notification{
		UserID: RandUserID(), Channel: notification.ChannelEmail,
		Title: "no meta", Body: "b",
	}
	if err := repo.Create(context.Background(), n); err != nil {
		t.Fatalf("create: %v", err)
	}

	var meta string
	if err := db.QueryRow(`select meta::text from notifications where id = $1`, n.ID.String()).Scan(&meta); err != nil {
		t.Fatalf("[db] meta: %v", err)
	}
	if meta != "{}" {
		t.Fatalf("meta stored as %q, want empty object", meta)
	}
}
