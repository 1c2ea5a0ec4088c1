//go:build integration

package integration

import (
	"testing"
	"time"
)

func TestWorker_UserCreated_SendsWelcomeEmail(t *testing.T) {
	cfg := LoadCfg()
	WaitTCP(t, "kafka", cfg.KafkaBootstrap, 60*time.Second)
	WaitHealthz(t, cfg.WorkerHealth, 90*time.Second)
	EnsureTopic(t, cfg.KafkaBootstrap, cfg.EventsTopic)

	db := DBOpen(t, cfg.DBDSN)
	defer db.Close()
	MailhogPurge(t, cfg.MailhogAPI)

	userID := RandUserID()
	email := userID + "@example.com"
	SeedRecipient(t, db, userID, email, "", "")

	PublishJSON(t, cfg.KafkaBootstrap, cfg.EventsTopic, []byte(userID), map[string]any{
		"event":   "user.created",
		"user_id": userID,
		"email":   email,
	})

	mh := WaitMailhogCount(t, cfg.MailhogAPI, 1, 30*time.Second)
	if mh.Total < 1 {
		t.Fatalf("no welcome email arrived")
	}

	channel, title, ok := WaitNotificationRow(t, db, userID, 30*time.Second)
	if !ok {
		t.Fatalf("no notification record")
	}
	if channel != "email" || title != "Welcome!" {
		t.Fatalf("wrong record: channel=%q title=%q", channel, title)
	}
}

func TestWorker_NotifyRequested_PersistsAndDelivers(t *testing.T) {
	cfg := LoadCfg()
	WaitTCP(t, "kafka", cfg.KafkaBootstrap, 60*time.Second)
	WaitHealthz(t, cfg.WorkerHealth, 90*time.Second)
	EnsureTopic(t, cfg.KafkaBootstrap, cfg.EventsTopic)

	db := DBOpen(t, cfg.DBDSN)
	defer db.Close()
	MailhogPurge(t, cfg.MailhogAPI)

	userID := RandUserID()
	SeedRecipient(t, db, userID, userID+"@example.com", "", "")

	PublishJSON(t, cfg.KafkaBootstrap, cfg.EventsTopic, []byte(userID), map[string]any{
		"event":   "notification.requested",
		"user_id": userID,
		"intent": map[string]any{
			"user_id": userID,
			"type":    "email",
			"title":   "Invoice ready",
			"message": "Your invoice for January is ready.",
		},
	})

	mh := WaitMailhogCount(t, cfg.MailhogAPI, 1, 30*time.Second)
	if mh.Total < 1 {
		t.Fatalf("no email arrived")
	}

	channel, title, ok := WaitNotificationRow(t, db, userID, 30*time.Second)
	if !ok {
		t.Fatalf("no notification record")
	}
	if channel != "email" || title != "Invoice ready" {
		t.Fatalf("wrong record: channel=%q title=%q", channel, title)
	}
}

func TestWorker_UnknownEvent_NoEffect(t *testing.T) {
	cfg := LoadCfg()
	WaitTCP(t, "kafka", cfg.KafkaBootstrap, 60*time.Second)
	WaitHealthz(t, cfg.WorkerHealth, 90*time.Second)
	EnsureTopic(t, cfg.KafkaBootstrap, cfg.EventsTopic)

	db := DBOpen(t, cfg.DBDSN)
	defer db.Close()
	MailhogPurge(t, cfg.MailhogAPI)

	userID := RandUserID()
	PublishJSON(t, cfg.KafkaBootstrap, cfg.EventsTopic, []byte(userID), map[string]any{
		"event":   "user.deleted",
		"user_id": userID,
	})

	ExpectNoMailhog(t, cfg.MailhogAPI, 5*time.Second)
	if n := CountNotifications(t, db, userID); n != 0 {
		t.Fatalf("unexpected notifications: %d", n)
	}
}

func TestWorker_MissingRecipient_JobGoesDead(t *testing.T) {
	cfg := LoadCfg()
	WaitTCP(t, "kafka", cfg.KafkaBootstrap, 60*time.Second)
	WaitHealthz(t, cfg.WorkerHealth, 90*time.Second)
	EnsureTopic(t, cfg.KafkaBootstrap, cfg.EventsTopic)

	db := DBOpen(t, cfg.DBDSN)
	defer db.Close()

	deadBefore := CountDeadJobs(t, db)

	// push needs a device token from the directory; the user has none
	userID := RandUserID()
	PublishJSON(t, cfg.KafkaBootstrap, cfg.EventsTopic, []byte(userID), map[string]any{
		"event":   "notification.requested",
		"user_id": userID,
		"intent": map[string]any{
			"user_id": userID,
			"type":    "push",
			"title":   "Lost",
		},
	})

	// 3 attempts with 2s base backoff: 2s + 4s plus processing slack
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		if CountDeadJobs(t, db) > deadBefore {
			return
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("job never reached DEAD")
}
