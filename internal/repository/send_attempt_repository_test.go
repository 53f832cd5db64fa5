package repository

import (
	"context"
	"testing"
	"time"

	"mail-delivery-service/internal/domain"
)

func newAttempt(domainID string) *domain.SendAttempt {
	return &domain.SendAttempt{
		DomainID:   domainID,
		Sender:     "sender@example.com",
		Recipients: []string{"a@example.net", "b@example.net"},
		Subject:    "hello",
		TextBody:   "body",
		Status:     domain.SendStatusPendingRetry,
		RetryCount: 1,
	}
}

func TestSendAttemptRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewSendAttemptRepository(db)
	insertDomain(t, db, "dom-1", "example.com", true)

	next := time.Now().Add(time.Minute).UTC()
	a := newAttempt("dom-1")
	a.NextRetryAt = &next
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if a.ID == "" {
		t.Error("expected generated UUID")
	}

	found, err := repo.FindByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if found == nil {
		t.Fatal("attempt not found")
	}
	if len(found.Recipients) != 2 || found.Recipients[0] != "a@example.net" {
		t.Errorf("recipients not round-tripped: %v", found.Recipients)
	}
	if found.Status != domain.SendStatusPendingRetry {
		t.Errorf("want pending_retry, got %s", found.Status)
	}
	if found.NextRetryAt == nil {
		t.Error("want next_retry_at set")
	}
}

func TestSendAttemptRepository_UpdateOutcome(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewSendAttemptRepository(db)
	insertDomain(t, db, "dom-1", "example.com", true)

	a := newAttempt("dom-1")
	next := time.Now().UTC()
	a.NextRetryAt = &next
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	a.Status = domain.SendStatusSent
	a.NextRetryAt = nil
	a.MessageID = "msg-123@example.com"
	a.LastError = ""
	if err := repo.UpdateOutcome(ctx, a); err != nil {
		t.Fatalf("UpdateOutcome failed: %v", err)
	}

	found, err := repo.FindByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if found.Status != domain.SendStatusSent {
		t.Errorf("want sent, got %s", found.Status)
	}
	if found.NextRetryAt != nil {
		t.Error("terminal state must clear next_retry_at")
	}
	if found.MessageID != "msg-123@example.com" {
		t.Errorf("want message id, got %q", found.MessageID)
	}
}

func TestSendAttemptRepository_ClaimDue(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewSendAttemptRepository(db)
	insertDomain(t, db, "dom-1", "example.com", true)

	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	for _, row := range []struct {
		id     string
		status string
		next   *time.Time
	}{
		{"due-1", "pending_retry", &past},
		{"due-2", "pending_retry", &past},
		{"later", "pending_retry", &future},
		{"done", "sent", nil},
	} {
		err := db.Exec(`INSERT INTO send_attempts (id, domain_id, sender, recipients, subject, status, retry_count, next_retry_at)
			VALUES (?, 'dom-1', 's@example.com', '["r@example.net"]', 'sub', ?, 1, ?)`,
			row.id, row.status, row.next).Error
		if err != nil {
			t.Fatalf("failed to insert attempt: %v", err)
		}
	}

	claimed, err := repo.ClaimDue(ctx, now, 5*time.Minute, 10)
	if err != nil {
		t.Fatalf("ClaimDue failed: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("want 2 claimed attempts, got %d", len(claimed))
	}

	// 同じ時刻で再度クレームしても同一行は獲得できない（リース済み）
	again, err := repo.ClaimDue(ctx, now, 5*time.Minute, 10)
	if err != nil {
		t.Fatalf("ClaimDue failed: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("want 0 re-claimed attempts, got %d", len(again))
	}
}

func TestSendAttemptRepository_ClaimDue_BatchLimit(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewSendAttemptRepository(db)
	insertDomain(t, db, "dom-1", "example.com", true)

	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	for i := 0; i < 5; i++ {
		err := db.Exec(`INSERT INTO send_attempts (id, domain_id, sender, recipients, subject, status, retry_count, next_retry_at)
			VALUES (?, 'dom-1', 's@example.com', '["r@example.net"]', 'sub', 'pending_retry', 1, ?)`,
			string(rune('a'+i)), past).Error
		if err != nil {
			t.Fatalf("failed to insert attempt: %v", err)
		}
	}

	claimed, err := repo.ClaimDue(ctx, now, time.Minute, 3)
	if err != nil {
		t.Fatalf("ClaimDue failed: %v", err)
	}
	if len(claimed) != 3 {
		t.Errorf("want batch of 3, got %d", len(claimed))
	}
}

func TestSendAttemptRepository_List(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewSendAttemptRepository(db)
	insertDomain(t, db, "dom-1", "example.com", true)
	insertDomain(t, db, "dom-2", "other.com", true)

	for _, row := range []struct {
		id, dom, status string
	}{
		{"a-1", "dom-1", "sent"},
		{"a-2", "dom-1", "failed"},
		{"a-3", "dom-2", "sent"},
	} {
		err := db.Exec(`INSERT INTO send_attempts (id, domain_id, sender, recipients, subject, status)
			VALUES (?, ?, 's@example.com', '["r@example.net"]', 'sub', ?)`,
			row.id, row.dom, row.status).Error
		if err != nil {
			t.Fatalf("failed to insert attempt: %v", err)
		}
	}

	all, err := repo.List(ctx, domain.SendAttemptFilter{DomainID: "dom-1"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("want 2 attempts for dom-1, got %d", len(all))
	}

	sent, err := repo.List(ctx, domain.SendAttemptFilter{DomainID: "dom-1", Status: domain.SendStatusSent})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(sent) != 1 || sent[0].ID != "a-1" {
		t.Errorf("want only a-1, got %+v", sent)
	}
}

func TestSendAttemptRepository_Stats(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewSendAttemptRepository(db)
	insertDomain(t, db, "dom-1", "example.com", true)

	for _, row := range []struct {
		id, status string
	}{
		{"a-1", "sent"},
		{"a-2", "sent"},
		{"a-3", "failed"},
		{"a-4", "pending_retry"},
	} {
		err := db.Exec(`INSERT INTO send_attempts (id, domain_id, sender, recipients, subject, status)
			VALUES (?, 'dom-1', 's@example.com', '["r@example.net"]', 'sub', ?)`,
			row.id, row.status).Error
		if err != nil {
			t.Fatalf("failed to insert attempt: %v", err)
		}
	}

	stats, err := repo.Stats(ctx, "dom-1", time.Now().UTC())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 4 || stats.Sent != 2 || stats.Failed != 1 || stats.PendingRetry != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.SentLast24h != 2 {
		t.Errorf("want 2 sent in last 24h, got %d", stats.SentLast24h)
	}
}
