package usecase

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"mail-delivery-service/internal/dkim"
	"mail-delivery-service/internal/domain"
)

// deliveryFixture はDeliveryServiceのテスト一式を組み立てる。
type deliveryFixture struct {
	service   *DeliveryService
	attempts  *mockAttemptRepo
	domains   *mockDomainRepo
	cipher    *mockCipher
	transport *mockTransport
	observer  *mockObserver
	identity  *domain.CredentialIdentity
	now       time.Time
}

func newDeliveryFixture(t *testing.T) *deliveryFixture {
	t.Helper()

	pair, err := dkim.GenerateKeyPair()
	if err != nil {
		t.Fatalf("failed to generate key pair: %v", err)
	}

	domains := newMockDomainRepo()
	domains.put(&domain.Domain{
		ID:                  "dom-1",
		Name:                "example.com",
		Selector:            "mail",
		PublicKey:           pair.PublicKey,
		EncryptedPrivateKey: "enc:" + pair.PrivateKeyPEM,
		IsActive:            true,
	})

	f := &deliveryFixture{
		attempts:  newMockAttemptRepo(),
		domains:   domains,
		cipher:    &mockCipher{},
		transport: &mockTransport{},
		observer:  &mockObserver{},
		identity: &domain.CredentialIdentity{
			KeyID:      "key-1",
			KeyName:    "production",
			DomainID:   "dom-1",
			DomainName: "example.com",
		},
		now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	f.service = NewDeliveryService(f.attempts, f.domains, f.cipher, f.transport, f.observer, RetryPolicy{
		Backoff:          []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute},
		MaxRetries:       3,
		TransportTimeout: 5 * time.Second,
		BatchSize:        10,
	})
	f.service.now = func() time.Time { return f.now }
	return f
}

func validRequest() *SendRequest {
	return &SendRequest{
		From:     "news@example.com",
		To:       []string{"user@example.net"},
		Subject:  "Hello",
		TextBody: "plain body",
		HTMLBody: "<p>html body</p>",
	}
}

func TestDeliveryService_Send_Success(t *testing.T) {
	ctx := context.Background()
	f := newDeliveryFixture(t)

	attempt, err := f.service.Send(ctx, f.identity, validRequest())
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if attempt.Status != domain.SendStatusSent {
		t.Errorf("want sent, got %s", attempt.Status)
	}
	if attempt.MessageID == "" {
		t.Error("expected message id on success")
	}
	if attempt.NextRetryAt != nil {
		t.Error("sent attempt must not carry next_retry_at")
	}
	if f.transport.callCount() != 1 {
		t.Fatalf("want 1 transport call, got %d", f.transport.callCount())
	}
	if !bytes.Contains(f.transport.sent[0].Raw, []byte("DKIM-Signature")) {
		t.Error("delivered message must carry a DKIM signature")
	}
	if len(f.observer.recorded) != 1 || f.observer.recorded[0] != domain.SendStatusSent {
		t.Errorf("observer not notified of sent transition: %v", f.observer.recorded)
	}

	stored, _ := f.attempts.FindByID(ctx, attempt.ID)
	if stored == nil || stored.Status != domain.SendStatusSent {
		t.Errorf("attempt not durably recorded: %+v", stored)
	}
}

func TestDeliveryService_Send_InvalidRequest(t *testing.T) {
	ctx := context.Background()
	f := newDeliveryFixture(t)

	cases := []*SendRequest{
		{To: []string{"user@example.net"}, Subject: "s", TextBody: "b"},
		{From: "news@example.com", Subject: "s", TextBody: "b"},
		{From: "news@example.com", To: []string{"user@example.net"}, TextBody: "b"},
		{From: "news@example.com", To: []string{"user@example.net"}, Subject: "s"},
		{From: "news@example.com", To: []string{"not-an-address"}, Subject: "s", TextBody: "b"},
		{From: "news@example.com", To: make([]string, maxRecipients+1), Subject: "s", TextBody: "b"},
		{From: "news@example.com", To: []string{"user@example.net"}, Subject: strings.Repeat("x", maxSubjectLength+1), TextBody: "b"},
	}
	for i, req := range cases {
		_, err := f.service.Send(ctx, f.identity, req)
		if !errors.Is(err, domain.ErrInvalidSendRequest) {
			t.Errorf("case %d: want ErrInvalidSendRequest, got %v", i, err)
		}
	}

	if len(f.attempts.attempts) != 0 {
		t.Error("malformed requests must not leave attempt records")
	}
	if f.transport.callCount() != 0 {
		t.Error("malformed requests must not reach the transport")
	}
}

func TestDeliveryService_Send_SenderDomainMismatch(t *testing.T) {
	ctx := context.Background()
	f := newDeliveryFixture(t)

	req := validRequest()
	req.From = "a@b.com"
	attempt, err := f.service.Send(ctx, f.identity, req)
	if !errors.Is(err, domain.ErrSenderDomainMismatch) {
		t.Fatalf("want ErrSenderDomainMismatch, got %v", err)
	}

	if attempt.Status != domain.SendStatusFailed {
		t.Errorf("want failed, got %s", attempt.Status)
	}
	if attempt.NextRetryAt != nil {
		t.Error("mismatch must never leave a retry state")
	}
	if f.transport.callCount() != 0 {
		t.Error("mismatch must not reach the transport")
	}

	stored, _ := f.attempts.FindByID(ctx, attempt.ID)
	if stored == nil || stored.Status != domain.SendStatusFailed {
		t.Errorf("failed attempt must be durably recorded: %+v", stored)
	}
}

func TestDeliveryService_Send_DisplayNameSender(t *testing.T) {
	ctx := context.Background()
	f := newDeliveryFixture(t)

	req := validRequest()
	req.From = "Example News <news@example.com>"
	attempt, err := f.service.Send(ctx, f.identity, req)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if attempt.Status != domain.SendStatusSent {
		t.Errorf("want sent, got %s", attempt.Status)
	}
}

func TestDeliveryService_Send_InactiveDomain(t *testing.T) {
	ctx := context.Background()
	f := newDeliveryFixture(t)
	if err := f.domains.SetActive(ctx, "dom-1", false); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}

	attempt, err := f.service.Send(ctx, f.identity, validRequest())
	if !errors.Is(err, domain.ErrDomainInactive) {
		t.Fatalf("want ErrDomainInactive, got %v", err)
	}
	if attempt.Status != domain.SendStatusFailed {
		t.Errorf("want failed, got %s", attempt.Status)
	}
	if f.transport.callCount() != 0 {
		t.Error("inactive domain must not reach the transport")
	}
}

func TestDeliveryService_Send_TransientFailure(t *testing.T) {
	ctx := context.Background()
	f := newDeliveryFixture(t)
	f.transport.errs = []error{errors.New("dial tcp: connection timeout")}

	attempt, err := f.service.Send(ctx, f.identity, validRequest())
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if attempt.Status != domain.SendStatusPendingRetry {
		t.Fatalf("want pending_retry, got %s", attempt.Status)
	}
	if attempt.RetryCount != 1 {
		t.Errorf("want retry_count 1, got %d", attempt.RetryCount)
	}
	if attempt.NextRetryAt == nil {
		t.Fatal("pending_retry must carry next_retry_at")
	}
	if want := f.now.Add(time.Minute); !attempt.NextRetryAt.Equal(want) {
		t.Errorf("want next retry at %v, got %v", want, attempt.NextRetryAt)
	}
	if attempt.LastError == "" {
		t.Error("expected last_error to be recorded")
	}
}

func TestDeliveryService_Send_PermanentFailure(t *testing.T) {
	ctx := context.Background()
	f := newDeliveryFixture(t)
	f.transport.errs = []error{errors.New("550 no such user")}

	attempt, err := f.service.Send(ctx, f.identity, validRequest())
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if attempt.Status != domain.SendStatusFailed {
		t.Errorf("want failed, got %s", attempt.Status)
	}
	if attempt.NextRetryAt != nil {
		t.Error("permanent failure must not schedule a retry")
	}
}

func TestDeliveryService_Send_TransportTimeout(t *testing.T) {
	ctx := context.Background()
	f := newDeliveryFixture(t)
	f.service.policy.TransportTimeout = 10 * time.Millisecond
	f.transport.delay = 200 * time.Millisecond

	attempt, err := f.service.Send(ctx, f.identity, validRequest())
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if attempt.Status != domain.SendStatusPendingRetry {
		t.Errorf("timeout must be classified transient, got %s", attempt.Status)
	}
}

func TestDeliveryService_Send_KeyDecryptionFailure(t *testing.T) {
	ctx := context.Background()
	f := newDeliveryFixture(t)
	f.cipher.decryptErr = errors.New("kms unavailable")

	attempt, err := f.service.Send(ctx, f.identity, validRequest())
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if attempt.Status != domain.SendStatusFailed {
		t.Errorf("unreadable key must be terminal, got %s", attempt.Status)
	}
	if !strings.Contains(attempt.LastError, "signing key decryption failed") {
		t.Errorf("decryption failure must be visible in the record: %q", attempt.LastError)
	}
	if f.transport.callCount() != 0 {
		t.Error("decryption failure must not reach the transport")
	}
}

func TestDeliveryService_ProcessDueRetries_Success(t *testing.T) {
	ctx := context.Background()
	f := newDeliveryFixture(t)

	next := f.now.Add(-time.Minute)
	pending := &domain.SendAttempt{
		ID:          "att-1",
		DomainID:    "dom-1",
		Sender:      "news@example.com",
		Recipients:  []string{"user@example.net"},
		Subject:     "Hello",
		TextBody:    "plain body",
		Status:      domain.SendStatusPendingRetry,
		RetryCount:  1,
		NextRetryAt: &next,
	}
	f.attempts.attempts["att-1"] = pending
	f.attempts.due = []*domain.SendAttempt{pending}

	processed, err := f.service.ProcessDueRetries(ctx)
	if err != nil {
		t.Fatalf("ProcessDueRetries failed: %v", err)
	}
	if processed != 1 {
		t.Errorf("want 1 processed, got %d", processed)
	}
	if f.transport.callCount() != 1 {
		t.Errorf("want 1 transport call, got %d", f.transport.callCount())
	}

	stored, _ := f.attempts.FindByID(ctx, "att-1")
	if stored.Status != domain.SendStatusSent {
		t.Errorf("want sent, got %s", stored.Status)
	}
	if stored.MessageID != "att-1@example.com" {
		t.Errorf("unexpected message id %q", stored.MessageID)
	}
}

func TestDeliveryService_ProcessDueRetries_Exhaustion(t *testing.T) {
	ctx := context.Background()
	f := newDeliveryFixture(t)
	f.transport.errs = []error{errors.New("connection refused")}

	next := f.now.Add(-time.Minute)
	pending := &domain.SendAttempt{
		ID:          "att-1",
		DomainID:    "dom-1",
		Sender:      "news@example.com",
		Recipients:  []string{"user@example.net"},
		Subject:     "Hello",
		TextBody:    "plain body",
		Status:      domain.SendStatusPendingRetry,
		RetryCount:  2,
		NextRetryAt: &next,
	}
	f.attempts.attempts["att-1"] = pending
	f.attempts.due = []*domain.SendAttempt{pending}

	if _, err := f.service.ProcessDueRetries(ctx); err != nil {
		t.Fatalf("ProcessDueRetries failed: %v", err)
	}

	stored, _ := f.attempts.FindByID(ctx, "att-1")
	if stored.Status != domain.SendStatusFailed {
		t.Fatalf("want failed after exhaustion, got %s", stored.Status)
	}
	if !strings.Contains(stored.LastError, "retries exhausted") {
		t.Errorf("want retries exhausted marker, got %q", stored.LastError)
	}
	if stored.NextRetryAt != nil {
		t.Error("terminal attempt must not carry next_retry_at")
	}
}

func TestDeliveryService_ProcessDueRetries_InactiveDomain(t *testing.T) {
	ctx := context.Background()
	f := newDeliveryFixture(t)
	if err := f.domains.SetActive(ctx, "dom-1", false); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}

	next := f.now.Add(-time.Minute)
	pending := &domain.SendAttempt{
		ID:          "att-1",
		DomainID:    "dom-1",
		Sender:      "news@example.com",
		Recipients:  []string{"user@example.net"},
		Subject:     "Hello",
		TextBody:    "plain body",
		Status:      domain.SendStatusPendingRetry,
		RetryCount:  1,
		NextRetryAt: &next,
	}
	f.attempts.attempts["att-1"] = pending
	f.attempts.due = []*domain.SendAttempt{pending}

	if _, err := f.service.ProcessDueRetries(ctx); err != nil {
		t.Fatalf("ProcessDueRetries failed: %v", err)
	}

	if f.transport.callCount() != 0 {
		t.Error("inactive domain retry must not invoke the transport")
	}
	stored, _ := f.attempts.FindByID(ctx, "att-1")
	if stored.Status != domain.SendStatusFailed {
		t.Errorf("want failed, got %s", stored.Status)
	}
	if stored.LastError != domain.ErrDomainInactive.Error() {
		t.Errorf("want domain inactive marker, got %q", stored.LastError)
	}
}

func TestDeliveryService_BackoffSequenceClamps(t *testing.T) {
	f := newDeliveryFixture(t)

	cases := []struct {
		retryCount int
		want       time.Duration
	}{
		{1, time.Minute},
		{2, 5 * time.Minute},
		{3, 15 * time.Minute},
		{7, 15 * time.Minute},
	}
	for _, c := range cases {
		if got := f.service.backoffFor(c.retryCount); got != c.want {
			t.Errorf("retry %d: want %v, got %v", c.retryCount, c.want, got)
		}
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("connection refused"), true},
		{errors.New("read: Connection Reset by peer"), true},
		{errors.New("rate limit exceeded"), true},
		{errors.New("relay service unavailable"), true},
		{context.DeadlineExceeded, true},
		{errors.New("550 no such user"), false},
		{errors.New("malformed message"), false},
	}
	for _, c := range cases {
		if got := isTransient(c.err); got != c.want {
			t.Errorf("%v: want %v, got %v", c.err, c.want, got)
		}
	}
}
