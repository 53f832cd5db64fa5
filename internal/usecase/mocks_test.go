package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"mail-delivery-service/internal/domain"
	"mail-delivery-service/internal/transport"
)

// mockDomainRepo はテスト用のインメモリDomainRepository。
type mockDomainRepo struct {
	domains   map[string]*domain.Domain
	createErr error
	seq       int
}

func newMockDomainRepo() *mockDomainRepo {
	return &mockDomainRepo{domains: make(map[string]*domain.Domain)}
}

func (m *mockDomainRepo) put(d *domain.Domain) *domain.Domain {
	m.domains[d.ID] = d
	return d
}

func (m *mockDomainRepo) Create(ctx context.Context, d *domain.Domain) error {
	if m.createErr != nil {
		return m.createErr
	}
	if d.ID == "" {
		m.seq++
		d.ID = fmt.Sprintf("dom-%d", m.seq)
	}
	copied := *d
	m.domains[d.ID] = &copied
	return nil
}

func (m *mockDomainRepo) ExistsByName(ctx context.Context, name string) (bool, error) {
	for _, d := range m.domains {
		if d.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockDomainRepo) FindByName(ctx context.Context, name string) (*domain.Domain, error) {
	for _, d := range m.domains {
		if d.Name == name {
			copied := *d
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockDomainRepo) FindByID(ctx context.Context, id string) (*domain.Domain, error) {
	d, ok := m.domains[id]
	if !ok {
		return nil, nil
	}
	copied := *d
	return &copied, nil
}

func (m *mockDomainRepo) FindAll(ctx context.Context) ([]*domain.Domain, error) {
	var all []*domain.Domain
	for _, d := range m.domains {
		copied := *d
		all = append(all, &copied)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all, nil
}

func (m *mockDomainRepo) UpdateKeyMaterial(ctx context.Context, id, selector, publicKey, encryptedPrivateKey string) error {
	d, ok := m.domains[id]
	if !ok {
		return fmt.Errorf("domain %s not found", id)
	}
	d.Selector = selector
	d.PublicKey = publicKey
	d.EncryptedPrivateKey = encryptedPrivateKey
	return nil
}

func (m *mockDomainRepo) SetActive(ctx context.Context, id string, active bool) error {
	d, ok := m.domains[id]
	if !ok {
		return fmt.Errorf("domain %s not found", id)
	}
	d.IsActive = active
	return nil
}

func (m *mockDomainRepo) SetVerified(ctx context.Context, id string, verified bool) error {
	d, ok := m.domains[id]
	if !ok {
		return fmt.Errorf("domain %s not found", id)
	}
	d.IsVerified = verified
	return nil
}

func (m *mockDomainRepo) Delete(ctx context.Context, id string) error {
	delete(m.domains, id)
	return nil
}

// mockAPIKeyRepo はテスト用のインメモリAPIKeyRepository。
type mockAPIKeyRepo struct {
	keys      map[string]*domain.APIKey
	createErr error
	touched   []string
	touchErr  error
	seq       int
}

func newMockAPIKeyRepo() *mockAPIKeyRepo {
	return &mockAPIKeyRepo{keys: make(map[string]*domain.APIKey)}
}

func (m *mockAPIKeyRepo) Create(ctx context.Context, key *domain.APIKey) error {
	if m.createErr != nil {
		return m.createErr
	}
	if key.ID == "" {
		m.seq++
		key.ID = fmt.Sprintf("key-%d", m.seq)
	}
	copied := *key
	m.keys[key.ID] = &copied
	return nil
}

func (m *mockAPIKeyRepo) FindActiveByPrefix(ctx context.Context, prefix string) ([]*domain.APIKey, error) {
	var result []*domain.APIKey
	for _, key := range m.keys {
		if key.IsActive && key.KeyPrefix == prefix {
			copied := *key
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *mockAPIKeyRepo) FindByID(ctx context.Context, id string) (*domain.APIKey, error) {
	key, ok := m.keys[id]
	if !ok {
		return nil, nil
	}
	copied := *key
	return &copied, nil
}

func (m *mockAPIKeyRepo) FindAllByDomainID(ctx context.Context, domainID string) ([]*domain.APIKey, error) {
	var result []*domain.APIKey
	for _, key := range m.keys {
		if key.DomainID == domainID {
			copied := *key
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *mockAPIKeyRepo) UpdateSecret(ctx context.Context, id, keyHash, keyPrefix string, expiresAt *time.Time) error {
	key, ok := m.keys[id]
	if !ok {
		return fmt.Errorf("api key %s not found", id)
	}
	key.KeyHash = keyHash
	key.KeyPrefix = keyPrefix
	key.ExpiresAt = expiresAt
	return nil
}

func (m *mockAPIKeyRepo) SetActive(ctx context.Context, id string, active bool) error {
	key, ok := m.keys[id]
	if !ok {
		return fmt.Errorf("api key %s not found", id)
	}
	key.IsActive = active
	return nil
}

func (m *mockAPIKeyRepo) TouchLastUsed(ctx context.Context, id string, usedAt time.Time) error {
	if m.touchErr != nil {
		return m.touchErr
	}
	m.touched = append(m.touched, id)
	if key, ok := m.keys[id]; ok {
		key.LastUsedAt = &usedAt
	}
	return nil
}

// mockAttemptRepo はテスト用のインメモリSendAttemptRepository。
type mockAttemptRepo struct {
	attempts  map[string]*domain.SendAttempt
	due       []*domain.SendAttempt
	createErr error
	updateErr error
	seq       int
}

func newMockAttemptRepo() *mockAttemptRepo {
	return &mockAttemptRepo{attempts: make(map[string]*domain.SendAttempt)}
}

func (m *mockAttemptRepo) Create(ctx context.Context, a *domain.SendAttempt) error {
	if m.createErr != nil {
		return m.createErr
	}
	if a.ID == "" {
		m.seq++
		a.ID = fmt.Sprintf("att-%d", m.seq)
	}
	copied := *a
	m.attempts[a.ID] = &copied
	return nil
}

func (m *mockAttemptRepo) UpdateOutcome(ctx context.Context, a *domain.SendAttempt) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	copied := *a
	m.attempts[a.ID] = &copied
	return nil
}

func (m *mockAttemptRepo) FindByID(ctx context.Context, id string) (*domain.SendAttempt, error) {
	a, ok := m.attempts[id]
	if !ok {
		return nil, nil
	}
	copied := *a
	return &copied, nil
}

func (m *mockAttemptRepo) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*domain.SendAttempt, error) {
	due := m.due
	m.due = nil
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *mockAttemptRepo) List(ctx context.Context, filter domain.SendAttemptFilter) ([]*domain.SendAttempt, error) {
	var result []*domain.SendAttempt
	for _, a := range m.attempts {
		if filter.DomainID != "" && a.DomainID != filter.DomainID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		copied := *a
		result = append(result, &copied)
	}
	return result, nil
}

func (m *mockAttemptRepo) Stats(ctx context.Context, domainID string, now time.Time) (*domain.SendStats, error) {
	stats := &domain.SendStats{}
	for _, a := range m.attempts {
		if domainID != "" && a.DomainID != domainID {
			continue
		}
		stats.Total++
		switch a.Status {
		case domain.SendStatusSent:
			stats.Sent++
		case domain.SendStatusFailed:
			stats.Failed++
		case domain.SendStatusPendingRetry:
			stats.PendingRetry++
		}
	}
	return stats, nil
}

// mockCipher は"enc:"プレフィックスで可逆変換するテスト用SecretCipher。
type mockCipher struct {
	encryptErr error
	decryptErr error
}

func (c *mockCipher) Encrypt(ctx context.Context, plaintext []byte) (string, error) {
	if c.encryptErr != nil {
		return "", c.encryptErr
	}
	return "enc:" + string(plaintext), nil
}

func (c *mockCipher) Decrypt(ctx context.Context, blob string) ([]byte, error) {
	if c.decryptErr != nil {
		return nil, c.decryptErr
	}
	rest, ok := strings.CutPrefix(blob, "enc:")
	if !ok {
		return nil, fmt.Errorf("unexpected blob %q", blob)
	}
	return []byte(rest), nil
}

// mockTransport は配送呼び出しを記録するテスト用Transport。
// errsが残っている間は先頭から順にエラーを返す。
type mockTransport struct {
	mu    sync.Mutex
	sent  []*transport.Message
	errs  []error
	delay time.Duration
}

func (t *mockTransport) Send(ctx context.Context, msg *transport.Message) error {
	if t.delay > 0 {
		select {
		case <-time.After(t.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, msg)
	if len(t.errs) > 0 {
		err := t.errs[0]
		t.errs = t.errs[1:]
		return err
	}
	return nil
}

func (t *mockTransport) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

// mockObserver は観測された遷移を記録する。
type mockObserver struct {
	mu       sync.Mutex
	recorded []domain.SendStatus
}

func (o *mockObserver) AttemptRecorded(ctx context.Context, attempt *domain.SendAttempt) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recorded = append(o.recorded, attempt.Status)
}
