package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mail-delivery-service/internal/dkim"
	"mail-delivery-service/internal/domain"
)

// defaultSelector は新規ドメインのDKIMセレクタ。
const defaultSelector = "mail"

// DomainService は送信ドメインとDKIM鍵のライフサイクルを管理するユースケース。
type DomainService struct {
	domains DomainRepository
	cipher  SecretCipher
	now     func() time.Time
}

// NewDomainService はDomainServiceを生成する。
func NewDomainService(domains DomainRepository, cipher SecretCipher) *DomainService {
	return &DomainService{domains: domains, cipher: cipher, now: time.Now}
}

// RegisterDomain は送信ドメインを登録する。
// DKIM鍵ペアを生成し、秘密鍵を暗号化して永続化する。
// 平文の秘密鍵がプロセス外に出ることはない。
func (s *DomainService) RegisterDomain(ctx context.Context, name string) (*domain.Domain, *dkim.RecordSet, error) {
	normalized := domain.NormalizeDomainName(name)
	if err := domain.ValidateDomainName(normalized); err != nil {
		return nil, nil, err
	}

	exists, err := s.domains.ExistsByName(ctx, normalized)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check domain existence: %w", err)
	}
	if exists {
		return nil, nil, domain.ErrDomainAlreadyExists
	}

	pair, err := dkim.GenerateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate signing key pair: %w", err)
	}

	encrypted, err := s.cipher.Encrypt(ctx, []byte(pair.PrivateKeyPEM))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encrypt private key: %w", err)
	}

	d := &domain.Domain{
		Name:                normalized,
		Selector:            defaultSelector,
		PublicKey:           pair.PublicKey,
		EncryptedPrivateKey: encrypted,
		IsActive:            true,
		IsVerified:          false,
	}
	if err := s.domains.Create(ctx, d); err != nil {
		return nil, nil, fmt.Errorf("failed to create domain: %w", err)
	}

	slog.InfoContext(ctx, "domain registered",
		"domain_id", d.ID,
		"domain", d.Name,
		"selector", d.Selector,
	)

	records := dkim.Records(d.Name, d.Selector, d.PublicKey)
	return d, &records, nil
}

// GetDomain はドメイン名でドメインを取得する。
func (s *DomainService) GetDomain(ctx context.Context, name string) (*domain.Domain, error) {
	d, err := s.domains.FindByName(ctx, domain.NormalizeDomainName(name))
	if err != nil {
		return nil, fmt.Errorf("failed to find domain: %w", err)
	}
	if d == nil {
		return nil, domain.ErrDomainNotFound
	}
	return d, nil
}

// ListDomains は登録済みドメインの一覧を名前順で返す。
func (s *DomainService) ListDomains(ctx context.Context) ([]*domain.Domain, error) {
	domains, err := s.domains.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	return domains, nil
}

// DNSRecords はドメインの公開に必要なDNSレコード一式を返す。
func (s *DomainService) DNSRecords(ctx context.Context, name string) (*dkim.RecordSet, error) {
	d, err := s.GetDomain(ctx, name)
	if err != nil {
		return nil, err
	}
	records := dkim.Records(d.Name, d.Selector, d.PublicKey)
	return &records, nil
}

// RotateKey はドメインのDKIM鍵ペアを新しいセレクタで差し替える。
// セレクタ省略時は日付ベースのセレクタを採番する。
// 旧セレクタのTXTレコードはDNS上に残してよい（キャッシュ切れまで両方有効）。
func (s *DomainService) RotateKey(ctx context.Context, name, newSelector string) (*domain.Domain, *dkim.RecordSet, error) {
	d, err := s.GetDomain(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	if newSelector == "" {
		newSelector = "mail-" + s.now().UTC().Format("20060102")
	}
	if newSelector == d.Selector {
		return nil, nil, fmt.Errorf("%w: selector %q is already in use", domain.ErrInvalidSelector, newSelector)
	}

	pair, err := dkim.GenerateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate signing key pair: %w", err)
	}
	encrypted, err := s.cipher.Encrypt(ctx, []byte(pair.PrivateKeyPEM))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encrypt private key: %w", err)
	}

	if err := s.domains.UpdateKeyMaterial(ctx, d.ID, newSelector, pair.PublicKey, encrypted); err != nil {
		return nil, nil, fmt.Errorf("failed to persist rotated key: %w", err)
	}
	d.Selector = newSelector
	d.PublicKey = pair.PublicKey
	d.EncryptedPrivateKey = encrypted

	slog.InfoContext(ctx, "signing key rotated",
		"domain_id", d.ID,
		"domain", d.Name,
		"selector", d.Selector,
	)
	records := dkim.Records(d.Name, d.Selector, d.PublicKey)
	return d, &records, nil
}

// MarkVerified はDNS設定の確認済みフラグを更新する。
func (s *DomainService) MarkVerified(ctx context.Context, name string, verified bool) error {
	d, err := s.GetDomain(ctx, name)
	if err != nil {
		return err
	}
	if err := s.domains.SetVerified(ctx, d.ID, verified); err != nil {
		return fmt.Errorf("failed to update verified flag: %w", err)
	}
	return nil
}

// DeactivateDomain はドメインを無効化する。以後の送信とリトライは拒否される。
// レコードと監査ログは保持される。
func (s *DomainService) DeactivateDomain(ctx context.Context, name string) error {
	d, err := s.GetDomain(ctx, name)
	if err != nil {
		return err
	}
	if err := s.domains.SetActive(ctx, d.ID, false); err != nil {
		return fmt.Errorf("failed to deactivate domain: %w", err)
	}
	slog.InfoContext(ctx, "domain deactivated", "domain_id", d.ID, "domain", d.Name)
	return nil
}

// DeleteDomain はドメインを完全に削除する。
// 配下のAPIキーと送信記録もカスケード削除される。
func (s *DomainService) DeleteDomain(ctx context.Context, name string) error {
	d, err := s.GetDomain(ctx, name)
	if err != nil {
		return err
	}
	if err := s.domains.Delete(ctx, d.ID); err != nil {
		return fmt.Errorf("failed to delete domain: %w", err)
	}
	slog.InfoContext(ctx, "domain deleted", "domain_id", d.ID, "domain", d.Name)
	return nil
}
