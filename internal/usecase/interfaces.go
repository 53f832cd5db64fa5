// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"time"

	"mail-delivery-service/internal/domain"
	"mail-delivery-service/internal/transport"
)

// DomainRepository は送信ドメインのデータアクセスのインターフェース。
type DomainRepository interface {
	Create(ctx context.Context, d *domain.Domain) error
	ExistsByName(ctx context.Context, name string) (bool, error)
	FindByName(ctx context.Context, name string) (*domain.Domain, error)
	FindByID(ctx context.Context, id string) (*domain.Domain, error)
	FindAll(ctx context.Context) ([]*domain.Domain, error)
	UpdateKeyMaterial(ctx context.Context, id, selector, publicKey, encryptedPrivateKey string) error
	SetActive(ctx context.Context, id string, active bool) error
	SetVerified(ctx context.Context, id string, verified bool) error
	Delete(ctx context.Context, id string) error
}

// APIKeyRepository はAPIキーのデータアクセスのインターフェース。
type APIKeyRepository interface {
	Create(ctx context.Context, key *domain.APIKey) error
	FindActiveByPrefix(ctx context.Context, prefix string) ([]*domain.APIKey, error)
	FindByID(ctx context.Context, id string) (*domain.APIKey, error)
	FindAllByDomainID(ctx context.Context, domainID string) ([]*domain.APIKey, error)
	UpdateSecret(ctx context.Context, id, keyHash, keyPrefix string, expiresAt *time.Time) error
	SetActive(ctx context.Context, id string, active bool) error
	TouchLastUsed(ctx context.Context, id string, usedAt time.Time) error
}

// SendAttemptRepository は送信試行のデータアクセスのインターフェース。
type SendAttemptRepository interface {
	Create(ctx context.Context, a *domain.SendAttempt) error
	UpdateOutcome(ctx context.Context, a *domain.SendAttempt) error
	FindByID(ctx context.Context, id string) (*domain.SendAttempt, error)
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*domain.SendAttempt, error)
	List(ctx context.Context, filter domain.SendAttemptFilter) ([]*domain.SendAttempt, error)
	Stats(ctx context.Context, domainID string, now time.Time) (*domain.SendStats, error)
}

// SecretCipher は秘密鍵ブロブの暗号化/復号のインターフェース。
// ローカル（マスターシークレット+KDF）とCloud KMSの実装がある。
type SecretCipher interface {
	Encrypt(ctx context.Context, plaintext []byte) (string, error)
	Decrypt(ctx context.Context, blob string) ([]byte, error)
}

// Transport は署名済みメッセージの配送能力のインターフェース。
type Transport interface {
	Send(ctx context.Context, msg *transport.Message) error
}

// DeliveryObserver は配送状態遷移の観測者。
// グローバルな監視状態を持たず、注入された観測者へ通知する。
type DeliveryObserver interface {
	AttemptRecorded(ctx context.Context, attempt *domain.SendAttempt)
}
