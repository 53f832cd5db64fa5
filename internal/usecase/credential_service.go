package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"mail-delivery-service/internal/domain"
)

const (
	// tokenPrefix はAPIトークンの固定プレフィックス。
	tokenPrefix = "sk_"
	// tokenRandomBytes はトークンの乱数部のバイト数（hexで64文字になる）。
	tokenRandomBytes = 32
	// lookupPrefixLen はDB検索に使うトークン先頭の文字数。
	lookupPrefixLen = 11
)

// CredentialService はAPIキーの発行・認証・ローテーションを管理するユースケース。
type CredentialService struct {
	keys    APIKeyRepository
	domains DomainRepository
	now     func() time.Time
}

// NewCredentialService はCredentialServiceを生成する。
func NewCredentialService(keys APIKeyRepository, domains DomainRepository) *CredentialService {
	return &CredentialService{keys: keys, domains: domains, now: time.Now}
}

// generateToken は新しいAPIトークンの平文・ハッシュ・検索用プレフィックスを生成する。
func generateToken() (token, hash, prefix string, err error) {
	buf := make([]byte, tokenRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	token = tokenPrefix + hex.EncodeToString(buf)

	hashed, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to hash token: %w", err)
	}
	return token, string(hashed), token[:lookupPrefixLen], nil
}

// Issue は指定されたドメインに対して新しいAPIキーを発行する。
// 平文トークンはこの呼び出しでのみ返却され、以後は復元できない。
// ttlが0の場合は無期限のキーになる。
func (s *CredentialService) Issue(ctx context.Context, domainName, keyName string, ttl time.Duration) (*domain.APIKey, string, error) {
	d, err := s.domains.FindByName(ctx, domain.NormalizeDomainName(domainName))
	if err != nil {
		return nil, "", fmt.Errorf("failed to find domain: %w", err)
	}
	if d == nil {
		return nil, "", domain.ErrDomainNotFound
	}

	token, hash, prefix, err := generateToken()
	if err != nil {
		return nil, "", err
	}

	key := &domain.APIKey{
		DomainID:  d.ID,
		Name:      keyName,
		KeyHash:   hash,
		KeyPrefix: prefix,
		IsActive:  true,
	}
	if ttl > 0 {
		expires := s.now().UTC().Add(ttl)
		key.ExpiresAt = &expires
	}
	if err := s.keys.Create(ctx, key); err != nil {
		return nil, "", fmt.Errorf("failed to create api key: %w", err)
	}

	slog.InfoContext(ctx, "api key issued",
		"key_id", key.ID,
		"key_name", key.Name,
		"domain", d.Name,
		"prefix", key.KeyPrefix,
	)
	return key, token, nil
}

// Authenticate は平文トークンを検証し、認証済みアイデンティティを返す。
// プレフィックスは検索の絞り込みにのみ使い、一致判定は必ずハッシュ比較で行う。
// 失効したキーが一致した場合のみErrCredentialExpiredを返す。
func (s *CredentialService) Authenticate(ctx context.Context, token string) (*domain.CredentialIdentity, error) {
	if !validTokenFormat(token) {
		return nil, domain.ErrInvalidCredential
	}

	candidates, err := s.keys.FindActiveByPrefix(ctx, token[:lookupPrefixLen])
	if err != nil {
		return nil, fmt.Errorf("failed to look up api keys: %w", err)
	}

	now := s.now().UTC()
	sawExpired := false
	for _, key := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(token)) != nil {
			continue
		}
		if key.IsExpired(now) {
			sawExpired = true
			continue
		}

		d, err := s.domains.FindByID(ctx, key.DomainID)
		if err != nil {
			return nil, fmt.Errorf("failed to find domain: %w", err)
		}
		if d == nil {
			return nil, domain.ErrInvalidCredential
		}
		if !d.IsActive {
			return nil, domain.ErrDomainInactive
		}

		// 最終使用時刻の更新は認証の成否に影響させない
		if err := s.keys.TouchLastUsed(ctx, key.ID, now); err != nil {
			slog.WarnContext(ctx, "failed to update last_used_at", "key_id", key.ID, "error", err)
		}

		return &domain.CredentialIdentity{
			KeyID:      key.ID,
			KeyName:    key.Name,
			DomainID:   d.ID,
			DomainName: d.Name,
		}, nil
	}

	if sawExpired {
		return nil, domain.ErrCredentialExpired
	}
	return nil, domain.ErrInvalidCredential
}

// validTokenFormat はトークンの形式（sk_ + 64文字の小文字hex）を検証する。
func validTokenFormat(token string) bool {
	if len(token) != len(tokenPrefix)+tokenRandomBytes*2 {
		return false
	}
	if !strings.HasPrefix(token, tokenPrefix) {
		return false
	}
	for _, c := range token[len(tokenPrefix):] {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// ListByDomain はドメイン配下のAPIキー一覧を返す。
func (s *CredentialService) ListByDomain(ctx context.Context, domainName string) ([]*domain.APIKey, error) {
	d, err := s.domains.FindByName(ctx, domain.NormalizeDomainName(domainName))
	if err != nil {
		return nil, fmt.Errorf("failed to find domain: %w", err)
	}
	if d == nil {
		return nil, domain.ErrDomainNotFound
	}
	keys, err := s.keys.FindAllByDomainID(ctx, d.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	return keys, nil
}

// Rotate は既存キーのシークレットを新しいトークンで差し替える。
// キーのIDと名前は維持され、旧トークンは即座に無効になる。
func (s *CredentialService) Rotate(ctx context.Context, keyID string, ttl time.Duration) (*domain.APIKey, string, error) {
	key, err := s.keys.FindByID(ctx, keyID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to find api key: %w", err)
	}
	if key == nil {
		return nil, "", domain.ErrCredentialNotFound
	}

	token, hash, prefix, err := generateToken()
	if err != nil {
		return nil, "", err
	}

	var expiresAt *time.Time
	if ttl > 0 {
		expires := s.now().UTC().Add(ttl)
		expiresAt = &expires
	}
	if err := s.keys.UpdateSecret(ctx, key.ID, hash, prefix, expiresAt); err != nil {
		return nil, "", fmt.Errorf("failed to rotate api key: %w", err)
	}

	key.KeyHash = hash
	key.KeyPrefix = prefix
	key.ExpiresAt = expiresAt

	slog.InfoContext(ctx, "api key rotated",
		"key_id", key.ID,
		"key_name", key.Name,
		"prefix", key.KeyPrefix,
	)
	return key, token, nil
}

// Revoke は指定されたキーを無効化する。レコード自体は監査のため残る。
func (s *CredentialService) Revoke(ctx context.Context, keyID string) error {
	key, err := s.keys.FindByID(ctx, keyID)
	if err != nil {
		return fmt.Errorf("failed to find api key: %w", err)
	}
	if key == nil {
		return domain.ErrCredentialNotFound
	}
	if err := s.keys.SetActive(ctx, key.ID, false); err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}
	slog.InfoContext(ctx, "api key revoked", "key_id", key.ID, "key_name", key.Name)
	return nil
}
