package domain

import "time"

// APIKey はAPIキー（クレデンシャル）エンティティを表す。
// 生のシークレットは発行・ローテーション時にのみ存在し、
// 永続化されるのは一方向ハッシュとプレフィックスのみ。
type APIKey struct {
	ID         string
	DomainID   string
	Name       string
	KeyHash    string
	KeyPrefix  string
	IsActive   bool
	ExpiresAt  *time.Time
	LastUsedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsExpired は指定時刻においてAPIキーが期限切れかどうかを返す。
func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}

// CredentialIdentity は認証成功時に呼び出し元へ渡すテナント識別情報。
type CredentialIdentity struct {
	KeyID      string
	KeyName    string
	DomainID   string
	DomainName string
}
