// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import (
	"regexp"
	"strings"
	"time"
)

var domainNameRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)+$`)

// Domain は送信ドメイン（テナント）エンティティを表す。
// 秘密鍵は必ず暗号化された状態で保持し、平文では永続化しない。
type Domain struct {
	ID                  string
	Name                string
	Selector            string
	PublicKey           string
	EncryptedPrivateKey string
	IsActive            bool
	IsVerified          bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NormalizeDomainName はドメイン名を小文字に正規化する。
func NormalizeDomainName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidateDomainName はドメイン名がDNS名として妥当か検証する。
func ValidateDomainName(name string) error {
	if name == "" || len(name) > 253 {
		return ErrInvalidDomainName
	}
	if !domainNameRegex.MatchString(name) {
		return ErrInvalidDomainName
	}
	return nil
}
