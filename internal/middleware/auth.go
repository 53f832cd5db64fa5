// Package middleware はHTTPミドルウェアと監査ログ出力を提供する。
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"mail-delivery-service/internal/domain"
	"mail-delivery-service/pkg/httputil"
)

// Authenticator はBearerトークンの検証能力のインターフェース。
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.CredentialIdentity, error)
}

type contextKey int

const identityKey contextKey = iota

// Auth はAuthorizationヘッダのBearerトークンを検証し、
// 認証済みアイデンティティをリクエストコンテキストに載せるミドルウェア。
func Auth(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				httputil.Error(w, http.StatusUnauthorized, "MISSING_CREDENTIALS", "authorization header with bearer token is required")
				return
			}

			identity, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, domain.ErrCredentialExpired):
					httputil.Error(w, http.StatusUnauthorized, "CREDENTIAL_EXPIRED", "api key has expired")
				case errors.Is(err, domain.ErrDomainInactive):
					httputil.Error(w, http.StatusForbidden, "DOMAIN_INACTIVE", "sending domain is deactivated")
				case errors.Is(err, domain.ErrInvalidCredential):
					httputil.Error(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "api key is invalid")
				default:
					httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
				}
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken はAuthorizationヘッダからBearerトークンを取り出す。
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// IdentityFrom はコンテキストから認証済みアイデンティティを取り出す。
func IdentityFrom(ctx context.Context) (*domain.CredentialIdentity, bool) {
	identity, ok := ctx.Value(identityKey).(*domain.CredentialIdentity)
	return identity, ok
}
