package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"mail-delivery-service/internal/domain"
)

type staticAuthenticator struct {
	identity *domain.CredentialIdentity
	err      error
}

func (a *staticAuthenticator) Authenticate(ctx context.Context, token string) (*domain.CredentialIdentity, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.identity, nil
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer sk_abc", "sk_abc", true},
		{"bearer sk_abc", "sk_abc", true},
		{"Basic dXNlcg==", "", false},
		{"Bearer", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if c.header != "" {
			r.Header.Set("Authorization", c.header)
		}
		token, ok := bearerToken(r)
		if token != c.want || ok != c.ok {
			t.Errorf("header %q: want (%q, %v), got (%q, %v)", c.header, c.want, c.ok, token, ok)
		}
	}
}

func TestAuth_PutsIdentityInContext(t *testing.T) {
	identity := &domain.CredentialIdentity{KeyID: "key-1", DomainID: "dom-1", DomainName: "example.com"}
	handler := Auth(&staticAuthenticator{identity: identity})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := IdentityFrom(r.Context())
		if !ok || got.DomainName != "example.com" {
			t.Errorf("identity not propagated: %+v", got)
		}
	}))

	r := httptest.NewRequest(http.MethodPost, "/v1/send", nil)
	r.Header.Set("Authorization", "Bearer sk_token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	if rec.Code != http.StatusOK {
		t.Errorf("want 200, got %d", rec.Code)
	}
}

func TestAuth_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidCredential, http.StatusUnauthorized},
		{domain.ErrCredentialExpired, http.StatusUnauthorized},
		{domain.ErrDomainInactive, http.StatusForbidden},
	}
	for _, c := range cases {
		handler := Auth(&staticAuthenticator{err: c.err})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler must not be reached on auth failure")
		}))
		r := httptest.NewRequest(http.MethodPost, "/v1/send", nil)
		r.Header.Set("Authorization", "Bearer sk_token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)
		if rec.Code != c.want {
			t.Errorf("%v: want %d, got %d", c.err, c.want, rec.Code)
		}
	}
}
