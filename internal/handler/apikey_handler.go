package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mail-delivery-service/internal/domain"
	"mail-delivery-service/internal/usecase"
	"mail-delivery-service/pkg/httputil"
)

// APIKeyHandler はAPIキー管理APIのハンドラ。
type APIKeyHandler struct {
	service *usecase.CredentialService
}

// NewAPIKeyHandler は新しいAPIKeyHandlerを生成する。
func NewAPIKeyHandler(service *usecase.CredentialService) *APIKeyHandler {
	return &APIKeyHandler{service: service}
}

// APIKeyResponse はAPIキーのレスポンス形式。ハッシュは含めない。
type APIKeyResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	KeyPrefix  string `json:"key_prefix"`
	IsActive   bool   `json:"is_active"`
	ExpiresAt  string `json:"expires_at,omitempty"`
	LastUsedAt string `json:"last_used_at,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// APIKeyIssuedResponse はキー発行・ローテーション時のレスポンス形式。
// 平文トークンはこのレスポンスでのみ返却される。
type APIKeyIssuedResponse struct {
	APIKeyResponse
	Token string `json:"token"`
}

// APIKeyListResponse はキー一覧のレスポンス形式。
type APIKeyListResponse struct {
	Keys []APIKeyResponse `json:"keys"`
}

func toAPIKeyResponse(key *domain.APIKey) APIKeyResponse {
	resp := APIKeyResponse{
		ID:        key.ID,
		Name:      key.Name,
		KeyPrefix: key.KeyPrefix,
		IsActive:  key.IsActive,
		CreatedAt: key.CreatedAt.Format(time.RFC3339),
	}
	if key.ExpiresAt != nil {
		resp.ExpiresAt = key.ExpiresAt.Format(time.RFC3339)
	}
	if key.LastUsedAt != nil {
		resp.LastUsedAt = key.LastUsedAt.Format(time.RFC3339)
	}
	return resp
}

// ttlFromHours は時間単位のTTL指定をDurationへ変換する。0は無期限。
func ttlFromHours(hours int) time.Duration {
	if hours <= 0 {
		return 0
	}
	return time.Duration(hours) * time.Hour
}

// IssueKey は指定ドメインの新しいAPIキーを発行する。
func (h *APIKeyHandler) IssueKey(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string `json:"name"`
		TTLHours int    `json:"ttl_hours,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "request body must be valid JSON")
		return
	}
	if body.Name == "" {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "key name is required")
		return
	}

	key, token, err := h.service.Issue(r.Context(), chi.URLParam(r, "name"), body.Name, ttlFromHours(body.TTLHours))
	if err != nil {
		if errors.Is(err, domain.ErrDomainNotFound) {
			httputil.Error(w, http.StatusNotFound, "DOMAIN_NOT_FOUND", "domain is not registered")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	httputil.JSON(w, http.StatusCreated, APIKeyIssuedResponse{
		APIKeyResponse: toAPIKeyResponse(key),
		Token:          token,
	})
}

// ListKeys はドメイン配下のAPIキー一覧を返す。
func (h *APIKeyHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.service.ListByDomain(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		if errors.Is(err, domain.ErrDomainNotFound) {
			httputil.Error(w, http.StatusNotFound, "DOMAIN_NOT_FOUND", "domain is not registered")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	response := APIKeyListResponse{Keys: make([]APIKeyResponse, len(keys))}
	for i, key := range keys {
		response.Keys[i] = toAPIKeyResponse(key)
	}
	httputil.JSON(w, http.StatusOK, response)
}

// RotateKey はAPIキーのシークレットを差し替える。旧トークンは即時無効になる。
func (h *APIKeyHandler) RotateKey(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TTLHours int `json:"ttl_hours,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "request body must be valid JSON")
			return
		}
	}

	key, token, err := h.service.Rotate(r.Context(), chi.URLParam(r, "id"), ttlFromHours(body.TTLHours))
	if err != nil {
		if errors.Is(err, domain.ErrCredentialNotFound) {
			httputil.Error(w, http.StatusNotFound, "KEY_NOT_FOUND", "api key does not exist")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	httputil.JSON(w, http.StatusOK, APIKeyIssuedResponse{
		APIKeyResponse: toAPIKeyResponse(key),
		Token:          token,
	})
}

// RevokeKey はAPIキーを無効化する。
func (h *APIKeyHandler) RevokeKey(w http.ResponseWriter, r *http.Request) {
	err := h.service.Revoke(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrCredentialNotFound) {
			httputil.Error(w, http.StatusNotFound, "KEY_NOT_FOUND", "api key does not exist")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
