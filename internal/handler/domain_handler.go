package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mail-delivery-service/internal/dkim"
	"mail-delivery-service/internal/domain"
	"mail-delivery-service/internal/usecase"
	"mail-delivery-service/pkg/httputil"
)

// DomainHandler は送信ドメイン管理APIのハンドラ。
type DomainHandler struct {
	service *usecase.DomainService
}

// NewDomainHandler は新しいDomainHandlerを生成する。
func NewDomainHandler(service *usecase.DomainService) *DomainHandler {
	return &DomainHandler{service: service}
}

// DomainResponse はドメインのレスポンス形式。秘密鍵は決して含めない。
type DomainResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Selector   string `json:"selector"`
	PublicKey  string `json:"public_key"`
	IsActive   bool   `json:"is_active"`
	IsVerified bool   `json:"is_verified"`
	CreatedAt  string `json:"created_at"`
}

// DomainCreateResponse はドメイン登録時のレスポンス形式。
type DomainCreateResponse struct {
	Domain  DomainResponse  `json:"domain"`
	Records *dkim.RecordSet `json:"dns_records"`
}

// DomainListResponse はドメイン一覧のレスポンス形式。
type DomainListResponse struct {
	Domains []DomainResponse `json:"domains"`
}

func toDomainResponse(d *domain.Domain) DomainResponse {
	return DomainResponse{
		ID:         d.ID,
		Name:       d.Name,
		Selector:   d.Selector,
		PublicKey:  d.PublicKey,
		IsActive:   d.IsActive,
		IsVerified: d.IsVerified,
		CreatedAt:  d.CreatedAt.Format(time.RFC3339),
	}
}

// CreateDomain は新しい送信ドメインを登録し、公開用DNSレコードを返す。
func (h *DomainHandler) CreateDomain(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "request body must be valid JSON")
		return
	}

	d, records, err := h.service.RegisterDomain(r.Context(), body.Name)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidDomainName):
			httputil.Error(w, http.StatusBadRequest, "INVALID_DOMAIN_NAME", "domain name is not a valid DNS name")
		case errors.Is(err, domain.ErrDomainAlreadyExists):
			httputil.Error(w, http.StatusConflict, "DOMAIN_ALREADY_EXISTS", "domain is already registered")
		default:
			httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return
	}

	httputil.JSON(w, http.StatusCreated, DomainCreateResponse{
		Domain:  toDomainResponse(d),
		Records: records,
	})
}

// ListDomains は登録済みドメインの一覧を返す。
func (h *DomainHandler) ListDomains(w http.ResponseWriter, r *http.Request) {
	domains, err := h.service.ListDomains(r.Context())
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	response := DomainListResponse{Domains: make([]DomainResponse, len(domains))}
	for i, d := range domains {
		response.Domains[i] = toDomainResponse(d)
	}
	httputil.JSON(w, http.StatusOK, response)
}

// GetDomain は単一ドメインの情報を返す。
func (h *DomainHandler) GetDomain(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.GetDomain(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		if errors.Is(err, domain.ErrDomainNotFound) {
			httputil.Error(w, http.StatusNotFound, "DOMAIN_NOT_FOUND", "domain is not registered")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}
	httputil.JSON(w, http.StatusOK, toDomainResponse(d))
}

// GetDNSRecords はドメインの公開に必要なDNSレコード一式を返す。
func (h *DomainHandler) GetDNSRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.DNSRecords(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		if errors.Is(err, domain.ErrDomainNotFound) {
			httputil.Error(w, http.StatusNotFound, "DOMAIN_NOT_FOUND", "domain is not registered")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}
	httputil.JSON(w, http.StatusOK, records)
}

// RotateSigningKey はドメインのDKIM鍵を差し替え、公開用DNSレコードを返す。
func (h *DomainHandler) RotateSigningKey(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Selector string `json:"selector,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "request body must be valid JSON")
			return
		}
	}

	d, records, err := h.service.RotateKey(r.Context(), chi.URLParam(r, "name"), body.Selector)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrDomainNotFound):
			httputil.Error(w, http.StatusNotFound, "DOMAIN_NOT_FOUND", "domain is not registered")
		case errors.Is(err, domain.ErrInvalidSelector):
			httputil.Error(w, http.StatusBadRequest, "INVALID_SELECTOR", err.Error())
		default:
			httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return
	}

	httputil.JSON(w, http.StatusOK, DomainCreateResponse{
		Domain:  toDomainResponse(d),
		Records: records,
	})
}

// VerifyDomain はDNS設定の確認済みフラグを更新する。ボディ省略時は確認済みにする。
func (h *DomainHandler) VerifyDomain(w http.ResponseWriter, r *http.Request) {
	verified := true
	if r.ContentLength > 0 {
		var body struct {
			Verified *bool `json:"verified"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "request body must be valid JSON")
			return
		}
		if body.Verified != nil {
			verified = *body.Verified
		}
	}

	name := chi.URLParam(r, "name")
	if err := h.service.MarkVerified(r.Context(), name, verified); err != nil {
		if errors.Is(err, domain.ErrDomainNotFound) {
			httputil.Error(w, http.StatusNotFound, "DOMAIN_NOT_FOUND", "domain is not registered")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	d, err := h.service.GetDomain(r.Context(), name)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}
	httputil.JSON(w, http.StatusOK, toDomainResponse(d))
}

// DeleteDomain はドメインを無効化する。記録は削除しない。
// ?purge=true の場合はAPIキー・送信記録ごと完全に削除する。
func (h *DomainHandler) DeleteDomain(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var err error
	purge := r.URL.Query().Get("purge") == "true"
	if purge {
		err = h.service.DeleteDomain(r.Context(), name)
	} else {
		err = h.service.DeactivateDomain(r.Context(), name)
	}
	if err != nil {
		if errors.Is(err, domain.ErrDomainNotFound) {
			httputil.Error(w, http.StatusNotFound, "DOMAIN_NOT_FOUND", "domain is not registered")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	if purge {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
