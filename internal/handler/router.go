package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"mail-delivery-service/config"
	"mail-delivery-service/internal/middleware"
	"mail-delivery-service/pkg/httputil"
)

// Handlers はルーターに載せるハンドラ一式。
type Handlers struct {
	Send    *SendHandler
	Domains *DomainHandler
	APIKeys *APIKeyHandler
	Logs    *LogsHandler
}

// NewRouter はルーターを生成する。
// 送信APIのみBearer認証を要求する。管理APIは前段で保護される前提。
func NewRouter(h *Handlers, authn middleware.Authenticator, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// 送信API（Bearer認証）
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(authn))
		r.Post("/v1/send", h.Send.Send)
	})

	// 管理API
	r.Route("/v1/domains", func(r chi.Router) {
		r.Post("/", h.Domains.CreateDomain)
		r.Get("/", h.Domains.ListDomains)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", h.Domains.GetDomain)
			r.Get("/dns", h.Domains.GetDNSRecords)
			r.Post("/rotate-key", h.Domains.RotateSigningKey)
			r.Post("/verify", h.Domains.VerifyDomain)
			r.Delete("/", h.Domains.DeleteDomain)
			r.Post("/keys", h.APIKeys.IssueKey)
			r.Get("/keys", h.APIKeys.ListKeys)
		})
	})
	r.Route("/v1/keys/{id}", func(r chi.Router) {
		r.Post("/rotate", h.APIKeys.RotateKey)
		r.Delete("/", h.APIKeys.RevokeKey)
	})

	r.Get("/v1/logs", h.Logs.ListLogs)
	r.Get("/v1/stats", h.Logs.GetStats)

	if cfg.OtelEnabled {
		return otelhttp.NewHandler(r, cfg.OtelServiceName)
	}
	return r
}
