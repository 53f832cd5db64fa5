package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"mail-delivery-service/internal/domain"
	"mail-delivery-service/internal/usecase"
	"mail-delivery-service/pkg/httputil"
)

// LogsHandler は送信監査ログAPIのハンドラ。
type LogsHandler struct {
	service *usecase.SendLogService
}

// NewLogsHandler は新しいLogsHandlerを生成する。
func NewLogsHandler(service *usecase.SendLogService) *LogsHandler {
	return &LogsHandler{service: service}
}

// SendAttemptResponse は送信試行のレスポンス形式。
type SendAttemptResponse struct {
	ID          string   `json:"id"`
	DomainID    string   `json:"domain_id"`
	Sender      string   `json:"sender"`
	Recipients  []string `json:"recipients"`
	Subject     string   `json:"subject"`
	Status      string   `json:"status"`
	RetryCount  int      `json:"retry_count"`
	NextRetryAt string   `json:"next_retry_at,omitempty"`
	LastError   string   `json:"last_error,omitempty"`
	MessageID   string   `json:"message_id,omitempty"`
	CreatedAt   string   `json:"created_at"`
}

// SendLogListResponse は監査ログ一覧のレスポンス形式。
type SendLogListResponse struct {
	Attempts []SendAttemptResponse `json:"attempts"`
}

// SendStatsResponse は送信集計のレスポンス形式。
type SendStatsResponse struct {
	Total        int64 `json:"total"`
	Sent         int64 `json:"sent"`
	Failed       int64 `json:"failed"`
	PendingRetry int64 `json:"pending_retry"`
	SentLast24h  int64 `json:"sent_last_24h"`
}

func toAttemptResponse(a *domain.SendAttempt) SendAttemptResponse {
	resp := SendAttemptResponse{
		ID:         a.ID,
		DomainID:   a.DomainID,
		Sender:     a.Sender,
		Recipients: a.Recipients,
		Subject:    a.Subject,
		Status:     string(a.Status),
		RetryCount: a.RetryCount,
		LastError:  a.LastError,
		MessageID:  a.MessageID,
		CreatedAt:  a.CreatedAt.Format(time.RFC3339),
	}
	if a.NextRetryAt != nil {
		resp.NextRetryAt = a.NextRetryAt.Format(time.RFC3339)
	}
	return resp
}

// queryInt はクエリパラメータを整数として読む。未指定・不正は0。
func queryInt(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// ListLogs は送信試行を新しい順で返す。domain / status / limit / offset で絞り込める。
func (h *LogsHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	status := domain.SendStatus(r.URL.Query().Get("status"))
	switch status {
	case "", domain.SendStatusSent, domain.SendStatusPendingRetry, domain.SendStatusFailed:
	default:
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "unknown status filter")
		return
	}

	attempts, err := h.service.List(r.Context(),
		r.URL.Query().Get("domain"),
		status,
		queryInt(r, "limit"),
		queryInt(r, "offset"),
	)
	if err != nil {
		if errors.Is(err, domain.ErrDomainNotFound) {
			httputil.Error(w, http.StatusNotFound, "DOMAIN_NOT_FOUND", "domain is not registered")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	response := SendLogListResponse{Attempts: make([]SendAttemptResponse, len(attempts))}
	for i, a := range attempts {
		response.Attempts[i] = toAttemptResponse(a)
	}
	httputil.JSON(w, http.StatusOK, response)
}

// GetStats は送信試行の集計値を返す。domainで絞り込める。
func (h *LogsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context(), r.URL.Query().Get("domain"))
	if err != nil {
		if errors.Is(err, domain.ErrDomainNotFound) {
			httputil.Error(w, http.StatusNotFound, "DOMAIN_NOT_FOUND", "domain is not registered")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	httputil.JSON(w, http.StatusOK, SendStatsResponse{
		Total:        stats.Total,
		Sent:         stats.Sent,
		Failed:       stats.Failed,
		PendingRetry: stats.PendingRetry,
		SentLast24h:  stats.SentLast24h,
	})
}
