// Package handler はHTTPハンドラを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"mail-delivery-service/internal/domain"
	"mail-delivery-service/internal/middleware"
	"mail-delivery-service/internal/usecase"
	"mail-delivery-service/pkg/httputil"
)

// SendHandler はメール送信APIのハンドラ。
type SendHandler struct {
	delivery *usecase.DeliveryService
}

// NewSendHandler は新しいSendHandlerを生成する。
func NewSendHandler(delivery *usecase.DeliveryService) *SendHandler {
	return &SendHandler{delivery: delivery}
}

// RecipientList は単一文字列と配列の両方を受け付ける宛先リスト。
type RecipientList []string

// UnmarshalJSON はJSON文字列またはJSON配列を宛先リストとして解釈する。
func (r *RecipientList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*r = RecipientList{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*r = RecipientList(list)
	return nil
}

// SendRequestBody は送信リクエストの形式。
type SendRequestBody struct {
	From    string        `json:"from"`
	To      RecipientList `json:"to"`
	Subject string        `json:"subject"`
	HTML    string        `json:"html,omitempty"`
	Text    string        `json:"text,omitempty"`
	ReplyTo string        `json:"reply_to,omitempty"`
}

// SendResponse は送信成功時のレスポンス形式。
type SendResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id"`
}

// Send はメッセージを署名して配送する。
func (h *SendHandler) Send(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "MISSING_CREDENTIALS", "request is not authenticated")
		return
	}

	var body SendRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "request body must be valid JSON")
		return
	}

	attempt, err := h.delivery.Send(r.Context(), identity, &usecase.SendRequest{
		From:     body.From,
		To:       []string(body.To),
		Subject:  body.Subject,
		HTMLBody: body.HTML,
		TextBody: body.Text,
		ReplyTo:  body.ReplyTo,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidSendRequest):
			httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		case errors.Is(err, domain.ErrSenderDomainMismatch):
			httputil.Error(w, http.StatusForbidden, "SENDER_DOMAIN_MISMATCH", "from address does not belong to the authenticated domain")
		case errors.Is(err, domain.ErrDomainInactive):
			httputil.Error(w, http.StatusForbidden, "DOMAIN_INACTIVE", "sending domain is deactivated")
		case errors.Is(err, domain.ErrDomainNotFound):
			httputil.Error(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "authenticated domain no longer exists")
		default:
			httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return
	}

	switch attempt.Status {
	case domain.SendStatusSent:
		httputil.JSON(w, http.StatusOK, SendResponse{
			Success:   true,
			MessageID: attempt.MessageID,
		})
	case domain.SendStatusPendingRetry:
		// 一時的な失敗は受理済みとして返し、再試行スケジューラに委ねる
		httputil.Error(w, http.StatusAccepted, "DELIVERY_DEFERRED", "delivery failed transiently and is queued for retry")
	default:
		httputil.Error(w, http.StatusBadGateway, "DELIVERY_FAILED", attempt.LastError)
	}
}
