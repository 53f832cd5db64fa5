package middleware

import (
	"context"
	"log/slog"
	"time"

	"mail-delivery-service/internal/domain"
)

// AuditLogger は配送状態遷移の監査ログを出力する観測者。
// DeliveryServiceとRetryWorkerに注入され、全ての永続化済み遷移を記録する。
type AuditLogger struct{}

// NewAuditLogger はAuditLoggerを生成する。
func NewAuditLogger() *AuditLogger {
	return &AuditLogger{}
}

// AttemptRecorded は永続化された送信試行の遷移をログに出力する。
func (l *AuditLogger) AttemptRecorded(ctx context.Context, attempt *domain.SendAttempt) {
	slog.InfoContext(ctx, "send attempt transition",
		"operation", "send_attempt",
		"attempt_id", attempt.ID,
		"domain_id", attempt.DomainID,
		"status", string(attempt.Status),
		"retry_count", attempt.RetryCount,
		"message_id", attempt.MessageID,
		"last_error", attempt.LastError,
		"timestamp", time.Now().UTC().Format(time.RFC3339),
	)
}
