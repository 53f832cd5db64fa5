package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mail-delivery-service/internal/dkim"
	"mail-delivery-service/internal/domain"
	"mail-delivery-service/internal/mail"
	"mail-delivery-service/internal/transport"
)

// RetryPolicy は再試行のポリシー。設定から注入されるチューニング値であり、
// コード中の固定値ではない。
type RetryPolicy struct {
	// Backoff はn回目の失敗後の待ち時間。回数が列を超えた場合は最後の値を使う。
	Backoff []time.Duration
	// MaxRetries は再試行回数の上限。到達した試行はfailedに遷移する。
	MaxRetries int
	// TransportTimeout は1回の配送呼び出しの制限時間。
	TransportTimeout time.Duration
	// BatchSize は1サイクルでクレームする再試行対象の最大件数。
	BatchSize int
}

// SendRequest は送信APIのリクエスト内容。
type SendRequest struct {
	From     string
	To       []string
	Subject  string
	HTMLBody string
	TextBody string
	ReplyTo  string
}

const (
	// maxRecipients は1リクエストあたりの宛先数の上限。
	maxRecipients = 50
	// maxSubjectLength はRFC 5322の1行の上限に合わせた件名の最大長。
	maxSubjectLength = 998
)

// transientPatterns は一時的な配送失敗と判定するエラーメッセージのパターン。
// ここに一致しない配送エラーは恒久失敗として扱う。
var transientPatterns = []string{
	"connection refused",
	"connection reset",
	"connection timeout",
	"timed out",
	"timeout",
	"temporary failure",
	"rate limit",
	"too many connections",
	"service unavailable",
}

// DeliveryService はメッセージの署名・配送・再試行の状態機械を実装するユースケース。
type DeliveryService struct {
	attempts  SendAttemptRepository
	domains   DomainRepository
	cipher    SecretCipher
	transport Transport
	observer  DeliveryObserver
	policy    RetryPolicy
	now       func() time.Time
}

// NewDeliveryService はDeliveryServiceを生成する。
func NewDeliveryService(
	attempts SendAttemptRepository,
	domains DomainRepository,
	cipher SecretCipher,
	tr Transport,
	observer DeliveryObserver,
	policy RetryPolicy,
) *DeliveryService {
	return &DeliveryService{
		attempts:  attempts,
		domains:   domains,
		cipher:    cipher,
		transport: tr,
		observer:  observer,
		policy:    policy,
		now:       time.Now,
	}
}

// validateRequest は境界での形式検証。ここで弾かれたリクエストは
// 送信試行として記録されない。
func validateRequest(req *SendRequest) error {
	switch {
	case req.From == "":
		return fmt.Errorf("%w: from is required", domain.ErrInvalidSendRequest)
	case len(req.To) == 0:
		return fmt.Errorf("%w: at least one recipient is required", domain.ErrInvalidSendRequest)
	case len(req.To) > maxRecipients:
		return fmt.Errorf("%w: at most %d recipients are allowed", domain.ErrInvalidSendRequest, maxRecipients)
	case req.Subject == "":
		return fmt.Errorf("%w: subject is required", domain.ErrInvalidSendRequest)
	case len(req.Subject) > maxSubjectLength:
		return fmt.Errorf("%w: subject exceeds %d characters", domain.ErrInvalidSendRequest, maxSubjectLength)
	case req.HTMLBody == "" && req.TextBody == "":
		return fmt.Errorf("%w: html or text body is required", domain.ErrInvalidSendRequest)
	}
	for _, rcpt := range req.To {
		if !strings.Contains(rcpt, "@") {
			return fmt.Errorf("%w: invalid recipient %q", domain.ErrInvalidSendRequest, rcpt)
		}
	}
	return nil
}

// senderDomain はFromアドレスのドメイン部を返す。"Name <addr>" 形式も受け付ける。
func senderDomain(from string) string {
	addr := from
	if i := strings.LastIndex(addr, "<"); i >= 0 {
		addr = strings.TrimSuffix(addr[i+1:], ">")
	}
	i := strings.LastIndex(addr, "@")
	if i < 0 {
		return ""
	}
	return domain.NormalizeDomainName(addr[i+1:])
}

// Send は認証済みアイデンティティの下でメッセージを送信する。
// 検証を通過した全てのリクエストは、結果によらず必ず1件の送信試行として
// 永続化される。戻り値の試行のStatusが結果を表す。
func (s *DeliveryService) Send(ctx context.Context, identity *domain.CredentialIdentity, req *SendRequest) (*domain.SendAttempt, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	d, err := s.domains.FindByID(ctx, identity.DomainID)
	if err != nil {
		return nil, fmt.Errorf("failed to find domain: %w", err)
	}
	if d == nil {
		return nil, domain.ErrDomainNotFound
	}

	attempt := &domain.SendAttempt{
		DomainID:   d.ID,
		Sender:     req.From,
		Recipients: req.To,
		Subject:    req.Subject,
		HTMLBody:   req.HTMLBody,
		TextBody:   req.TextBody,
		ReplyTo:    req.ReplyTo,
		Status:     domain.SendStatusFailed,
	}

	if !d.IsActive {
		attempt.LastError = domain.ErrDomainInactive.Error()
		if err := s.attempts.Create(ctx, attempt); err != nil {
			return nil, fmt.Errorf("failed to record send attempt: %w", err)
		}
		s.notify(ctx, attempt)
		return attempt, domain.ErrDomainInactive
	}
	if senderDomain(req.From) != d.Name {
		attempt.LastError = domain.ErrSenderDomainMismatch.Error()
		if err := s.attempts.Create(ctx, attempt); err != nil {
			return nil, fmt.Errorf("failed to record send attempt: %w", err)
		}
		s.notify(ctx, attempt)
		return attempt, domain.ErrSenderDomainMismatch
	}

	deliveryErr := s.deliver(ctx, d, attempt)
	s.applyOutcome(attempt, deliveryErr)
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return nil, fmt.Errorf("failed to record send attempt: %w", err)
	}
	s.notify(ctx, attempt)

	slog.InfoContext(ctx, "send attempt recorded",
		"attempt_id", attempt.ID,
		"domain", d.Name,
		"status", string(attempt.Status),
		"retry_count", attempt.RetryCount,
	)
	return attempt, nil
}

// deliver は1回の配送試行を実行する。鍵の復号、メッセージ構築、署名、配送。
// 返り値のエラーは呼び出し側で分類される。
func (s *DeliveryService) deliver(ctx context.Context, d *domain.Domain, attempt *domain.SendAttempt) error {
	pem, err := s.cipher.Decrypt(ctx, d.EncryptedPrivateKey)
	if err != nil {
		slog.ErrorContext(ctx, "failed to decrypt signing key",
			"domain", d.Name,
			"error", err,
		)
		return fmt.Errorf("%w: %s", domain.ErrKeyDecryption, err)
	}

	messageID := attempt.ID + "@" + d.Name
	if attempt.ID == "" {
		// 初回送信ではIDが未採番なので、メッセージIDは別途生成する
		messageID = fmt.Sprintf("%d.%s", s.now().UnixNano(), d.Name)
	}

	raw, err := mail.Build(&mail.Message{
		MessageID:  messageID,
		Sender:     attempt.Sender,
		Recipients: attempt.Recipients,
		ReplyTo:    attempt.ReplyTo,
		Subject:    attempt.Subject,
		HTMLBody:   attempt.HTMLBody,
		TextBody:   attempt.TextBody,
		Date:       s.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to build message: %s", err)
	}

	signed, err := dkim.Sign(raw, d.Name, d.Selector, string(pem))
	if err != nil {
		return fmt.Errorf("failed to sign message: %s", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.policy.TransportTimeout)
	defer cancel()
	if err := s.transport.Send(sendCtx, &transport.Message{
		From:       attempt.Sender,
		Recipients: attempt.Recipients,
		Raw:        signed,
	}); err != nil {
		return err
	}

	attempt.MessageID = messageID
	return nil
}

// applyOutcome は配送結果を状態遷移に変換する。
// 成功 → sent、一時失敗 → pending_retry（上限到達でfailed）、恒久失敗 → failed。
func (s *DeliveryService) applyOutcome(attempt *domain.SendAttempt, deliveryErr error) {
	if deliveryErr == nil {
		attempt.Status = domain.SendStatusSent
		attempt.NextRetryAt = nil
		attempt.LastError = ""
		return
	}

	if !isTransient(deliveryErr) {
		attempt.Status = domain.SendStatusFailed
		attempt.NextRetryAt = nil
		attempt.LastError = deliveryErr.Error()
		return
	}

	attempt.RetryCount++
	if attempt.RetryCount >= s.policy.MaxRetries {
		attempt.Status = domain.SendStatusFailed
		attempt.NextRetryAt = nil
		attempt.LastError = fmt.Sprintf("%s: %s", domain.ErrRetriesExhausted, deliveryErr)
		return
	}

	next := s.now().UTC().Add(s.backoffFor(attempt.RetryCount))
	attempt.Status = domain.SendStatusPendingRetry
	attempt.NextRetryAt = &next
	attempt.LastError = deliveryErr.Error()
}

// backoffFor はn回目の失敗後の待ち時間を返す。列の末尾で頭打ちにする。
func (s *DeliveryService) backoffFor(retryCount int) time.Duration {
	if len(s.policy.Backoff) == 0 {
		return time.Minute
	}
	idx := retryCount - 1
	if idx >= len(s.policy.Backoff) {
		idx = len(s.policy.Backoff) - 1
	}
	return s.policy.Backoff[idx]
}

// isTransient は配送エラーが一時的なものか判定する。
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, domain.ErrKeyDecryption) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// ProcessDueRetries は期限到来した再試行をバッチでクレームし、順次処理する。
// 個々の試行の失敗はログに残して次の試行へ進み、ループ全体は止めない。
// 戻り値は処理した件数。
func (s *DeliveryService) ProcessDueRetries(ctx context.Context) (int, error) {
	lease := s.policy.TransportTimeout + 30*time.Second
	due, err := s.attempts.ClaimDue(ctx, s.now().UTC(), lease, s.policy.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to claim due attempts: %w", err)
	}

	processed := 0
	for _, attempt := range due {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		if err := s.retryOne(ctx, attempt); err != nil {
			slog.ErrorContext(ctx, "failed to process retry",
				"attempt_id", attempt.ID,
				"error", err,
			)
			continue
		}
		processed++
	}
	return processed, nil
}

// retryOne はクレーム済みの1試行を再配送する。
func (s *DeliveryService) retryOne(ctx context.Context, attempt *domain.SendAttempt) error {
	d, err := s.domains.FindByID(ctx, attempt.DomainID)
	if err != nil {
		return fmt.Errorf("failed to find domain: %w", err)
	}

	if d == nil || !d.IsActive {
		// 無効化されたドメインの再試行はTransportを呼ばずに打ち切る
		attempt.Status = domain.SendStatusFailed
		attempt.NextRetryAt = nil
		attempt.LastError = domain.ErrDomainInactive.Error()
	} else {
		deliveryErr := s.deliver(ctx, d, attempt)
		s.applyOutcome(attempt, deliveryErr)
	}

	if err := s.attempts.UpdateOutcome(ctx, attempt); err != nil {
		return fmt.Errorf("failed to record retry outcome: %w", err)
	}
	s.notify(ctx, attempt)

	slog.InfoContext(ctx, "retry processed",
		"attempt_id", attempt.ID,
		"status", string(attempt.Status),
		"retry_count", attempt.RetryCount,
	)
	return nil
}

func (s *DeliveryService) notify(ctx context.Context, attempt *domain.SendAttempt) {
	if s.observer != nil {
		s.observer.AttemptRecorded(ctx, attempt)
	}
}
