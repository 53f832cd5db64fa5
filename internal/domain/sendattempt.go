package domain

import "time"

// SendStatus は送信試行のステータスを表す。
type SendStatus string

const (
	// SendStatusSent は送信成功（終端状態）を表す。
	SendStatusSent SendStatus = "sent"
	// SendStatusPendingRetry は一時的な失敗により再試行待ちであることを表す。
	SendStatusPendingRetry SendStatus = "pending_retry"
	// SendStatusFailed は恒久的な失敗（終端状態）を表す。
	SendStatusFailed SendStatus = "failed"
)

// SendAttempt はメール送信の監査・再試行単位を表す。
// 不変条件:
//   - status = pending_retry のとき NextRetryAt は非nil、かつ RetryCount < 上限
//   - status = sent / failed のとき NextRetryAt は nil
//
// レコードは最初の送信試行時に作成され、以後の再試行では同一レコードを
// その場で更新する（複製しない）。
type SendAttempt struct {
	ID          string
	DomainID    string
	Sender      string
	Recipients  []string
	Subject     string
	HTMLBody    string
	TextBody    string
	ReplyTo     string
	Status      SendStatus
	RetryCount  int
	NextRetryAt *time.Time
	LastError   string
	MessageID   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsTerminal は試行が終端状態（sent / failed）に達しているかを返す。
func (a *SendAttempt) IsTerminal() bool {
	return a.Status == SendStatusSent || a.Status == SendStatusFailed
}

// SendAttemptFilter は監査ログ一覧取得の絞り込み条件。
type SendAttemptFilter struct {
	DomainID string
	Status   SendStatus
	Limit    int
	Offset   int
}

// SendStats は送信試行の集計値を表す。
type SendStats struct {
	Total        int64
	Sent         int64
	Failed       int64
	PendingRetry int64
	SentLast24h  int64
}
