package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"mail-delivery-service/internal/domain"
)

// SendAttemptModel はgorm用のモデル定義。
type SendAttemptModel struct {
	ID          string     `gorm:"type:char(36);primaryKey"`
	DomainID    string     `gorm:"type:char(36);not null;index:idx_attempts_domain;index:idx_attempts_domain_status,priority:2"`
	Sender      string     `gorm:"type:varchar(320);not null"`
	Recipients  string     `gorm:"type:text;not null"` // JSON配列
	Subject     string     `gorm:"type:varchar(998);not null"`
	HTMLBody    string     `gorm:"type:longtext"`
	TextBody    string     `gorm:"type:longtext"`
	ReplyTo     string     `gorm:"type:varchar(320)"`
	Status      string     `gorm:"type:enum('sent','pending_retry','failed');not null;index:idx_attempts_due,priority:1;index:idx_attempts_domain_status,priority:1"`
	RetryCount  int        `gorm:"not null;default:0"`
	NextRetryAt *time.Time `gorm:"type:datetime(6);index:idx_attempts_due,priority:2"`
	LastError   string     `gorm:"type:text"`
	MessageID   string     `gorm:"type:varchar(320)"`
	CreatedAt   time.Time  `gorm:"type:datetime(6);not null;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"type:datetime(6);not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (SendAttemptModel) TableName() string {
	return "send_attempts"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *SendAttemptModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// toDomain はモデルをドメインエンティティに変換する。
func (m *SendAttemptModel) toDomain() *domain.SendAttempt {
	var recipients []string
	// 不正なJSONは空の宛先リストとして扱い、読み出し自体は失敗させない
	_ = json.Unmarshal([]byte(m.Recipients), &recipients)

	return &domain.SendAttempt{
		ID:          m.ID,
		DomainID:    m.DomainID,
		Sender:      m.Sender,
		Recipients:  recipients,
		Subject:     m.Subject,
		HTMLBody:    m.HTMLBody,
		TextBody:    m.TextBody,
		ReplyTo:     m.ReplyTo,
		Status:      domain.SendStatus(m.Status),
		RetryCount:  m.RetryCount,
		NextRetryAt: m.NextRetryAt,
		LastError:   m.LastError,
		MessageID:   m.MessageID,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// SendAttemptRepository は送信試行のデータアクセスを提供する。
type SendAttemptRepository struct {
	db *gorm.DB
}

// NewSendAttemptRepository は新しいSendAttemptRepositoryを生成する。
func NewSendAttemptRepository(db *gorm.DB) *SendAttemptRepository {
	return &SendAttemptRepository{db: db}
}

// Create は新しい送信試行を保存する。
func (r *SendAttemptRepository) Create(ctx context.Context, a *domain.SendAttempt) error {
	recipients, err := json.Marshal(a.Recipients)
	if err != nil {
		return err
	}
	model := &SendAttemptModel{
		ID:          a.ID,
		DomainID:    a.DomainID,
		Sender:      a.Sender,
		Recipients:  string(recipients),
		Subject:     a.Subject,
		HTMLBody:    a.HTMLBody,
		TextBody:    a.TextBody,
		ReplyTo:     a.ReplyTo,
		Status:      string(a.Status),
		RetryCount:  a.RetryCount,
		NextRetryAt: a.NextRetryAt,
		LastError:   a.LastError,
		MessageID:   a.MessageID,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create send attempt",
			"operation", "create",
			"domain_id", a.DomainID,
			"error", err,
		)
		return err
	}
	a.ID = model.ID
	a.CreatedAt = model.CreatedAt
	a.UpdatedAt = model.UpdatedAt
	return nil
}

// UpdateOutcome は再試行結果を同一レコードへ反映する。
func (r *SendAttemptRepository) UpdateOutcome(ctx context.Context, a *domain.SendAttempt) error {
	err := r.db.WithContext(ctx).
		Model(&SendAttemptModel{}).
		Where("id = ?", a.ID).
		Updates(map[string]interface{}{
			"status":        string(a.Status),
			"retry_count":   a.RetryCount,
			"next_retry_at": a.NextRetryAt,
			"last_error":    a.LastError,
			"message_id":    a.MessageID,
		}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to update send attempt",
			"operation", "update_outcome",
			"id", a.ID,
			"status", a.Status,
			"error", err,
		)
		return err
	}
	return nil
}

// FindByID は指定されたIDの送信試行を取得する。存在しない場合はnilを返す。
func (r *SendAttemptRepository) FindByID(ctx context.Context, id string) (*domain.SendAttempt, error) {
	var model SendAttemptModel
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find send attempt",
			"operation", "find_by_id",
			"id", id,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// ClaimDue は再試行期限が到来した送信試行を上限件数まで獲得する。
// 獲得は行単位の楽観的リース（next_retry_at を lease 分だけ先送りする
// 条件付きUPDATE）で行い、更新行数が1の行だけを自分のものとする。
// これにより周期が重なった場合でも同一試行が二重処理されることはない。
func (r *SendAttemptRepository) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*domain.SendAttempt, error) {
	var candidates []SendAttemptModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at <= ?", string(domain.SendStatusPendingRetry), now).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to select due send attempts",
			"operation", "claim_due",
			"error", err,
		)
		return nil, err
	}

	leaseUntil := now.Add(lease)
	var claimed []*domain.SendAttempt
	for _, model := range candidates {
		res := r.db.WithContext(ctx).
			Model(&SendAttemptModel{}).
			Where("id = ? AND status = ? AND next_retry_at <= ?",
				model.ID, string(domain.SendStatusPendingRetry), now).
			Update("next_retry_at", leaseUntil)
		if res.Error != nil {
			slog.ErrorContext(ctx, "failed to claim send attempt",
				"operation", "claim_due",
				"id", model.ID,
				"error", res.Error,
			)
			return nil, res.Error
		}
		if res.RowsAffected != 1 {
			// 別の周期が先に獲得済み
			continue
		}
		attempt := model.toDomain()
		attempt.NextRetryAt = &leaseUntil
		claimed = append(claimed, attempt)
	}
	return claimed, nil
}

// List は送信試行の一覧をドメイン・ステータスで絞り込んで取得する。
func (r *SendAttemptRepository) List(ctx context.Context, filter domain.SendAttemptFilter) ([]*domain.SendAttempt, error) {
	q := r.db.WithContext(ctx).Model(&SendAttemptModel{})
	if filter.DomainID != "" {
		q = q.Where("domain_id = ?", filter.DomainID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var models []SendAttemptModel
	err := q.Order("created_at DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to list send attempts",
			"operation", "list",
			"error", err,
		)
		return nil, err
	}

	attempts := make([]*domain.SendAttempt, len(models))
	for i, m := range models {
		attempts[i] = m.toDomain()
	}
	return attempts, nil
}

// Stats は送信試行の集計値を取得する。domainIDが空の場合は全体を集計する。
func (r *SendAttemptRepository) Stats(ctx context.Context, domainID string, now time.Time) (*domain.SendStats, error) {
	base := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&SendAttemptModel{})
		if domainID != "" {
			q = q.Where("domain_id = ?", domainID)
		}
		return q
	}

	stats := &domain.SendStats{}
	counts := []struct {
		dest  *int64
		query func(*gorm.DB) *gorm.DB
	}{
		{&stats.Total, func(q *gorm.DB) *gorm.DB { return q }},
		{&stats.Sent, func(q *gorm.DB) *gorm.DB { return q.Where("status = ?", string(domain.SendStatusSent)) }},
		{&stats.Failed, func(q *gorm.DB) *gorm.DB { return q.Where("status = ?", string(domain.SendStatusFailed)) }},
		{&stats.PendingRetry, func(q *gorm.DB) *gorm.DB { return q.Where("status = ?", string(domain.SendStatusPendingRetry)) }},
		{&stats.SentLast24h, func(q *gorm.DB) *gorm.DB {
			return q.Where("status = ? AND updated_at >= ?", string(domain.SendStatusSent), now.Add(-24*time.Hour))
		}},
	}
	for _, c := range counts {
		if err := c.query(base()).Count(c.dest).Error; err != nil {
			slog.ErrorContext(ctx, "failed to count send attempts",
				"operation", "stats",
				"domain_id", domainID,
				"error", err,
			)
			return nil, err
		}
	}
	return stats, nil
}
