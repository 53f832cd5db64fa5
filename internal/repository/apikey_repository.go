package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"mail-delivery-service/internal/domain"
)

// APIKeyModel はgorm用のモデル定義。
// key_prefix は一意キーではなく絞り込み用のインデックス
// （プレフィックス衝突時は複数候補が返る）。
type APIKeyModel struct {
	ID         string     `gorm:"type:char(36);primaryKey"`
	DomainID   string     `gorm:"type:char(36);not null;index:idx_api_keys_domain"`
	Name       string     `gorm:"type:varchar(128);not null"`
	KeyHash    string     `gorm:"type:varchar(72);not null"`
	KeyPrefix  string     `gorm:"type:varchar(11);not null;index:idx_api_keys_prefix"`
	IsActive   bool       `gorm:"not null;default:true"`
	ExpiresAt  *time.Time `gorm:"type:datetime(6)"`
	LastUsedAt *time.Time `gorm:"type:datetime(6)"`
	CreatedAt  time.Time  `gorm:"type:datetime(6);not null;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"type:datetime(6);not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (APIKeyModel) TableName() string {
	return "api_keys"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *APIKeyModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// toDomain はモデルをドメインエンティティに変換する。
func (m *APIKeyModel) toDomain() *domain.APIKey {
	return &domain.APIKey{
		ID:         m.ID,
		DomainID:   m.DomainID,
		Name:       m.Name,
		KeyHash:    m.KeyHash,
		KeyPrefix:  m.KeyPrefix,
		IsActive:   m.IsActive,
		ExpiresAt:  m.ExpiresAt,
		LastUsedAt: m.LastUsedAt,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// APIKeyRepository はAPIキーのデータアクセスを提供する。
type APIKeyRepository struct {
	db *gorm.DB
}

// NewAPIKeyRepository は新しいAPIKeyRepositoryを生成する。
func NewAPIKeyRepository(db *gorm.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Create は新しいAPIキーを保存する。
func (r *APIKeyRepository) Create(ctx context.Context, key *domain.APIKey) error {
	model := &APIKeyModel{
		ID:        key.ID,
		DomainID:  key.DomainID,
		Name:      key.Name,
		KeyHash:   key.KeyHash,
		KeyPrefix: key.KeyPrefix,
		IsActive:  key.IsActive,
		ExpiresAt: key.ExpiresAt,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create api key",
			"operation", "create",
			"domain_id", key.DomainID,
			"name", key.Name,
			"error", err,
		)
		return err
	}
	key.ID = model.ID
	key.CreatedAt = model.CreatedAt
	key.UpdatedAt = model.UpdatedAt
	return nil
}

// FindActiveByPrefix は指定プレフィックスを持つ有効なAPIキーを全て取得する。
// 期限切れ判定は呼び出し側（認証ロジック）で行う。
func (r *APIKeyRepository) FindActiveByPrefix(ctx context.Context, prefix string) ([]*domain.APIKey, error) {
	var models []APIKeyModel
	err := r.db.WithContext(ctx).
		Where("key_prefix = ? AND is_active = ?", prefix, true).
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find api keys by prefix",
			"operation", "find_active_by_prefix",
			"error", err,
		)
		return nil, err
	}

	keys := make([]*domain.APIKey, len(models))
	for i, m := range models {
		keys[i] = m.toDomain()
	}
	return keys, nil
}

// FindByID は指定されたIDのAPIキーを取得する。存在しない場合はnilを返す。
func (r *APIKeyRepository) FindByID(ctx context.Context, id string) (*domain.APIKey, error) {
	var model APIKeyModel
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find api key",
			"operation", "find_by_id",
			"id", id,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindAllByDomainID は指定ドメインの全APIキーを取得する。
func (r *APIKeyRepository) FindAllByDomainID(ctx context.Context, domainID string) ([]*domain.APIKey, error) {
	var models []APIKeyModel
	err := r.db.WithContext(ctx).
		Where("domain_id = ?", domainID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find api keys by domain",
			"operation", "find_all_by_domain_id",
			"domain_id", domainID,
			"error", err,
		)
		return nil, err
	}

	keys := make([]*domain.APIKey, len(models))
	for i, m := range models {
		keys[i] = m.toDomain()
	}
	return keys, nil
}

// UpdateSecret はローテーション時にハッシュとプレフィックスを差し替える。
// 旧シークレットはこの更新の完了と同時に無効になる。
func (r *APIKeyRepository) UpdateSecret(ctx context.Context, id, keyHash, keyPrefix string, expiresAt *time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&APIKeyModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"key_hash":   keyHash,
			"key_prefix": keyPrefix,
			"expires_at": expiresAt,
		}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to update api key secret",
			"operation", "update_secret",
			"id", id,
			"error", err,
		)
		return err
	}
	return nil
}

// SetActive は指定されたIDのAPIキーの有効フラグを更新する。
func (r *APIKeyRepository) SetActive(ctx context.Context, id string, active bool) error {
	err := r.db.WithContext(ctx).
		Model(&APIKeyModel{}).
		Where("id = ?", id).
		Update("is_active", active).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to update api key active flag",
			"operation", "set_active",
			"id", id,
			"active", active,
			"error", err,
		)
		return err
	}
	return nil
}

// TouchLastUsed は認証成功時に最終使用日時を更新する。
func (r *APIKeyRepository) TouchLastUsed(ctx context.Context, id string, usedAt time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&APIKeyModel{}).
		Where("id = ?", id).
		Update("last_used_at", usedAt).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to touch api key last_used_at",
			"operation", "touch_last_used",
			"id", id,
			"error", err,
		)
		return err
	}
	return nil
}
