// Package repository はデータアクセス層の実装を提供する。
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

// DomainModel はgorm用のモデル定義。
type DomainModel struct {
	ID                  string    `gorm:"type:char(36);primaryKey"`
	Name                string    `gorm:"type:varchar(253);not null;uniqueIndex:uk_domain_name"`
	Selector            string    `gorm:"type:varchar(64);not null"`
	PublicKey           string    `gorm:"type:text;not null"`
	EncryptedPrivateKey string    `gorm:"type:text;not null"`
	IsActive            bool      `gorm:"not null;default:true"`
	IsVerified          bool      `gorm:"not null;default:false"`
	CreatedAt           time.Time `gorm:"type:datetime(6);not null;autoCreateTime"`
	UpdatedAt           time.Time `gorm:"type:datetime(6);not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (DomainModel) TableName() string {
	return "domains"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *DomainModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// toDomain はモデルをドメインエンティティに変換する。
func (m *DomainModel) toDomain() *domain.Domain {
	return &domain.Domain{
		ID:                  m.ID,
		Name:                m.Name,
		Selector:            m.Selector,
		PublicKey:           m.PublicKey,
		EncryptedPrivateKey: m.EncryptedPrivateKey,
		IsActive:            m.IsActive,
		IsVerified:          m.IsVerified,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

// DomainRepository は送信ドメインのデータアクセスを提供する。
type DomainRepository struct {
	db *gorm.DB
}

// NewDomainRepository は新しいDomainRepositoryを生成する。
func NewDomainRepository(db *gorm.DB) *DomainRepository {
	return &DomainRepository{db: db}
}

// Create は新しいドメインを保存する。
func (r *DomainRepository) Create(ctx context.Context, d *domain.Domain) error {
	model := &DomainModel{
		ID:                  d.ID,
		Name:                d.Name,
		Selector:            d.Selector,
		PublicKey:           d.PublicKey,
		EncryptedPrivateKey: d.EncryptedPrivateKey,
		IsActive:            d.IsActive,
		IsVerified:          d.IsVerified,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create domain",
			"operation", "create",
			"name", d.Name,
			"error", err,
		)
		return err
	}
	d.ID = model.ID
	d.CreatedAt = model.CreatedAt
	d.UpdatedAt = model.UpdatedAt
	return nil
}

// ExistsByName は指定された名前のドメインが存在するか確認する。
func (r *DomainRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&DomainModel{}).
		Where("name = ?", name).
		Count(&count).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to count domains by name",
			"operation", "exists_by_name",
			"name", name,
			"error", err,
		)
		return false, err
	}
	return count > 0, nil
}

// FindByName は指定された名前のドメインを取得する。存在しない場合はnilを返す。
func (r *DomainRepository) FindByName(ctx context.Context, name string) (*domain.Domain, error) {
	var model DomainModel
	err := r.db.WithContext(ctx).
		Where("name = ?", name).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find domain",
			"operation", "find_by_name",
			"name", name,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindByID は指定されたIDのドメインを取得する。存在しない場合はnilを返す。
func (r *DomainRepository) FindByID(ctx context.Context, id string) (*domain.Domain, error) {
	var model DomainModel
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find domain",
			"operation", "find_by_id",
			"id", id,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindAll は全ドメインを名前順で取得する。
func (r *DomainRepository) FindAll(ctx context.Context) ([]*domain.Domain, error) {
	var models []DomainModel
	err := r.db.WithContext(ctx).
		Order("name ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find all domains",
			"operation", "find_all",
			"error", err,
		)
		return nil, err
	}

	domains := make([]*domain.Domain, len(models))
	for i, m := range models {
		domains[i] = m.toDomain()
	}
	return domains, nil
}

// UpdateKeyMaterial は指定されたIDのドメインの署名鍵一式を差し替える。
func (r *DomainRepository) UpdateKeyMaterial(ctx context.Context, id, selector, publicKey, encryptedPrivateKey string) error {
	err := r.db.WithContext(ctx).
		Model(&DomainModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"selector":              selector,
			"public_key":            publicKey,
			"encrypted_private_key": encryptedPrivateKey,
		}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to update domain key material",
			"operation", "update_key_material",
			"id", id,
			"selector", selector,
			"error", err,
		)
		return err
	}
	return nil
}

// SetActive は指定されたIDのドメインの有効フラグを更新する。
func (r *DomainRepository) SetActive(ctx context.Context, id string, active bool) error {
	err := r.db.WithContext(ctx).
		Model(&DomainModel{}).
		Where("id = ?", id).
		Update("is_active", active).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to update domain active flag",
			"operation", "set_active",
			"id", id,
			"active", active,
			"error", err,
		)
		return err
	}
	return nil
}

// SetVerified は指定されたIDのドメインの検証済みフラグを更新する。
func (r *DomainRepository) SetVerified(ctx context.Context, id string, verified bool) error {
	err := r.db.WithContext(ctx).
		Model(&DomainModel{}).
		Where("id = ?", id).
		Update("is_verified", verified).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to update domain verified flag",
			"operation", "set_verified",
			"id", id,
			"verified", verified,
			"error", err,
		)
		return err
	}
	return nil
}

// Delete は指定されたIDのドメインを削除する。
// 関連するAPIキーと送信試行は外部キーのカスケードで削除される。
func (r *DomainRepository) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&DomainModel{}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to delete domain",
			"operation", "delete",
			"id", id,
			"error", err,
		)
		return err
	}
	return nil
}
