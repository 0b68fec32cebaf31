package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/internal/channelconfig/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct {
	node *snowflake.Node
}

func Provide(node *snowflake.Node) domain.Repository {
	return &repo{node: node}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, tenantID int64, subTypeCode int32) (*domain.ChannelConfig, error) {
	var cfg domain.ChannelConfig
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND sub_type_code = ?", tenantID, subTypeCode).
		First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrConfigNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

func (r *repo) ListByTenant(ctx context.Context, db *gorm.DB, tenantID int64) ([]*domain.ChannelConfig, error) {
	var configs []*domain.ChannelConfig
	err := db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("sub_type_code ASC").
		Find(&configs).Error
	if err != nil {
		return nil, err
	}
	return configs, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, cfg *domain.ChannelConfig) error {
	if cfg.ID == 0 {
		cfg.ID = r.node.Generate().Int64()
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "sub_type_code"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"app_id", "merchant_id", "api_key", "private_key", "public_key",
			"gateway_url", "notify_url", "sandbox_mode", "enabled", "extra", "updated_at",
		}),
	}).Create(cfg).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, tenantID int64, subTypeCode int32) error {
	res := db.WithContext(ctx).
		Where("tenant_id = ? AND sub_type_code = ?", tenantID, subTypeCode).
		Delete(&domain.ChannelConfig{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrConfigNotFound
	}
	return nil
}
