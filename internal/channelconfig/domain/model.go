package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrConfigNotFound = errors.New("channel_config_not_found")
	ErrConfigDisabled = errors.New("channel_config_disabled")
)

// ChannelConfig holds a tenant's credentials and endpoints for one payment
// sub-type. Lookups are keyed (tenant_id, sub_type_code).
type ChannelConfig struct {
	ID           int64          `json:"id" gorm:"primaryKey"`
	TenantID     int64          `json:"tenant_id" gorm:"not null;uniqueIndex:uk_tenant_sub_type,priority:1"`
	SubTypeCode  int32          `json:"sub_type_code" gorm:"not null;uniqueIndex:uk_tenant_sub_type,priority:2"`
	AppID        string         `json:"app_id" gorm:"type:text;not null"`
	MerchantID   string         `json:"merchant_id" gorm:"type:text;not null"`
	APIKey       string         `json:"-" gorm:"column:api_key;type:text"`
	PrivateKey   string         `json:"-" gorm:"column:private_key;type:text"`
	PublicKey    string         `json:"-" gorm:"column:public_key;type:text"`
	GatewayURL   string         `json:"gateway_url" gorm:"type:text"`
	NotifyURL    string         `json:"notify_url" gorm:"type:text"`
	SandboxMode  bool           `json:"sandbox_mode" gorm:"not null;default:false"`
	Enabled      bool           `json:"enabled" gorm:"not null;default:true"`
	Extra        datatypes.JSON `json:"extra" gorm:"type:jsonb"`
	CreatedAt    time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time      `json:"updated_at" gorm:"not null"`
}

func (ChannelConfig) TableName() string { return "payment_channel_configs" }

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, tenantID int64, subTypeCode int32) (*ChannelConfig, error)
	ListByTenant(ctx context.Context, db *gorm.DB, tenantID int64) ([]*ChannelConfig, error)
	Upsert(ctx context.Context, db *gorm.DB, cfg *ChannelConfig) error
	Delete(ctx context.Context, db *gorm.DB, tenantID int64, subTypeCode int32) error
}

// Provider is the read path used by payment strategies. The cache implements
// it in front of the repository.
type Provider interface {
	Get(ctx context.Context, tenantID int64, subTypeCode int32) (*ChannelConfig, error)
	Invalidate(tenantID int64, subTypeCode int32)
}
