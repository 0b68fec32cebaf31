package domain

import (
	"context"

	"github.com/smallbiznis/payflow/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListOrderFilter struct {
	TenantID    int64
	UserID      int64
	Status      OrderStatus
	PaymentType PaymentType
}

// Repository is the single source of truth for orders, their event log and
// refund rows. Save persists the projected columns and appends the
// aggregate's uncommitted events in one transaction.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *PaymentOrder) error
	Save(ctx context.Context, db *gorm.DB, order *PaymentOrder) error
	FindByOrderID(ctx context.Context, db *gorm.DB, orderID string) (*PaymentOrder, error)
	FindByTenantOrder(ctx context.Context, db *gorm.DB, tenantID int64, merchantOrderID string) (*PaymentOrder, error)
	List(ctx context.Context, db *gorm.DB, filter ListOrderFilter, page pagination.Pagination) ([]*PaymentOrder, error)
	ListEvents(ctx context.Context, db *gorm.DB, orderID string) ([]EventRecord, error)
	InsertRefund(ctx context.Context, db *gorm.DB, refund *RefundOrder) error
	UpdateRefund(ctx context.Context, db *gorm.DB, refund *RefundOrder) error
	FindRefund(ctx context.Context, db *gorm.DB, refundID string) (*RefundOrder, error)
	ListRefunds(ctx context.Context, db *gorm.DB, orderID string) ([]*RefundOrder, error)
}
