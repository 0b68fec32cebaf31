package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/internal/order/domain"
	pkgdb "github.com/smallbiznis/payflow/pkg/db"
	"github.com/smallbiznis/payflow/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct {
	node *snowflake.Node
}

func Provide(node *snowflake.Node) domain.Repository {
	return &repo{node: node}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.PaymentOrder) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order.ID = r.node.Generate().Int64()
		if err := tx.Create(order).Error; err != nil {
			if pkgdb.IsDuplicateKeyErr(err) {
				return domain.ErrOrderAlreadyExists
			}
			return err
		}
		return r.appendEvents(tx, order, 0)
	})
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, order *domain.PaymentOrder) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.PaymentOrder{}).
			Where("order_id = ?", order.OrderID).
			Updates(map[string]interface{}{
				"status":               order.Status,
				"refunded_amount":      order.RefundedAmount,
				"third_party_order_id": order.ThirdPartyOrderID,
				"updated_at":           order.UpdatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrOrderNotFound
		}

		var lastSeq int64
		err := tx.Model(&domain.EventRecord{}).
			Where("order_id = ?", order.OrderID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&lastSeq).Error
		if err != nil {
			return err
		}
		return r.appendEvents(tx, order, int32(lastSeq))
	})
}

func (r *repo) appendEvents(tx *gorm.DB, order *domain.PaymentOrder, lastSeq int32) error {
	events := order.TakeEvents()
	if len(events) == 0 {
		return nil
	}

	records := make([]domain.EventRecord, 0, len(events))
	for i, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		records = append(records, domain.EventRecord{
			ID:         r.node.Generate().Int64(),
			OrderID:    order.OrderID,
			Kind:       ev.Kind,
			Seq:        lastSeq + int32(i) + 1,
			Payload:    payload,
			OccurredAt: ev.OccurredAt,
		})
	}
	return tx.Create(&records).Error
}

func (r *repo) FindByOrderID(ctx context.Context, db *gorm.DB, orderID string) (*domain.PaymentOrder, error) {
	var order domain.PaymentOrder
	err := db.WithContext(ctx).Where("order_id = ?", orderID).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *repo) FindByTenantOrder(ctx context.Context, db *gorm.DB, tenantID int64, merchantOrderID string) (*domain.PaymentOrder, error) {
	var order domain.PaymentOrder
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND merchant_order_id = ?", tenantID, merchantOrderID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListOrderFilter, page pagination.Pagination) ([]*domain.PaymentOrder, error) {
	stmt := db.WithContext(ctx).Model(&domain.PaymentOrder{})

	if filter.TenantID != 0 {
		stmt = stmt.Where("tenant_id = ?", filter.TenantID)
	}
	if filter.UserID != 0 {
		stmt = stmt.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.PaymentType != "" {
		stmt = stmt.Where("payment_type = ?", filter.PaymentType)
	}

	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, err
		}
		if cursor.ID != "" {
			id, err := strconv.ParseInt(cursor.ID, 10, 64)
			if err != nil {
				return nil, err
			}
			stmt = stmt.Where("id < ?", id)
		}
	}

	size := page.PageSize
	if size <= 0 {
		size = 10
	}

	var orders []*domain.PaymentOrder
	if err := stmt.Order("id DESC").Limit(size + 1).Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) ListEvents(ctx context.Context, db *gorm.DB, orderID string) ([]domain.EventRecord, error) {
	var records []domain.EventRecord
	err := db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("seq ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) InsertRefund(ctx context.Context, db *gorm.DB, refund *domain.RefundOrder) error {
	refund.ID = r.node.Generate().Int64()
	if err := db.WithContext(ctx).Create(refund).Error; err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return domain.ErrOrderAlreadyExists
		}
		return err
	}
	return nil
}

func (r *repo) UpdateRefund(ctx context.Context, db *gorm.DB, refund *domain.RefundOrder) error {
	res := db.WithContext(ctx).Model(&domain.RefundOrder{}).
		Where("refund_id = ?", refund.RefundID).
		Updates(map[string]interface{}{
			"status":                refund.Status,
			"third_party_refund_id": refund.ThirdPartyRefundID,
			"updated_at":            refund.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrRefundNotFound
	}
	return nil
}

func (r *repo) ListRefunds(ctx context.Context, db *gorm.DB, orderID string) ([]*domain.RefundOrder, error) {
	var refunds []*domain.RefundOrder
	err := db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&refunds).Error
	if err != nil {
		return nil, err
	}
	return refunds, nil
}

func (r *repo) FindRefund(ctx context.Context, db *gorm.DB, refundID string) (*domain.RefundOrder, error) {
	var refund domain.RefundOrder
	err := db.WithContext(ctx).Where("refund_id = ?", refundID).First(&refund).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRefundNotFound
		}
		return nil, err
	}
	return &refund, nil
}
