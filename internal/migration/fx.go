package migration

import (
	configdomain "github.com/smallbiznis/payflow/internal/channelconfig/domain"
	"github.com/smallbiznis/payflow/internal/config"
	orderdomain "github.com/smallbiznis/payflow/internal/order/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// Non-postgres deployments (sqlite for local runs) fall back to
			// schema sync from the models.
			return conn.AutoMigrate(
				&orderdomain.PaymentOrder{},
				&orderdomain.EventRecord{},
				&orderdomain.RefundOrder{},
				&configdomain.ChannelConfig{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
