package channelconfig

import (
	"github.com/smallbiznis/payflow/internal/channelconfig/cache"
	"github.com/smallbiznis/payflow/internal/channelconfig/domain"
	"github.com/smallbiznis/payflow/internal/channelconfig/repository"
	"github.com/smallbiznis/payflow/internal/clock"
	"github.com/smallbiznis/payflow/internal/config"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("channelconfig",
	fx.Provide(repository.Provide),
	fx.Provide(func(db *gorm.DB, repo domain.Repository, clk clock.Clock, cfg config.Config) *cache.Cache {
		return cache.New(db, repo, clk, cfg.ConfigCacheTTL)
	}),
	fx.Provide(func(c *cache.Cache) domain.Provider { return c }),
)
