package channel

import (
	"github.com/smallbiznis/payflow/internal/channel/domain"
	"github.com/smallbiznis/payflow/internal/channel/registry"
	"github.com/smallbiznis/payflow/internal/channel/strategies/alipay"
	"github.com/smallbiznis/payflow/internal/channel/strategies/apple"
	"github.com/smallbiznis/payflow/internal/channel/strategies/wechat"
	"github.com/smallbiznis/payflow/internal/config"
	"github.com/smallbiznis/payflow/pkg/httpclient"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("channel",
	fx.Provide(func(cfg config.Config, log *zap.Logger) *httpclient.Client {
		clientCfg := httpclient.DefaultConfig()
		clientCfg.Timeout = cfg.OutboundTimeout
		clientCfg.MaxRetries = cfg.OutboundMaxRetries
		return httpclient.New(clientCfg, log)
	}),
	fx.Provide(func(cfg config.Config, client *httpclient.Client, log *zap.Logger) *registry.Registry {
		limit := func(s domain.Strategy) domain.Strategy {
			return registry.Limit(s, cfg.ChannelMaxConcurrent)
		}
		return registry.New(
			limit(wechat.NewSDK(client, log)),
			limit(wechat.NewH5(client, log)),
			limit(wechat.NewJS(client, log)),
			limit(alipay.NewSDK(client, log)),
			limit(alipay.NewH5(client, log)),
			limit(apple.New(client, log)),
		)
	}),
)
