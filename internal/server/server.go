package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/payflow/internal/channelconfig/cache"
	configdomain "github.com/smallbiznis/payflow/internal/channelconfig/domain"
	"github.com/smallbiznis/payflow/internal/clock"
	"github.com/smallbiznis/payflow/internal/config"
	"github.com/smallbiznis/payflow/internal/observability"
	obsmiddleware "github.com/smallbiznis/payflow/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/payflow/internal/observability/metrics"
	obstracing "github.com/smallbiznis/payflow/internal/observability/tracing"
	paymentservice "github.com/smallbiznis/payflow/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	log        *zap.Logger
	paymentSvc *paymentservice.Service
	configRepo configdomain.Repository
	configs    *cache.Cache
	clk        clock.Clock
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	Log        *zap.Logger
	PaymentSvc *paymentservice.Service
	ConfigRepo configdomain.Repository
	Configs    *cache.Cache
	Clock      clock.Clock
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		db:         p.DB,
		log:        p.Log.Named("server"),
		paymentSvc: p.PaymentSvc,
		configRepo: p.ConfigRepo,
		configs:    p.Configs,
		clk:        p.Clock,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api/v1")
	{
		api.POST("/payments", s.createPayment)
		api.GET("/payments", s.listPayments)
		api.GET("/payments/:order_id", s.getPayment)
		api.GET("/payments/:order_id/events", s.listPaymentEvents)
		api.POST("/payments/:order_id/refunds", s.createRefund)
		api.GET("/refunds/:refund_id", s.getRefund)

		api.GET("/tenants/:tenant_id/channel-configs", s.listChannelConfigs)
		api.PUT("/tenants/:tenant_id/channel-configs/:sub_type", s.upsertChannelConfig)
		api.DELETE("/tenants/:tenant_id/channel-configs/:sub_type", s.deleteChannelConfig)
	}

	s.engine.POST("/callbacks/:payment_type", s.paymentCallback)
}
