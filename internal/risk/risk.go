package risk

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/payflow/internal/config"
	"github.com/smallbiznis/payflow/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrRejected = errors.New("risk_rejected")

// RejectionError carries the rule that fired. Unwraps to ErrRejected.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("risk rejected: %s", e.Reason)
}

func (e *RejectionError) Unwrap() error { return ErrRejected }

const (
	ReasonBlacklistedIP = "blacklisted_ip"
	ReasonOrderRate     = "order_rate_exceeded"
	ReasonAmountCap     = "amount_cap_exceeded"
)

// CheckParams describes the inbound order being screened.
type CheckParams struct {
	TenantID int64
	UserID   int64
	ClientIP string
	Amount   int64
}

// Service screens order creation against redis-backed counters: an IP
// blacklist, a per-IP order rate window and a single-order amount cap.
// Repeated failures auto-blacklist the IP. With no redis configured the
// service passes everything through.
type Service struct {
	rdb     *redis.Client
	cfg     config.RiskConfig
	metrics *metrics.Metrics
	log     *zap.Logger
}

type Params struct {
	fx.In

	Redis   *redis.Client `optional:"true"`
	Config  config.Config
	Metrics *metrics.Metrics `optional:"true"`
	Log     *zap.Logger
}

func NewService(p Params) *Service {
	return &Service{
		rdb:     p.Redis,
		cfg:     p.Config.Risk,
		metrics: p.Metrics,
		log:     p.Log.Named("risk"),
	}
}

func (s *Service) enabled() bool {
	return s.cfg.Enabled && s.rdb != nil
}

// Check rejects the order when any rule fires. Redis outages fail open:
// an unreachable risk store must not take payments down.
func (s *Service) Check(ctx context.Context, p CheckParams) error {
	if !s.enabled() {
		return nil
	}

	if p.Amount > s.cfg.MaxSingleAmount && s.cfg.MaxSingleAmount > 0 {
		return s.reject(ctx, ReasonAmountCap, p)
	}

	blacklisted, err := s.rdb.SIsMember(ctx, blacklistKey(p.TenantID), p.ClientIP).Result()
	if err != nil {
		s.log.Warn("risk check degraded", zap.Error(err))
		return nil
	}
	if blacklisted {
		return s.reject(ctx, ReasonBlacklistedIP, p)
	}

	count, err := s.rdb.Incr(ctx, orderRateKey(p.TenantID, p.ClientIP)).Result()
	if err != nil {
		s.log.Warn("risk check degraded", zap.Error(err))
		return nil
	}
	if count == 1 {
		s.rdb.Expire(ctx, orderRateKey(p.TenantID, p.ClientIP), s.cfg.OrderWindow)
	}
	if count > s.cfg.MaxOrdersPerIP {
		return s.reject(ctx, ReasonOrderRate, p)
	}

	return nil
}

// RecordFailure counts a failed payment for the IP and blacklists it once
// the failure threshold is crossed.
func (s *Service) RecordFailure(ctx context.Context, tenantID int64, clientIP string) {
	if !s.enabled() || clientIP == "" {
		return
	}

	key := failureKey(tenantID, clientIP)
	count, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		s.log.Warn("risk failure record degraded", zap.Error(err))
		return
	}
	if count == 1 {
		s.rdb.Expire(ctx, key, s.cfg.FailureWindow)
	}
	if count >= s.cfg.MaxFailures {
		if err := s.rdb.SAdd(ctx, blacklistKey(tenantID), clientIP).Err(); err != nil {
			s.log.Warn("risk blacklist add failed", zap.Error(err))
			return
		}
		s.rdb.Expire(ctx, blacklistKey(tenantID), s.cfg.BlacklistExpiry)
		s.log.Warn("ip blacklisted",
			zap.Int64("tenant_id", tenantID),
			zap.String("client_ip", clientIP),
			zap.Int64("failures", count),
		)
	}
}

// Unblacklist removes an IP from the tenant blacklist.
func (s *Service) Unblacklist(ctx context.Context, tenantID int64, clientIP string) error {
	if !s.enabled() {
		return nil
	}
	return s.rdb.SRem(ctx, blacklistKey(tenantID), clientIP).Err()
}

func (s *Service) reject(ctx context.Context, reason string, p CheckParams) error {
	s.metrics.RecordRiskRejected(ctx, reason)
	s.log.Info("order rejected by risk control",
		zap.String("reason", reason),
		zap.Int64("tenant_id", p.TenantID),
		zap.Int64("user_id", p.UserID),
		zap.String("client_ip", p.ClientIP),
	)
	return &RejectionError{Reason: reason}
}

func blacklistKey(tenantID int64) string {
	return fmt.Sprintf("risk:blacklist:%d", tenantID)
}

func orderRateKey(tenantID int64, ip string) string {
	return fmt.Sprintf("risk:orders:%d:%s", tenantID, ip)
}

func failureKey(tenantID int64, ip string) string {
	return fmt.Sprintf("risk:failures:%d:%s", tenantID, ip)
}
