package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	configdomain "github.com/smallbiznis/payflow/internal/channelconfig/domain"
	orderdomain "github.com/smallbiznis/payflow/internal/order/domain"
	paymentservice "github.com/smallbiznis/payflow/internal/payment/service"
	"github.com/smallbiznis/payflow/pkg/db/pagination"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

func (s *Server) createPayment(c *gin.Context) {
	var req paymentservice.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}
	req.ClientIP = c.ClientIP()

	resp, err := s.paymentSvc.CreateOrder(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) getPayment(c *gin.Context) {
	order, err := s.paymentSvc.QueryOrder(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type listPaymentsQuery struct {
	TenantID    int64  `form:"tenant_id"`
	UserID      int64  `form:"user_id"`
	Status      string `form:"status"`
	PaymentType string `form:"payment_type"`
	PageToken   string `form:"page_token"`
	PageSize    int    `form:"page_size"`
}

func (s *Server) listPayments(c *gin.Context) {
	var q listPaymentsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}

	req := paymentservice.ListOrdersRequest{
		Filter: orderdomain.ListOrderFilter{
			TenantID: q.TenantID,
			UserID:   q.UserID,
			Status:   orderdomain.OrderStatus(q.Status),
		},
		Page: pagination.Pagination{PageToken: q.PageToken, PageSize: q.PageSize},
	}
	if q.PaymentType != "" {
		pt, err := orderdomain.ParsePaymentType(q.PaymentType)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		req.Filter.PaymentType = pt
	}

	resp, err := s.paymentSvc.ListOrders(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) listPaymentEvents(c *gin.Context) {
	events, err := s.paymentSvc.ListOrderEvents(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) createRefund(c *gin.Context) {
	var req paymentservice.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}
	req.OrderID = c.Param("order_id")

	resp, err := s.paymentSvc.CreateRefund(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) getRefund(c *gin.Context) {
	refund, err := s.paymentSvc.QueryRefund(c.Request.Context(), c.Param("refund_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, refund)
}

// paymentCallback receives channel webhooks. The tenant rides on the callback
// URL as a query parameter so the channel config can be loaded and the
// signature checked before any order lookup. The ack body is written even
// when processing fails, otherwise the channel keeps retrying.
func (s *Server) paymentCallback(c *gin.Context) {
	tenantID := int64(1)
	if raw := c.Query("tenant_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			AbortWithError(c, fmt.Errorf("%w: tenant_id", ErrInvalidRequest))
			return
		}
		tenantID = parsed
	}

	payload, err := c.GetRawData()
	if err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}

	ack, err := s.paymentSvc.HandleCallback(c.Request.Context(), c.Param("payment_type"), tenantID, payload)
	if err != nil {
		s.log.Warn("callback processing failed",
			zap.String("payment_type", c.Param("payment_type")),
			zap.Int64("tenant_id", tenantID),
			zap.Error(err),
		)
	}
	if ack == nil {
		AbortWithError(c, err)
		return
	}
	c.Data(http.StatusOK, ack.ContentType, ack.Body)
}

type channelConfigRequest struct {
	AppID       string         `json:"app_id" binding:"required"`
	MerchantID  string         `json:"merchant_id"`
	APIKey      string         `json:"api_key"`
	PrivateKey  string         `json:"private_key"`
	PublicKey   string         `json:"public_key"`
	GatewayURL  string         `json:"gateway_url"`
	NotifyURL   string         `json:"notify_url"`
	SandboxMode bool           `json:"sandbox_mode"`
	Enabled     *bool          `json:"enabled"`
	Extra       datatypes.JSON `json:"extra"`
}

func (s *Server) listChannelConfigs(c *gin.Context) {
	tenantID, err := parseTenantID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	configs, err := s.configRepo.ListByTenant(c.Request.Context(), s.db, tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"configs": configs})
}

func (s *Server) upsertChannelConfig(c *gin.Context) {
	tenantID, err := parseTenantID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	subType, err := parseSubType(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req channelConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	now := s.clk.Now()
	cfg := &configdomain.ChannelConfig{
		TenantID:    tenantID,
		SubTypeCode: subType,
		AppID:       req.AppID,
		MerchantID:  req.MerchantID,
		APIKey:      req.APIKey,
		PrivateKey:  req.PrivateKey,
		PublicKey:   req.PublicKey,
		GatewayURL:  req.GatewayURL,
		NotifyURL:   req.NotifyURL,
		SandboxMode: req.SandboxMode,
		Enabled:     enabled,
		Extra:       req.Extra,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.configRepo.Upsert(c.Request.Context(), s.db, cfg); err != nil {
		AbortWithError(c, err)
		return
	}
	s.configs.Invalidate(tenantID, subType)

	c.JSON(http.StatusOK, cfg)
}

func (s *Server) deleteChannelConfig(c *gin.Context) {
	tenantID, err := parseTenantID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	subType, err := parseSubType(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.configRepo.Delete(c.Request.Context(), s.db, tenantID, subType); err != nil {
		AbortWithError(c, err)
		return
	}
	s.configs.Invalidate(tenantID, subType)

	c.Status(http.StatusNoContent)
}

func parseTenantID(c *gin.Context) (int64, error) {
	tenantID, err := strconv.ParseInt(c.Param("tenant_id"), 10, 64)
	if err != nil || tenantID <= 0 {
		return 0, fmt.Errorf("%w: tenant_id", ErrInvalidRequest)
	}
	return tenantID, nil
}

func parseSubType(c *gin.Context) (int32, error) {
	subType, err := strconv.ParseInt(c.Param("sub_type"), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: sub_type", ErrInvalidRequest)
	}
	if _, err := orderdomain.PaymentTypeFromSubType(int32(subType)); err != nil {
		return 0, err
	}
	return int32(subType), nil
}
