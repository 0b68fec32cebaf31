package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	channeldomain "github.com/smallbiznis/payflow/internal/channel/domain"
	configdomain "github.com/smallbiznis/payflow/internal/channelconfig/domain"
	orderdomain "github.com/smallbiznis/payflow/internal/order/domain"
	"github.com/smallbiznis/payflow/internal/risk"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var ErrInvalidRequest = errors.New("invalid_request")

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, orderdomain.ErrOrderNotFound),
		errors.Is(err, orderdomain.ErrRefundNotFound),
		errors.Is(err, configdomain.ErrConfigNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: "not found"}

	case errors.Is(err, orderdomain.ErrOrderAlreadyExists):
		return http.StatusConflict, errorPayload{Type: "order_already_exists", Message: "order already exists"}

	case errors.Is(err, orderdomain.ErrInvalidOrderStatus),
		errors.Is(err, orderdomain.ErrInvalidEvent):
		return http.StatusConflict, errorPayload{Type: "invalid_order_status", Message: err.Error()}

	case errors.Is(err, orderdomain.ErrInvalidAmount),
		errors.Is(err, orderdomain.ErrInvalidCurrency),
		errors.Is(err, orderdomain.ErrCurrencyMismatch),
		errors.Is(err, orderdomain.ErrInvalidPaymentType),
		errors.Is(err, orderdomain.ErrInvalidTenant),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: err.Error()}

	case errors.Is(err, channeldomain.ErrUnsupportedChannel),
		errors.Is(err, configdomain.ErrConfigDisabled):
		return http.StatusBadRequest, errorPayload{Type: "configuration_error", Message: err.Error()}

	case errors.Is(err, channeldomain.ErrUnsupportedOperation):
		return http.StatusBadRequest, errorPayload{Type: "unsupported_operation", Message: err.Error()}

	case errors.Is(err, channeldomain.ErrInvalidSignature),
		errors.Is(err, channeldomain.ErrInvalidPayload):
		return http.StatusBadRequest, errorPayload{Type: "invalid_payload", Message: err.Error()}

	case errors.Is(err, risk.ErrRejected):
		return http.StatusForbidden, errorPayload{Type: "risk_rejected", Message: err.Error()}

	case errors.Is(err, channeldomain.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{Type: "rate_limited", Message: "rate limited"}

	case isChannelError(err):
		return http.StatusBadGateway, errorPayload{Type: "channel_error", Message: err.Error()}

	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}
}

func isChannelError(err error) bool {
	var chErr *channeldomain.ChannelError
	return errors.As(err, &chErr)
}

func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status == http.StatusBadGateway {
		return "channel_error", payload.Type
	}
	if status >= http.StatusInternalServerError {
		return "internal_error", payload.Type
	}
	return "client_error", payload.Type
}
