package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedChannel   = errors.New("unsupported_channel")
	ErrUnsupportedOperation = errors.New("unsupported_operation")
	ErrRateLimited          = errors.New("rate_limited")
	ErrInvalidSignature     = errors.New("invalid_signature")
	ErrInvalidPayload       = errors.New("invalid_payload")
)

// ChannelError wraps a provider-side rejection or transport failure after
// retries are exhausted.
type ChannelError struct {
	Channel string
	Code    string
	Message string
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %s error %s: %s", e.Channel, e.Code, e.Message)
}
