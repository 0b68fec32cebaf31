package registry

import (
	"fmt"

	"github.com/smallbiznis/payflow/internal/channel/domain"
	orderdomain "github.com/smallbiznis/payflow/internal/order/domain"
)

// Registry resolves payment types to strategies. The mapping is built once
// at startup; a miss is a configuration error, never a silent default.
type Registry struct {
	strategies map[orderdomain.PaymentType]domain.Strategy
}

func New(strategies ...domain.Strategy) *Registry {
	r := &Registry{strategies: make(map[orderdomain.PaymentType]domain.Strategy, len(strategies))}
	for _, s := range strategies {
		r.strategies[s.PaymentType()] = s
	}
	return r
}

func (r *Registry) Resolve(paymentType orderdomain.PaymentType) (domain.Strategy, error) {
	s, ok := r.strategies[paymentType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedChannel, paymentType)
	}
	return s, nil
}

func (r *Registry) PaymentTypes() []orderdomain.PaymentType {
	types := make([]orderdomain.PaymentType, 0, len(r.strategies))
	for t := range r.strategies {
		types = append(types, t)
	}
	return types
}
