package gateway

import (
	"fmt"
	"sort"
	"sync"

	"stayhub/internal/app/policies"
	"stayhub/internal/domain/payment"
)

// Registry resolves the adapter for a payment method.
type Registry struct {
	mu       sync.RWMutex
	gateways map[payment.Method]policies.Gateway
}

func NewRegistry(gateways ...policies.Gateway) *Registry {
	r := &Registry{gateways: make(map[payment.Method]policies.Gateway)}
	for _, g := range gateways {
		r.Register(g)
	}
	return r
}

func (r *Registry) Register(g policies.Gateway) {
	if g == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[g.Method()] = g
}

func (r *Registry) Resolve(method payment.Method) (policies.Gateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gateways[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not enabled", payment.ErrUnsupportedMethod, method)
	}
	return g, nil
}

// Methods lists the enabled methods in a stable order.
func (r *Registry) Methods() []payment.Method {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]payment.Method, 0, len(r.gateways))
	for m := range r.gateways {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var _ policies.GatewayResolver = (*Registry)(nil)
