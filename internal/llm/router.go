package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrNoProviderAvailable = errors.New("no provider available")

// FallbackOrder is the fixed order tried after the preferred provider.
// Registered providers outside it come last, by priority.
var FallbackOrder = []string{ProviderOpenAI, ProviderClaude, ProviderGemini, ProviderYandex}

const DefaultTimeout = 30 * time.Second

// Endpoint describes a registered provider. Availability is fixed at
// registration.
type Endpoint struct {
	Name      string `json:"name"`
	Priority  int    `json:"priority"`
	Available bool   `json:"available"`
}

type Router struct {
	mu        sync.RWMutex
	clients   map[string]Client
	endpoints map[string]Endpoint
	timeout   time.Duration
	logger    *zap.Logger
}

func NewRouter(timeout time.Duration, logger *zap.Logger) *Router {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		clients:   make(map[string]Client),
		endpoints: make(map[string]Endpoint),
		timeout:   timeout,
		logger:    logger,
	}
}

// Register adds or replaces a provider. A nil client is never available.
func (r *Router) Register(name string, client Client, priority int, available bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
	r.endpoints[name] = Endpoint{Name: name, Priority: priority, Available: available && client != nil}
}

// Endpoints lists every registered provider in fallback order.
func (r *Router) Endpoints() []Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := r.fallbackNames()
	out := make([]Endpoint, 0, len(names))
	for _, n := range names {
		out = append(out, r.endpoints[n])
	}
	return out
}

// fallbackNames returns all registered names: FallbackOrder first, then the
// rest by priority and name. Callers hold r.mu.
func (r *Router) fallbackNames() []string {
	seen := make(map[string]bool, len(r.endpoints))
	var out []string
	for _, n := range FallbackOrder {
		if _, ok := r.endpoints[n]; ok {
			out = append(out, n)
			seen[n] = true
		}
	}
	var rest []Endpoint
	for n, ep := range r.endpoints {
		if !seen[n] {
			rest = append(rest, ep)
		}
	}
	sort.Slice(rest, func(i, j int) bool {
		if rest[i].Priority != rest[j].Priority {
			return rest[i].Priority < rest[j].Priority
		}
		return rest[i].Name < rest[j].Name
	})
	for _, ep := range rest {
		out = append(out, ep.Name)
	}
	return out
}

type candidate struct {
	name   string
	client Client
}

// candidates is the preferred provider, if available, followed by every
// other available provider in fallback order. Names and clients come from
// one locked view of the registry.
func (r *Router) candidates(preferred string) []candidate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []candidate
	if ep, ok := r.endpoints[preferred]; ok && ep.Available {
		out = append(out, candidate{name: preferred, client: r.clients[preferred]})
	}
	for _, n := range r.fallbackNames() {
		if n != preferred && r.endpoints[n].Available {
			out = append(out, candidate{name: n, client: r.clients[n]})
		}
	}
	return out
}

// Route picks the provider a turn should use.
func (r *Router) Route(preferred string) (string, Client, error) {
	cands := r.candidates(preferred)
	if len(cands) == 0 {
		return "", nil, ErrNoProviderAvailable
	}
	return cands[0].name, cands[0].client, nil
}

// Generate tries each candidate under its own timeout. A failed or timed out
// provider is skipped for this call only.
func (r *Router) Generate(ctx context.Context, preferred string, messages []Message) (Response, error) {
	cands := r.candidates(preferred)
	if len(cands) == 0 {
		return Response{}, ErrNoProviderAvailable
	}

	var errs []error
	for _, c := range cands {
		name := c.name
		start := time.Now()
		resp, err := r.call(ctx, c.client, messages)
		if err == nil {
			resp.Provider = name
			r.logger.Info("provider responded",
				zap.String("provider", name),
				zap.String("model", resp.Model),
				zap.Duration("elapsed", time.Since(start)),
				zap.Int("total_tokens", resp.TotalTokens))
			return resp, nil
		}
		r.logger.Warn("provider failed, falling back",
			zap.String("provider", name), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
		if ctx.Err() != nil {
			break
		}
	}
	return Response{}, fmt.Errorf("%w: %w", ErrNoProviderAvailable, errors.Join(errs...))
}

// call bounds one provider request. It returns on timeout even when the
// client ignores its context.
func (r *Router) call(ctx context.Context, client Client, messages []Message) (Response, error) {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type result struct {
		resp Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := client.Generate(cctx, messages)
		done <- result{resp, err}
	}()

	select {
	case res := <-done:
		return res.resp, res.err
	case <-cctx.Done():
		return Response{}, cctx.Err()
	}
}
