package platform

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"seriesbell/internal/resilience/circuitbreaker"
)

// Registry maps platform ids and source URLs to adapters.
type Registry struct {
	mu        sync.RWMutex
	platforms []Platform
	byID      map[string]Platform
}

// NewRegistry returns a registry holding ps. It panics on duplicate ids.
func NewRegistry(ps ...Platform) *Registry {
	r := &Registry{byID: make(map[string]Platform, len(ps))}
	for _, p := range ps {
		if err := r.Register(p); err != nil {
			panic(err)
		}
	}
	return r
}

// NewDefaultRegistry registers every built-in adapter sharing opts.
// opts.BaseURL and opts.Limiter must be empty here; they are per adapter.
func NewDefaultRegistry(opts Options) *Registry {
	opts.BaseURL = ""
	opts.Limiter = nil
	return NewRegistry(NewMangaDex(opts), NewAniList(opts), NewComick(opts), NewYouTube(opts))
}

// Register adds p. Platform ids must be unique.
func (r *Registry) Register(p Platform) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := p.Info().ID
	if _, dup := r.byID[id]; dup {
		return fmt.Errorf("platform %q already registered", id)
	}
	r.byID[id] = p
	r.platforms = append(r.platforms, p)
	return nil
}

// Get returns the adapter with the given id.
func (r *Registry) Get(platformID string) (Platform, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[platformID]
	return p, ok
}

// ByURL finds the adapter whose domain is the URL's host or a parent of it.
func (r *Registry) ByURL(rawURL string) (Platform, error) {
	host := hostOf(rawURL)
	if host == "" {
		return nil, &UnsupportedURLError{URL: rawURL}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.platforms {
		if hostMatches(host, p.Info().APIDomain) {
			return p, nil
		}
	}
	return nil, &UnsupportedURLError{URL: rawURL}
}

// Resolve returns the adapter for rawURL and the source id it names.
func (r *Registry) Resolve(rawURL string) (Platform, string, error) {
	p, err := r.ByURL(rawURL)
	if err != nil {
		return nil, "", err
	}
	id, err := p.IDFromSourceURL(rawURL)
	if err != nil {
		return nil, "", err
	}
	return p, id, nil
}

// All returns the adapters in registration order.
func (r *Registry) All() []Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Platform, len(r.platforms))
	copy(out, r.platforms)
	return out
}

// Breakers returns the circuit breaker of every adapter that has one,
// keyed by platform id.
func (r *Registry) Breakers() map[string]*circuitbreaker.CircuitBreaker {
	out := make(map[string]*circuitbreaker.CircuitBreaker)
	for _, p := range r.All() {
		if b, ok := p.(interface {
			Breaker() *circuitbreaker.CircuitBreaker
		}); ok {
			out[p.Info().ID] = b.Breaker()
		}
	}
	return out
}

func hostOf(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
