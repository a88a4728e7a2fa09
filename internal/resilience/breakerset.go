package resilience

import "sync"

// BreakerSet manages one [CircuitBreaker] per named external dependency.
//
// Names that were never explicitly registered share a single default
// breaker, so a newly wired external tool is protected from the first call
// without additional setup. Registered names get an isolated breaker whose
// state does not bleed into other dependencies.
//
// The zero value is not usable; create instances with [NewBreakerSet].
type BreakerSet struct {
	defaults Config

	mu       sync.RWMutex
	named    map[string]*CircuitBreaker
	fallback *CircuitBreaker
}

// NewBreakerSet creates a BreakerSet. defaults supplies the configuration
// applied to the shared default breaker and to breakers created lazily via
// [BreakerSet.Register]; its Name field is ignored.
func NewBreakerSet(defaults Config) *BreakerSet {
	fb := defaults
	fb.Name = "default"
	return &BreakerSet{
		defaults: defaults,
		named:    make(map[string]*CircuitBreaker),
		fallback: New(fb),
	}
}

// Register creates (or replaces) an isolated breaker for name using cfg.
// Zero-value cfg fields fall back to the set's defaults.
func (s *BreakerSet) Register(name string, cfg Config) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = s.defaults.MaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = s.defaults.ResetTimeout
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = s.defaults.HalfOpenMax
	}
	cfg.Name = name

	cb := New(cfg)
	s.mu.Lock()
	s.named[name] = cb
	s.mu.Unlock()
	return cb
}

// Get returns the breaker guarding name. Unregistered names map to the
// shared default breaker.
func (s *BreakerSet) Get(name string) *CircuitBreaker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cb, ok := s.named[name]; ok {
		return cb
	}
	return s.fallback
}

// Execute runs fn through the breaker guarding name.
func (s *BreakerSet) Execute(name string, fn func() error) error {
	return s.Get(name).Execute(fn)
}
