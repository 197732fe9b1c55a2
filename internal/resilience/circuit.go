package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned when a call is rejected because the
// service's breaker is open.
var ErrCircuitOpen = eris.New("resilience: circuit open")

// CircuitState is a breaker's position.
type CircuitState int32

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitConfig tunes a per-service breaker.
type CircuitConfig struct {
	// FailureThreshold is the number of consecutive failures that
	// opens the breaker.
	FailureThreshold int
	// ResetTimeout is how long an open breaker waits before letting a
	// probe call through.
	ResetTimeout time.Duration
	// HalfOpenMaxProbes bounds concurrent probes while half-open.
	HalfOpenMaxProbes int
}

// DefaultCircuitConfig opens after five consecutive failures and
// probes once per thirty-second window.
func DefaultCircuitConfig() CircuitConfig {
	return CircuitConfig{
		FailureThreshold:  5,
		ResetTimeout:      30 * time.Second,
		HalfOpenMaxProbes: 1,
	}
}

// CircuitBreaker guards one service. A run of failures opens it, open
// calls fail fast with ErrCircuitOpen, and after the reset timeout a
// single successful probe closes it again.
type CircuitBreaker struct {
	service string
	cfg     CircuitConfig

	mu       sync.Mutex
	state    CircuitState
	failures int
	probes   int
	openedAt time.Time
}

// NewCircuitBreaker creates a closed breaker for a service. Zero
// config fields fall back to the defaults.
func NewCircuitBreaker(service string, cfg CircuitConfig) *CircuitBreaker {
	def := DefaultCircuitConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.HalfOpenMaxProbes <= 0 {
		cfg.HalfOpenMaxProbes = def.HalfOpenMaxProbes
	}
	return &CircuitBreaker{service: service, cfg: cfg}
}

// State returns the breaker's current position.
func (b *CircuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. An open breaker past its
// reset timeout transitions to half-open and admits a bounded number
// of probes.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		if time.Since(b.openedAt) < b.cfg.ResetTimeout {
			return ErrCircuitOpen
		}
		b.transition(CircuitHalfOpen)
		b.probes = 1
		return nil
	case CircuitHalfOpen:
		if b.probes >= b.cfg.HalfOpenMaxProbes {
			return ErrCircuitOpen
		}
		b.probes++
		return nil
	}
	return nil
}

// Record feeds a call outcome into the breaker.
func (b *CircuitBreaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		if b.state != CircuitClosed {
			b.transition(CircuitClosed)
		}
		return
	}

	b.failures++
	switch b.state {
	case CircuitHalfOpen:
		b.transition(CircuitOpen)
		b.openedAt = time.Now()
	case CircuitClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.transition(CircuitOpen)
			b.openedAt = time.Now()
		}
	}
}

// transition assumes b.mu is held.
func (b *CircuitBreaker) transition(to CircuitState) {
	from := b.state
	b.state = to
	b.probes = 0
	zap.L().Info("circuit state change",
		zap.String("service", b.service),
		zap.String("from", from.String()),
		zap.String("to", to.String()))
}

// breakerSet lazily creates one breaker per service name.
type breakerSet struct {
	cfg CircuitConfig

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

func newBreakerSet(cfg CircuitConfig) *breakerSet {
	return &breakerSet{cfg: cfg, breakers: make(map[string]*CircuitBreaker)}
}

func (s *breakerSet) get(service string) *CircuitBreaker {
	s.mu.RLock()
	b, ok := s.breakers[service]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.breakers[service]; ok {
		return b
	}
	b = NewCircuitBreaker(service, s.cfg)
	s.breakers[service] = b
	return b
}

// States snapshots every known breaker's position by service name.
func (s *breakerSet) States() map[string]CircuitState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]CircuitState, len(s.breakers))
	for name, b := range s.breakers {
		out[name] = b.State()
	}
	return out
}
