// Package resilience provides the retry and circuit breaker primitives used
// around the scoring API and store writes.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// CircuitState is the position of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

var circuitStateNames = [...]string{"closed", "open", "half-open"}

func (s CircuitState) String() string {
	if s < 0 || int(s) >= len(circuitStateNames) {
		return "unknown"
	}
	return circuitStateNames[s]
}

// ErrCircuitOpen rejects a call while the upstream is considered down. It is
// transient: generation is retried once the scoring API recovers.
var ErrCircuitOpen = NewTransientError(eris.New("circuit breaker is open"), 0)

// CircuitBreakerConfig controls circuit breaker behavior.
type CircuitBreakerConfig struct {
	// Name labels the guarded upstream in logs and metrics.
	Name string

	// FailureThreshold consecutive tripping failures open the circuit.
	// Default: 5.
	FailureThreshold int

	// ResetTimeout is how long the circuit stays open before probing.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMaxProbes successful probes close the circuit again. At most
	// this many probes are in flight at once; extra calls are rejected.
	// Default: 1.
	HalfOpenMaxProbes int

	// ShouldTrip decides which errors count against the upstream. Defaults
	// to IsTransient, so one rejected payload does not open the circuit for
	// every user.
	ShouldTrip func(err error) bool

	// OnStateChange is called on every transition, under the breaker lock.
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns the settings used for the scoring API.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:              "scoring",
		FailureThreshold:  5,
		ResetTimeout:      30 * time.Second,
		HalfOpenMaxProbes: 1,
	}
}

// CircuitBreaker guards one upstream.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
	inFlight int // half-open probes not yet finished
	probesOK int
}

// NewCircuitBreaker fills unset fields from DefaultCircuitBreakerConfig.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.HalfOpenMaxProbes <= 0 {
		cfg.HalfOpenMaxProbes = def.HalfOpenMaxProbes
	}
	if cfg.ShouldTrip == nil {
		cfg.ShouldTrip = IsTransient
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Name returns the guarded upstream's name.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Execute runs fn through the breaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := ExecuteVal(ctx, cb, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// ExecuteVal runs fn through the breaker and returns its value.
func ExecuteVal[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	probe, err := cb.admit()
	if err != nil {
		var zero T
		return zero, err
	}
	val, err := fn(ctx)
	cb.settle(probe, err)
	return val, err
}

// State returns the current state. An open circuit whose timeout has elapsed
// reports half-open even before the next call arrives.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && cb.cooledDown() {
		return CircuitHalfOpen
	}
	return cb.state
}

// Reset forces the circuit closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.moveTo(CircuitClosed)
}

func (cb *CircuitBreaker) cooledDown() bool {
	return cb.now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout
}

// admit decides whether a call may proceed. probe is true when the call is
// a half-open probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return false, nil
	case CircuitOpen:
		if !cb.cooledDown() {
			return false, ErrCircuitOpen
		}
		cb.moveTo(CircuitHalfOpen)
	}

	if cb.inFlight+cb.probesOK >= cb.cfg.HalfOpenMaxProbes {
		return false, ErrCircuitOpen
	}
	cb.inFlight++
	return true, nil
}

// settle records the outcome of an admitted call.
func (cb *CircuitBreaker) settle(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.inFlight--
	}
	tripped := err != nil && cb.cfg.ShouldTrip(err)

	switch cb.state {
	case CircuitClosed:
		if !tripped {
			cb.failures = 0
			return
		}
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.moveTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		if !probe {
			return
		}
		if tripped {
			cb.moveTo(CircuitOpen)
			return
		}
		cb.probesOK++
		if cb.probesOK >= cb.cfg.HalfOpenMaxProbes {
			cb.moveTo(CircuitClosed)
		}
	}
}

// moveTo switches state and clears the counters the new state starts from.
// Caller holds mu.
func (cb *CircuitBreaker) moveTo(to CircuitState) {
	from := cb.state
	switch to {
	case CircuitOpen:
		cb.openedAt = cb.now()
		cb.probesOK = 0
	case CircuitHalfOpen:
		cb.probesOK = 0
		cb.inFlight = 0
	case CircuitClosed:
		cb.failures = 0
		cb.probesOK = 0
		cb.inFlight = 0
	}
	cb.state = to
	if from != to && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}
