package reliability

import "context"

// Guard combines retries with a circuit breaker. Every attempt passes the
// breaker, so an open circuit stops the retries too.
type Guard struct {
	breaker *CircuitBreaker
	retry   *ExponentialBackoff
}

func NewGuard(name string, breaker CircuitBreakerConfig, retry RetryConfig) *Guard {
	return &Guard{
		breaker: NewCircuitBreaker(name, breaker),
		retry:   NewExponentialBackoff(retry),
	}
}

// Do runs operation under the guard. A nil guard runs it directly.
func (g *Guard) Do(ctx context.Context, operation func(context.Context) error) error {
	if g == nil {
		return operation(ctx)
	}
	return g.retry.Execute(ctx, func(ctx context.Context) error {
		return g.breaker.Execute(ctx, operation)
	})
}

// State returns the breaker state. A nil guard is always closed.
func (g *Guard) State() CircuitState {
	if g == nil {
		return StateClosed
	}
	return g.breaker.State()
}

func (g *Guard) Stats() CircuitBreakerStats {
	if g == nil {
		return CircuitBreakerStats{State: StateClosed}
	}
	return g.breaker.Stats()
}

// Reset closes the circuit.
func (g *Guard) Reset() {
	if g != nil {
		g.breaker.Reset()
	}
}
