package fieldcrypt

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/hengadev/fieldcrypt/internal/health"
	"github.com/hengadev/fieldcrypt/internal/reliability"
)

type (
	HealthStatus = health.Status
	HealthReport = health.Report
)

const (
	HealthHealthy   = health.StatusHealthy
	HealthDegraded  = health.StatusDegraded
	HealthUnhealthy = health.StatusUnhealthy
)

const healthSample = "fieldcrypt-health-sample"

// Health runs the engine checks:
//
//	cipher    every registered algorithm round-trips a sample value (critical)
//	key       degraded while the built-in fallback key is in use
//	keystore  the circuit guarding the key store; only with a key store (critical)
func (e *Engine) Health(ctx context.Context) *HealthReport {
	return e.healthChecker().Check(ctx)
}

// HealthHandler serves Health over HTTP at /health, /health/live,
// /health/ready and /health/check/{name}.
func (e *Engine) HealthHandler() http.Handler {
	return health.Handler(e.healthChecker())
}

func (e *Engine) healthChecker() *health.Checker {
	c := health.NewChecker(Version)
	checks := []health.Check{
		{Name: "cipher", Critical: true, Run: e.checkCiphers},
		{Name: "key", Run: e.checkDefaultKey},
	}
	if e.keys.HasStore() {
		checks = append(checks, health.Check{Name: "keystore", Critical: true, Run: e.checkKeyStore})
	}
	for _, check := range checks {
		_ = c.Register(check)
	}
	return c
}

func (e *Engine) checkCiphers(ctx context.Context) (HealthStatus, error) {
	key := e.keys.DefaultKey()
	var errs []error
	for _, name := range e.strategies.Algorithms() {
		if err := ctx.Err(); err != nil {
			return health.StatusUnknown, err
		}
		s, err := e.strategies.Find(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ciphertext, err := s.Encrypt(healthSample, key)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		plaintext, err := s.Decrypt(ciphertext, key)
		if err != nil || plaintext != healthSample {
			errs = append(errs, fmt.Errorf("%s: sample value did not round-trip", name))
		}
	}
	if len(errs) > 0 {
		return health.StatusUnhealthy, errors.Join(errs...)
	}
	return health.StatusHealthy, nil
}

func (e *Engine) checkDefaultKey(context.Context) (HealthStatus, error) {
	if e.keys.UsingFallbackKey() {
		return health.StatusDegraded, errors.New("using the built-in fallback key")
	}
	return health.StatusHealthy, nil
}

func (e *Engine) checkKeyStore(context.Context) (HealthStatus, error) {
	switch state := e.keys.StoreState(); state {
	case reliability.StateClosed:
		return health.StatusHealthy, nil
	case reliability.StateHalfOpen:
		return health.StatusDegraded, nil
	default:
		return health.StatusUnhealthy, fmt.Errorf("%w: circuit %s", ErrKeyStoreUnavailable, state)
	}
}
