package obs

import (
	"context"
	"fmt"
)

// HealthStatus is the aggregate result of running every registered check.
type HealthStatus struct {
	Status string                  `json:"status"`
	Checks map[string]*CheckResult `json:"checks"`
}

// CheckResult is a single named health check's outcome.
type CheckResult struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message"`
}

// Checker is one health probe the engine exposes (storage reachable, WAL
// replay clean, cache bypassable). Implemented by component wrappers in
// the top-level engine package.
type Checker func(ctx context.Context) *CheckResult

// HealthChecker aggregates named checks, including the state of any
// circuit breakers registered under the same manager.
type HealthChecker struct {
	checks   map[string]Checker
	breakers *CircuitBreakerManager
}

// NewHealthChecker creates a health checker that also surfaces circuit
// breaker state from breakers (may be nil).
func NewHealthChecker(breakers *CircuitBreakerManager) *HealthChecker {
	return &HealthChecker{
		checks:   make(map[string]Checker),
		breakers: breakers,
	}
}

// Register adds a named check, replacing any existing check with the same
// name.
func (hc *HealthChecker) Register(name string, check Checker) {
	hc.checks[name] = check
}

// Check runs every registered check and every known circuit breaker's
// state, returning "healthy" only if all of them pass.
func (hc *HealthChecker) Check(ctx context.Context) (*HealthStatus, error) {
	status := &HealthStatus{Status: "healthy", Checks: make(map[string]*CheckResult)}

	for name, check := range hc.checks {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		result := check(ctx)
		status.Checks[name] = result
		if !result.Healthy {
			status.Status = "degraded"
		}
	}

	if hc.breakers != nil {
		for name, state := range hc.breakers.GetStates() {
			healthy := state != CircuitOpen
			status.Checks["circuit:"+name] = &CheckResult{
				Healthy: healthy,
				Message: fmt.Sprintf("circuit breaker %q is %s", name, state),
			}
			if !healthy {
				status.Status = "degraded"
			}
		}
	}

	if len(status.Checks) == 0 {
		status.Checks["basic"] = &CheckResult{Healthy: true, Message: "no subsystems registered"}
	}

	return status, nil
}
