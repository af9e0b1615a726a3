package health

import (
	"context"
	"fmt"
)

// StateReporter reports a circuit breaker state name.
type StateReporter interface {
	BreakerState() string
}

// BreakerChecker fails while the candidate fetch circuit breaker is open, so
// the instance is taken out of rotation until storage recovers.
type BreakerChecker struct {
	reporter StateReporter
}

// NewBreakerChecker creates a checker over reporter.
func NewBreakerChecker(reporter StateReporter) *BreakerChecker {
	return &BreakerChecker{reporter: reporter}
}

// HealthCheck implements Checker.
func (b *BreakerChecker) HealthCheck(context.Context) error {
	if state := b.reporter.BreakerState(); state == "open" {
		return fmt.Errorf("candidate fetch circuit breaker is %s", state)
	}
	return nil
}
