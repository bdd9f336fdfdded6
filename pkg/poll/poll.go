// Package poll implements the generic wait-for-condition primitive used by
// both the deployment readiness gates and the backup/restore job gates. It
// knows nothing about what is being observed; callers supply an accessor
// returning the current value of some external field.
package poll

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Accessor returns the currently observed value of an external field.
// A transient error (resource not created yet, apiserver hiccup) counts as
// "not yet" and is retried within the same attempt budget.
type Accessor func(ctx context.Context) (string, error)

// Spec describes one wait point.
type Spec struct {
	// Name identifies what is being waited for in logs and errors.
	Name string
	// Success values terminate the wait as soon as one is observed.
	Success []string
	// Failure patterns are matched as substrings of the observed value and
	// terminate the wait immediately with an ObservedFailure outcome.
	Failure []string
	// MaxAttempts bounds the number of accessor calls.
	MaxAttempts int
	// Delay is the sleep between attempts. There is no sleep after the
	// final attempt.
	Delay time.Duration
}

// Outcome classifies how a wait ended.
type Outcome int

const (
	Success Outcome = iota
	Timeout
	ObservedFailure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "Success"
	case Timeout:
		return "Timeout"
	default:
		return "ObservedFailure"
	}
}

// Result carries the outcome together with the last observed value, which
// fatal error reports surface to the operator.
type Result struct {
	Outcome  Outcome
	Observed string
	Attempts int
}

// Err converts a non-success result into an error naming the wait point and
// the last observed state.
func (r Result) Err(spec *Spec) error {
	switch r.Outcome {
	case Success:
		return nil
	case Timeout:
		return fmt.Errorf("timed out waiting for %s after %d attempts, last observed state: %q", spec.Name, r.Attempts, r.Observed)
	default:
		return fmt.Errorf("%s reported failure state: %q", spec.Name, r.Observed)
	}
}

// WaitFor polls the accessor until a success value is observed, a failure
// pattern matches, the attempt budget is exhausted, or the context is done.
// Context cancellation is reported as a Timeout result carrying the last
// observation.
func WaitFor(ctx context.Context, spec *Spec, accessor Accessor) Result {
	last := ""
	for attempt := 1; attempt <= spec.MaxAttempts; attempt++ {
		observed, err := accessor(ctx)
		if err == nil {
			last = observed
			if matchesAny(observed, spec.Success, false) {
				return Result{Outcome: Success, Observed: observed, Attempts: attempt}
			}
			if matchesAny(observed, spec.Failure, true) {
				return Result{Outcome: ObservedFailure, Observed: observed, Attempts: attempt}
			}
		}

		if attempt == spec.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return Result{Outcome: Timeout, Observed: last, Attempts: attempt}
		case <-time.After(spec.Delay):
		}
	}
	return Result{Outcome: Timeout, Observed: last, Attempts: spec.MaxAttempts}
}

func matchesAny(observed string, patterns []string, substring bool) bool {
	for _, pattern := range patterns {
		if substring && strings.Contains(observed, pattern) {
			return true
		}
		if !substring && observed == pattern {
			return true
		}
	}
	return false
}
