// Package deploy implements the step sequencer and the concrete pipeline
// that installs a k3k nested cluster on the host and Rancher inside it.
// All durable state lives in the external clusters; every step re-checks
// live state before acting, so the whole sequence is safe to re-run after
// any failure or interrupt.
package deploy

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cnrancher/autorancher/pkg/poll"
)

// State tracks one step through its lifecycle.
type State string

const (
	StatePending  State = "Pending"
	StateSkipped  State = "Skipped"
	StateRunning  State = "Running"
	StateComplete State = "Complete"
	StateFailed   State = "Failed"
)

// Check is the precondition verdict deciding skip versus execute.
type Check int

const (
	// CheckMissing means the target state does not exist yet.
	CheckMissing Check = iota
	// CheckOutdated means the target exists but with different parameters,
	// so the action runs again as an in-place update.
	CheckOutdated
	// CheckUpToDate means the target already has the desired shape.
	CheckUpToDate
)

// Postcondition gates progression to the next step on observed external
// state.
type Postcondition struct {
	Spec     *poll.Spec
	Accessor poll.Accessor
}

// Step is one ordered unit of work against exactly one external system.
type Step struct {
	Name string
	// Inspect is the external command an operator should run when this
	// step fails, e.g. "kubectl -n cattle-system get deployment rancher".
	Inspect      string
	Precondition func(ctx context.Context) (Check, error)
	Action       func(ctx context.Context) error
	Post         *Postcondition
}

// StepResult records the terminal state of one step in a run.
type StepResult struct {
	Name   string
	State  State
	Detail string
}

// Sequencer executes steps strictly in order, halting at the first failure.
// There is no rollback: completed steps keep their external effects and the
// fix is to re-run the sequence, which skips them.
type Sequencer struct {
	Logger *logrus.Logger
}

// Run executes the steps. It returns the per-step results alongside the
// error that halted the sequence, if any.
func (s *Sequencer) Run(ctx context.Context, steps []*Step) ([]StepResult, error) {
	results := make([]StepResult, 0, len(steps))
	for i, step := range steps {
		s.Logger.Infof("[deploy] step %d/%d: %s", i+1, len(steps), step.Name)

		check := CheckMissing
		if step.Precondition != nil {
			var err error
			check, err = step.Precondition(ctx)
			if err != nil {
				results = append(results, StepResult{Name: step.Name, State: StateFailed, Detail: err.Error()})
				return results, s.fail(step, errors.Wrapf(err, "step %q precondition check failed", step.Name))
			}
		}
		if check == CheckUpToDate {
			s.Logger.Infof("[deploy] step %q is already done, skipping", step.Name)
			results = append(results, StepResult{Name: step.Name, State: StateSkipped})
			continue
		}
		if check == CheckOutdated {
			s.Logger.Infof("[deploy] step %q target exists with different parameters, updating in place", step.Name)
		}

		if err := step.Action(ctx); err != nil {
			results = append(results, StepResult{Name: step.Name, State: StateFailed, Detail: err.Error()})
			return results, s.fail(step, errors.Wrapf(err, "step %q action failed", step.Name))
		}

		if step.Post != nil {
			result := poll.WaitFor(ctx, step.Post.Spec, step.Post.Accessor)
			if err := result.Err(step.Post.Spec); err != nil {
				results = append(results, StepResult{Name: step.Name, State: StateFailed, Detail: result.Observed})
				return results, s.fail(step, errors.Wrapf(err, "step %q postcondition not reached", step.Name))
			}
		}

		s.Logger.Infof("[deploy] step %q complete", step.Name)
		results = append(results, StepResult{Name: step.Name, State: StateComplete})
	}
	return results, nil
}

func (s *Sequencer) fail(step *Step, err error) error {
	if step.Inspect == "" {
		return err
	}
	return fmt.Errorf("%s, inspect with: %s", err.Error(), step.Inspect)
}
