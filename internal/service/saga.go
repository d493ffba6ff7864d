package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// SagaError reports which step of a multi-step operation failed. Steps that
// completed before it stay committed; there is no compensation.
type SagaError struct {
	Saga      string
	Step      string
	Completed []string
	Err       error
}

func (e *SagaError) Error() string {
	if len(e.Completed) == 0 {
		return fmt.Sprintf("%s: step %s failed: %v", e.Saga, e.Step, e.Err)
	}
	return fmt.Sprintf("%s: step %s failed after [%s]: %v",
		e.Saga, e.Step, strings.Join(e.Completed, ", "), e.Err)
}

func (e *SagaError) Unwrap() error {
	return e.Err
}

// sagaStep is one named, idempotent unit of a saga. Each step checks the
// current state before writing so a retried saga converges.
type sagaStep struct {
	name string
	run  func(ctx context.Context) error
}

// runSaga executes steps in order and stops at the first failure.
func runSaga(ctx context.Context, saga string, steps ...sagaStep) error {
	completed := make([]string, 0, len(steps))
	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			slog.Warn("Saga step failed",
				"saga", saga,
				"step", step.name,
				"completed", completed,
				"error", err,
			)
			return &SagaError{Saga: saga, Step: step.name, Completed: completed, Err: err}
		}
		completed = append(completed, step.name)
	}
	slog.Debug("Saga completed", "saga", saga, "steps", completed)
	return nil
}

// IsSagaStep reports whether err came from the named step of a saga.
func IsSagaStep(err error, step string) bool {
	var sagaErr *SagaError
	return errors.As(err, &sagaErr) && sagaErr.Step == step
}
