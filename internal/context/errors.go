package context

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientBudget matches every *BudgetError.
	ErrInsufficientBudget = errors.New("insufficient token budget")
	// ErrRender matches every *RenderError.
	ErrRender = errors.New("system prompt render failed")
)

// BudgetError reports that the system prompt and final user turn leave
// less room for history than the configured minimum. Retrying with the
// same inputs fails the same way.
type BudgetError struct {
	Budget    int
	Reserved  int
	Remaining int
	Minimum   int
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("insufficient token budget: remaining=%d minimum=%d budget=%d reserved=%d",
		e.Remaining, e.Minimum, e.Budget, e.Reserved)
}

func (e *BudgetError) Is(target error) bool {
	return target == ErrInsufficientBudget
}

// RenderError reports a system prompt template failure.
type RenderError struct {
	Variant PromptVariant
	Err     error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s system prompt: %v", e.Variant, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

func (e *RenderError) Is(target error) bool {
	return target == ErrRender
}
