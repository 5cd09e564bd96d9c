package orchestrator

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jonathan/pain-assessment/internal/types"
	"github.com/jonathan/pain-assessment/internal/wizard"
)

var (
	// ErrSubmissionInFlight rejects a Submit while another one is running.
	ErrSubmissionInFlight = errors.New("a submission is already in progress")
	// ErrFieldType is returned when UpdateField gets a value of the wrong type.
	ErrFieldType = errors.New("value has the wrong type for field")
	// ErrUnknownField is returned for fields the draft does not have.
	ErrUnknownField = errors.New("unknown assessment field")
	// ErrPointNotFound is returned when a point id is not in the draft.
	ErrPointNotFound = errors.New("pain point not found")
)

// ValidationError reports why a step could not be left or the draft could not be submitted.
type ValidationError struct {
	Step   types.WizardStep
	Result wizard.Result
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Result.Errors))
	for f := range e.Result.Errors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fmt.Sprintf("step %s is incomplete: %s", e.Step, strings.Join(fields, ", "))
}

// Unwrap lets callers match wizard.ErrStepIncomplete.
func (e *ValidationError) Unwrap() error {
	return wizard.ErrStepIncomplete
}
