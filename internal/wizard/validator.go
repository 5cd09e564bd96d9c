// Package wizard implements the ordered assessment steps and the per-step validation gate.
package wizard

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/jonathan/pain-assessment/internal/types"
)

// Result is the outcome of validating one step.
type Result struct {
	Valid  bool                `json:"valid"`
	Errors map[string][]string `json:"errors,omitempty"`
}

func (r *Result) add(field, message string) {
	if r.Errors == nil {
		r.Errors = make(map[string][]string)
	}
	r.Errors[field] = append(r.Errors[field], message)
	r.Valid = false
}

var validate = types.NewValidator()

// userMessages maps validator failures on the welcome step to field keys and messages.
var userMessages = map[string]struct{ key, message string }{
	"Email": {"email", "Email is required"},
	"Name":  {"name", "Name is required"},
}

// Validate decides whether data is complete enough to leave step. It never mutates data.
func Validate(step types.WizardStep, data types.AssessmentData) Result {
	result := Result{Valid: true}

	switch step {
	case types.StepWelcome:
		if err := validate.StructPartial(data.User, "Email", "Name"); err != nil {
			var fieldErrs validator.ValidationErrors
			if errors.As(err, &fieldErrs) {
				for _, fe := range fieldErrs {
					if m, ok := userMessages[fe.Field()]; ok {
						result.add(m.key, m.message)
					}
				}
			}
		}
	case types.StepPainMapping:
		if len(data.Points) == 0 {
			result.add("points", "Add at least one pain point")
		}
	case types.StepTiming:
		if data.Timing == nil {
			result.add("timing", "Timing information is required")
		}
	}

	return result
}

// submissionSteps are the steps whose fields a submission cannot do without.
var submissionSteps = []types.WizardStep{types.StepWelcome, types.StepPainMapping}

// ValidateSubmission checks the patient identity and the pain map and merges the errors.
// Later steps are optional in the outbound payload.
func ValidateSubmission(data types.AssessmentData) Result {
	merged := Result{Valid: true}
	for _, step := range submissionSteps {
		for field, msgs := range Validate(step, data).Errors {
			for _, m := range msgs {
				merged.add(field, m)
			}
		}
	}
	return merged
}

// IncompletePoints returns the ids of points that lack a quality or carry an out of range
// intensity. Such points do not block the pain-mapping step.
func IncompletePoints(data types.AssessmentData) []string {
	var ids []string
	for _, p := range data.Points {
		if err := validate.Struct(p); err != nil {
			ids = append(ids, p.ID)
		}
	}
	return ids
}
