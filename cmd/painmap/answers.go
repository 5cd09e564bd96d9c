package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jonathan/pain-assessment/internal/orchestrator"
	"github.com/jonathan/pain-assessment/internal/types"
)

// answers is an assessment filled in ahead of time, using the record's JSON field names.
type answers struct {
	types.AssessmentData
}

// stepFields lists the fields each wizard step asks for.
var stepFields = map[types.WizardStep][]orchestrator.Field{
	types.StepWelcome:     {orchestrator.FieldUser, orchestrator.FieldLocale},
	types.StepPainMapping: {orchestrator.FieldPoints, orchestrator.FieldPainMapImageFront, orchestrator.FieldPainMapImageBack},
	types.StepTiming:      {orchestrator.FieldTiming},
	types.StepTriggers:    {orchestrator.FieldAggravators, orchestrator.FieldRelievers},
	types.StepSymptoms:    {orchestrator.FieldAssociated, orchestrator.FieldFunctional},
	types.StepRedFlags:    {orchestrator.FieldHistory},
	types.StepGoals:       {orchestrator.FieldGoals},
}

// loadAnswers reads a YAML or JSON answers file. YAML is converted through JSON so both
// formats use the same field names.
func loadAnswers(path string) (*answers, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read answers file: %w", err)
	}
	return parseAnswers(raw, filepath.Ext(path))
}

func parseAnswers(raw []byte, ext string) (*answers, error) {
	if !strings.EqualFold(ext, ".json") {
		var doc any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse answers YAML: %w", err)
		}
		if doc == nil {
			return nil, fmt.Errorf("answers file is empty")
		}
		var err error
		if raw, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("failed to convert answers YAML: %w", err)
		}
	}

	var a answers
	if err := json.Unmarshal(raw, &a.AssessmentData); err != nil {
		return nil, fmt.Errorf("failed to parse answers: %w", err)
	}
	return &a, nil
}

// value returns the answer for field in the form UpdateField expects.
func (a *answers) value(field orchestrator.Field) any {
	d := a.AssessmentData
	switch field {
	case orchestrator.FieldUser:
		return d.User
	case orchestrator.FieldLocale:
		return d.Locale
	case orchestrator.FieldPoints:
		return d.Points
	case orchestrator.FieldPainMapImageFront:
		return d.PainMapImageFront
	case orchestrator.FieldPainMapImageBack:
		return d.PainMapImageBack
	case orchestrator.FieldTiming:
		return d.Timing
	case orchestrator.FieldAggravators:
		return d.Aggravators
	case orchestrator.FieldRelievers:
		return d.Relievers
	case orchestrator.FieldAssociated:
		return d.Associated
	case orchestrator.FieldFunctional:
		return d.Functional
	case orchestrator.FieldHistory:
		return d.History
	case orchestrator.FieldGoals:
		return d.Goals
	default:
		return nil
	}
}

// stepper is the part of the orchestrator the answers walk needs.
type stepper interface {
	UpdateField(field orchestrator.Field, value any) error
	GoNext() error
	Snapshot() orchestrator.State
}

// apply walks the steps from the current one up to review, filling each step's fields and
// advancing. onStep is called after every step that was left.
func (a *answers) apply(w stepper, onStep func(step types.WizardStep)) error {
	for {
		step := w.Snapshot().CurrentStep
		if step == types.StepReview {
			return nil
		}
		for _, field := range stepFields[step] {
			v := a.value(field)
			if t, ok := v.(*types.Timing); ok && t == nil {
				continue
			}
			if err := w.UpdateField(field, v); err != nil {
				return fmt.Errorf("failed to fill %s: %w", step, err)
			}
		}
		if err := w.GoNext(); err != nil {
			return fmt.Errorf("step %q is incomplete: %w", step.Title(), err)
		}
		if onStep != nil {
			onStep(step)
		}
	}
}
