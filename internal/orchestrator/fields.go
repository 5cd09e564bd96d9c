package orchestrator

import (
	"fmt"
	"strings"

	"github.com/jonathan/pain-assessment/internal/types"
)

// Field names a top-level section of the assessment record.
type Field string

// Updatable fields.
const (
	FieldUser              Field = "user"
	FieldPoints            Field = "points"
	FieldTiming            Field = "timing"
	FieldAggravators       Field = "aggravators"
	FieldRelievers         Field = "relievers"
	FieldAssociated        Field = "associated"
	FieldFunctional        Field = "functional"
	FieldHistory           Field = "history"
	FieldGoals             Field = "goals"
	FieldLocale            Field = "locale"
	FieldPainMapImageFront Field = "painMapImageFront"
	FieldPainMapImageBack  Field = "painMapImageBack"
)

// affectsRedFlags reports whether a change to f requires re-running the classifier.
func (f Field) affectsRedFlags() bool {
	return f == FieldAssociated || f == FieldHistory
}

func applyField(d *types.AssessmentData, field Field, value any) error {
	switch field {
	case FieldUser:
		v, err := as[types.User](field, value)
		if err != nil {
			return err
		}
		v.Email = strings.TrimSpace(v.Email)
		d.User = v
	case FieldPoints:
		v, err := as[[]types.PainPoint](field, value)
		if err != nil {
			return err
		}
		points := make([]types.PainPoint, len(v))
		for i, p := range v {
			points[i] = p.Clone()
		}
		d.Points = points
	case FieldTiming:
		switch v := value.(type) {
		case *types.Timing:
			d.Timing = v.Clone()
		case types.Timing:
			d.Timing = v.Clone()
		case nil:
			d.Timing = nil
		default:
			return typeError(field, value)
		}
	case FieldAggravators:
		v, err := as[types.Aggravators](field, value)
		if err != nil {
			return err
		}
		d.Aggravators = v
	case FieldRelievers:
		v, err := as[types.Relievers](field, value)
		if err != nil {
			return err
		}
		d.Relievers = v
	case FieldAssociated:
		v, err := as[types.AssociatedSymptoms](field, value)
		if err != nil {
			return err
		}
		d.Associated = v
	case FieldFunctional:
		v, err := as[types.FunctionalImpact](field, value)
		if err != nil {
			return err
		}
		d.Functional = v.Clone()
	case FieldHistory:
		v, err := as[types.HistoryContext](field, value)
		if err != nil {
			return err
		}
		d.History = v.Clone()
	case FieldGoals:
		v, err := as[types.Goals](field, value)
		if err != nil {
			return err
		}
		d.Goals = v.Clone()
	case FieldLocale:
		v, err := as[string](field, value)
		if err != nil {
			return err
		}
		d.Locale = v
	case FieldPainMapImageFront:
		v, err := as[string](field, value)
		if err != nil {
			return err
		}
		d.PainMapImageFront = v
	case FieldPainMapImageBack:
		v, err := as[string](field, value)
		if err != nil {
			return err
		}
		d.PainMapImageBack = v
	default:
		return fmt.Errorf("failed to update %q: %w", field, ErrUnknownField)
	}
	return nil
}

// as accepts T or a non-nil *T.
func as[T any](field Field, value any) (T, error) {
	switch v := value.(type) {
	case T:
		return v, nil
	case *T:
		if v != nil {
			return *v, nil
		}
	}
	var zero T
	return zero, typeError(field, value)
}

func typeError(field Field, value any) error {
	return fmt.Errorf("failed to update %q with %T: %w", field, value, ErrFieldType)
}
