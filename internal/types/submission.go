package types

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// Urgency is the triage classification carried on the wire.
type Urgency string

// Urgency wire values.
const (
	UrgencyLow      Urgency = "LOW_URGENCY"
	UrgencyModerate Urgency = "MODERATE_URGENCY"
	UrgencyHigh     Urgency = "HIGH_URGENCY"
)

// ParseUrgency accepts either the wire value or the bare tier name.
func ParseUrgency(s string) (Urgency, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW_URGENCY", "LOW":
		return UrgencyLow, true
	case "MODERATE_URGENCY", "MODERATE":
		return UrgencyModerate, true
	case "HIGH_URGENCY", "HIGH":
		return UrgencyHigh, true
	default:
		return "", false
	}
}

// Tier returns LOW, MODERATE or HIGH; empty for an unset urgency.
func (u Urgency) Tier() string {
	return strings.TrimSuffix(string(u), "_URGENCY")
}

// Rank orders urgencies so LOW < MODERATE < HIGH. Unset ranks below LOW.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyLow:
		return 1
	case UrgencyModerate:
		return 2
	case UrgencyHigh:
		return 3
	default:
		return 0
	}
}

// PainArea is one pain point as sent to the summarization backend.
type PainArea struct {
	Region      string        `json:"region" validate:"required"`
	Intensity   int           `json:"intensity" validate:"min=0,max=10"`
	Coordinates *Coords       `json:"coordinates,omitempty"`
	Notes       string        `json:"notes"`
	Qualities   []PainQuality `json:"qualities"`
}

// RedFlagSummary is the fixed set of red-flag booleans on the submission payload.
type RedFlagSummary struct {
	BowelBladderDysfunction bool   `json:"bowelBladderDysfunction"`
	ProgressiveWeakness     bool   `json:"progressiveWeakness"`
	SaddleAnesthesia        bool   `json:"saddleAnesthesia"`
	UnexplainedWeightLoss   bool   `json:"unexplainedWeightLoss"`
	FeverChills             bool   `json:"feverChills"`
	NightPain               bool   `json:"nightPain"`
	CancerHistory           bool   `json:"cancerHistory"`
	RecentTrauma            bool   `json:"recentTrauma"`
	Notes                   string `json:"notes"`
}

// RedFlagLabel pairs a summary field with its human label.
type RedFlagLabel struct {
	Label   string
	Present bool
}

// Labeled returns the eight booleans with display labels, in display order.
func (r RedFlagSummary) Labeled() []RedFlagLabel {
	return []RedFlagLabel{
		{"Bowel/Bladder Dysfunction", r.BowelBladderDysfunction},
		{"Progressive Weakness", r.ProgressiveWeakness},
		{"Saddle Anesthesia", r.SaddleAnesthesia},
		{"Unexplained Weight Loss", r.UnexplainedWeightLoss},
		{"Fever/Chills", r.FeverChills},
		{"Night Pain", r.NightPain},
		{"Cancer History", r.CancerHistory},
		{"Recent Trauma", r.RecentTrauma},
	}
}

// Any reports whether at least one red flag is set.
func (r RedFlagSummary) Any() bool {
	for _, l := range r.Labeled() {
		if l.Present {
			return true
		}
	}
	return false
}

// SubmissionPayload is the JSON body posted to the summarization backend.
type SubmissionPayload struct {
	SessionID         string          `json:"sessionId" validate:"required"`
	Email             string          `json:"email" validate:"required,email"`
	FullName          string          `json:"fullName" validate:"required"`
	Phone             string          `json:"phone,omitempty"`
	DateOfBirth       string          `json:"dateOfBirth,omitempty"`
	PainAreas         []PainArea      `json:"painAreas" validate:"min=1,dive"`
	RedFlags          RedFlagSummary  `json:"redFlags"`
	TreatmentGoals    string          `json:"treatmentGoals"`
	PainMapImageFront string          `json:"painMapImageFront,omitempty"`
	PainMapImageBack  string          `json:"painMapImageBack,omitempty"`
	Assessment        *AssessmentData `json:"assessment,omitempty"`
}

// Validate checks the payload's struct tags.
func (p *SubmissionPayload) Validate() error {
	return NewValidator().Struct(p)
}

// Stream event names.
const (
	EventStatus   = "status"
	EventDelta    = "delta"
	EventComplete = "complete"
	EventError    = "error"
)

// StreamEvent is one decoded event of a submission stream.
type StreamEvent struct {
	Event                string  `json:"event"`
	Message              string  `json:"message,omitempty"`
	Text                 string  `json:"text,omitempty"`
	AISummary            string  `json:"aiSummary,omitempty"`
	SystemRecommendation Urgency `json:"systemRecommendation,omitempty"`
	AssessmentID         string  `json:"assessmentId,omitempty"`
	SessionID            string  `json:"sessionId,omitempty"`
}

// NewValidator returns a validator with the assessment tags registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("pain_quality", func(fl validator.FieldLevel) bool {
		return PainQuality(fl.Field().String()).Valid()
	})
	return v
}
