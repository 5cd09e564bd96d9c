package redflags

import (
	"slices"

	"github.com/jonathan/pain-assessment/internal/types"
)

var highUrgency = []string{
	BowelBladderChange,
	SaddleAnesthesia,
	ChestPain,
	ShortnessBreath,
	WorstHeadache,
	HeadacheFeverNeckStiffness,
}

// UrgencyLevel maps a result to a tier. A single high-urgency reason is enough for HIGH,
// whatever else fired.
func UrgencyLevel(result types.RedFlagResult) types.Urgency {
	if !result.Any {
		return types.UrgencyLow
	}
	if slices.ContainsFunc(result.Reasons, IsHighUrgency) {
		return types.UrgencyHigh
	}
	return types.UrgencyModerate
}

// Guidance is the fixed advice shown for an urgency tier.
type Guidance struct {
	Title     string `json:"title"`
	Message   string `json:"message"`
	Action    string `json:"action"`
	ActionURL string `json:"actionUrl,omitempty"`
}

var guidance = map[types.Urgency]Guidance{
	types.UrgencyHigh: {
		Title:     "Urgent Medical Attention Needed",
		Message:   "Your symptoms suggest a condition that requires immediate medical evaluation. Please seek emergency care now.",
		Action:    "Find Emergency Care",
		ActionURL: "tel:911",
	},
	types.UrgencyModerate: {
		Title:   "Medical Evaluation Recommended",
		Message: "Your symptoms should be evaluated by a healthcare provider soon, ideally within 24-48 hours.",
		Action:  "Find Urgent Care",
	},
	types.UrgencyLow: {
		Title:   "Continue Assessment",
		Message: "No immediate red flags detected. Continue with your assessment.",
		Action:  "Continue",
	},
}

// GuidanceFor returns the guidance for u. Unknown values get the LOW guidance.
func GuidanceFor(u types.Urgency) Guidance {
	if g, ok := guidance[u]; ok {
		return g
	}
	return guidance[types.UrgencyLow]
}

// FromSummary derives an urgency from the eight payload booleans when no detailed
// symptom record is available. Bowel/bladder dysfunction and saddle anesthesia map to
// HIGH; any other flag maps to MODERATE.
func FromSummary(s types.RedFlagSummary) types.Urgency {
	switch {
	case s.BowelBladderDysfunction || s.SaddleAnesthesia:
		return types.UrgencyHigh
	case s.Any():
		return types.UrgencyModerate
	default:
		return types.UrgencyLow
	}
}
