// Package redflags classifies symptom and history answers into red-flag findings and an
// urgency tier.
package redflags

import (
	"slices"
	"time"

	"github.com/jonathan/pain-assessment/internal/types"
)

// Flag keys reported in RedFlagResult.Reasons.
const (
	NewWeakness                = "new_weakness"
	TroubleWalking             = "trouble_walking"
	BowelBladderChange         = "bowel_bladder_change"
	SaddleAnesthesia           = "saddle_anesthesia"
	ChestPain                  = "chest_pain"
	ShortnessBreath            = "shortness_breath"
	FeverWithSeverePain        = "fever_with_severe_pain"
	HotSwollenJoint            = "hot_swollen_joint"
	CancerHistory              = "cancer_history"
	MajorTrauma                = "major_trauma"
	WorstHeadache              = "worst_headache"
	NeuroDeficit               = "neuro_deficit"
	HeadacheFeverNeckStiffness = "headache_fever_neck_stiffness"
)

type rule struct {
	key  string
	test func(a types.AssociatedSymptoms, h types.HistoryContext) bool
}

// rules are evaluated in order; each contributes at most one key.
var rules = []rule{
	{NewWeakness, func(a types.AssociatedSymptoms, _ types.HistoryContext) bool { return a.Weakness }},
	{TroubleWalking, func(a types.AssociatedSymptoms, _ types.HistoryContext) bool { return a.BalanceIssues }},
	{BowelBladderChange, func(a types.AssociatedSymptoms, _ types.HistoryContext) bool {
		return a.BowelChange || a.BladderChange || a.Incontinence
	}},
	{SaddleAnesthesia, func(a types.AssociatedSymptoms, _ types.HistoryContext) bool { return a.SaddleNumbness }},
	{ChestPain, func(a types.AssociatedSymptoms, _ types.HistoryContext) bool { return a.ChestPain }},
	{ShortnessBreath, func(a types.AssociatedSymptoms, _ types.HistoryContext) bool { return a.ShortnessBreath }},
	{FeverWithSeverePain, func(a types.AssociatedSymptoms, _ types.HistoryContext) bool { return a.FeverChills && a.Swelling }},
	{HotSwollenJoint, func(a types.AssociatedSymptoms, _ types.HistoryContext) bool { return a.RednessWarmth && a.Swelling }},
	{CancerHistory, func(_ types.AssociatedSymptoms, h types.HistoryContext) bool { return h.HasComorbidity("cancer") }},
	{MajorTrauma, func(_ types.AssociatedSymptoms, h types.HistoryContext) bool { return h.RecentInjury }},
	{WorstHeadache, func(a types.AssociatedSymptoms, _ types.HistoryContext) bool { return a.Headache && a.LightSoundSensitive }},
	{NeuroDeficit, func(a types.AssociatedSymptoms, _ types.HistoryContext) bool { return a.VisionChanges || a.Weakness }},
	{HeadacheFeverNeckStiffness, func(a types.AssociatedSymptoms, _ types.HistoryContext) bool { return a.Headache && a.FeverChills }},
}

// Evaluate runs every rule against the answers and stamps the result with the current time.
func Evaluate(associated types.AssociatedSymptoms, history types.HistoryContext) types.RedFlagResult {
	return EvaluateAt(associated, history, time.Now().UTC())
}

// EvaluateAt is Evaluate with an explicit evaluation time.
func EvaluateAt(associated types.AssociatedSymptoms, history types.HistoryContext, at time.Time) types.RedFlagResult {
	reasons := make([]string, 0, len(rules))
	for _, r := range rules {
		if r.test(associated, history) {
			reasons = append(reasons, r.key)
		}
	}
	return types.RedFlagResult{
		Any:         len(reasons) > 0,
		Reasons:     reasons,
		EvaluatedAt: &at,
	}
}

// Keys returns every flag key in evaluation order.
func Keys() []string {
	keys := make([]string, len(rules))
	for i, r := range rules {
		keys[i] = r.key
	}
	return keys
}

var labels = map[string]string{
	NewWeakness:                "New or worsening weakness",
	TroubleWalking:             "Trouble walking or balance problems",
	BowelBladderChange:         "Bowel or bladder changes",
	SaddleAnesthesia:           "Numbness in the saddle area",
	ChestPain:                  "Chest pain",
	ShortnessBreath:            "Shortness of breath",
	FeverWithSeverePain:        "Fever with swelling",
	HotSwollenJoint:            "Hot, swollen joint",
	CancerHistory:              "History of cancer",
	MajorTrauma:                "Recent injury or trauma",
	WorstHeadache:              "Severe headache with light or sound sensitivity",
	NeuroDeficit:               "Vision changes or weakness",
	HeadacheFeverNeckStiffness: "Headache with fever",
}

// Label returns the display text for a flag key, or the key itself if unknown.
func Label(key string) string {
	if l, ok := labels[key]; ok {
		return l
	}
	return key
}

// IsHighUrgency reports whether key belongs to the high-urgency set.
func IsHighUrgency(key string) bool {
	return slices.Contains(highUrgency, key)
}
