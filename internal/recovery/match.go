package recovery

import (
	"strings"

	"github.com/jonathan/pain-assessment/internal/types"
)

// Inputs are the assessment details a benchmark is chosen from.
type Inputs struct {
	Areas       []string
	Treatments  []string
	Symptoms    []string
	CurrentPain int
	Timeline    string
}

// FromData collects inputs from a full assessment draft.
func FromData(d types.AssessmentData) Inputs {
	var in Inputs
	for _, p := range d.Points {
		in.Areas = append(in.Areas, p.RegionName)
		in.CurrentPain = max(in.CurrentPain, p.IntensityCurrent)
		if strings.TrimSpace(p.RadiatesTo) != "" {
			in.Symptoms = append(in.Symptoms, "radiating")
		}
	}
	for _, tx := range d.History.TriedTreatments {
		in.Treatments = append(in.Treatments, tx.Name)
	}
	if d.Associated.Numbness {
		in.Symptoms = append(in.Symptoms, "numbness")
	}
	if d.Associated.Tingling {
		in.Symptoms = append(in.Symptoms, "tingling")
	}
	in.Timeline = d.Goals.RecoveryTimeline
	return in
}

// FromAreas collects inputs from payload pain areas when no detail record was stored.
func FromAreas(areas []types.PainArea) Inputs {
	var in Inputs
	for _, a := range areas {
		in.Areas = append(in.Areas, a.Region)
		in.CurrentPain = max(in.CurrentPain, a.Intensity)
		in.Symptoms = append(in.Symptoms, a.Notes)
	}
	return in
}

func lower(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		out = append(out, strings.ToLower(s))
	}
	return out
}

func anyContains(items []string, subs ...string) bool {
	for _, it := range items {
		for _, sub := range subs {
			if strings.Contains(it, sub) {
				return true
			}
		}
	}
	return false
}

// ForPatient picks the benchmark for the given areas, treatments and symptoms. Matching is
// by case-insensitive substring, and acute low back pain is the fallback.
func ForPatient(areas, treatments, symptoms []string) Benchmark {
	areas, treatments, symptoms = lower(areas), lower(treatments), lower(symptoms)

	back := anyContains(areas, "back", "spine", "lumbar")
	leg := anyContains(symptoms, "numbness", "tingling", "radiating", "shooting down leg")
	knee := anyContains(areas, "knee")

	key := AcuteLowBackPain
	switch {
	case back && leg:
		key = LumbarRadicularPain
	case knee && anyContains(treatments, "injection", "cortisone", "steroid"):
		key = KneeOAInjection
	case knee && (len(treatments) == 0 || anyContains(treatments, "physical therapy", "exercise", "pt")):
		key = KneeOAExercise
	case anyContains(areas, "shoulder"):
		key = RotatorCuffExercise
	}
	b, _ := Lookup(key)
	return b
}

// Projection is the expected course for one patient.
type Projection struct {
	Benchmark    Benchmark `json:"benchmark"`
	CurrentPain  int       `json:"currentPain"`
	TargetPain   float64   `json:"targetPain"`
	GoalWeeks    float64   `json:"goalWeeks"`
	ExpectedPain float64   `json:"expectedPain"`
}

// OnTrack reports whether the typical course reaches the target by the goal timeline.
func (p Projection) OnTrack() bool {
	return p.ExpectedPain <= p.TargetPain
}

// Project matches in to a benchmark and estimates pain at the goal timeline.
func Project(in Inputs) Projection {
	b := ForPatient(in.Areas, in.Treatments, in.Symptoms)
	weeks := TimelineWeeks(in.Timeline)
	expected := float64(in.CurrentPain) * (1 - b.ExpectedReduction(weeks)/100)
	return Projection{
		Benchmark:    b,
		CurrentPain:  in.CurrentPain,
		TargetPain:   Target(in.CurrentPain),
		GoalWeeks:    weeks,
		ExpectedPain: expected,
	}
}
