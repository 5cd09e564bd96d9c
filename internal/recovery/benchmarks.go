// Package recovery holds typical recovery curves for common musculoskeletal presentations
// and matches an assessment to one of them.
package recovery

import "slices"

// Benchmark keys.
const (
	AcuteLowBackPain    = "acute_low_back_pain"
	LumbarRadicularPain = "lumbar_radicular_pain"
	KneeOAExercise      = "knee_oa_exercise"
	KneeOAInjection     = "knee_oa_injection"
	RotatorCuffExercise = "rotator_cuff_exercise"
)

const defaultTimelineWeeks = 8

// Milestone is the expected pain reduction, in percent of the starting level, at a week.
type Milestone struct {
	Week          float64 `json:"week"`
	PainReduction float64 `json:"painReduction"`
}

// Benchmark is one recovery trajectory. Curve is ordered by week and starts at week 0.
type Benchmark struct {
	Key         string      `json:"key"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Curve       []Milestone `json:"curve"`
	MinWeeks    int         `json:"minWeeks"`
	MaxWeeks    int         `json:"maxWeeks"`
	References  string      `json:"references"`
}

var benchmarks = map[string]Benchmark{
	AcuteLowBackPain: {
		Key:         AcuteLowBackPain,
		Name:        "Acute Non-Specific Low Back Pain",
		Description: "Typical improvement is front-loaded; ~80% recover within 6-12 weeks under guideline-concordant conservative care",
		Curve:       curve(0, 0, 2, 30, 4, 50, 6, 65, 8, 75, 12, 80, 16, 85),
		MinWeeks:    6,
		MaxWeeks:    12,
		References:  "Primary care guidelines",
	},
	LumbarRadicularPain: {
		Key:         LumbarRadicularPain,
		Name:        "Lumbar Radicular Pain (Disc Herniation)",
		Description: "Majority improve within 4-6 weeks; natural history is favourable without intervention for many patients",
		Curve:       curve(0, 0, 2, 25, 4, 50, 6, 70, 8, 80, 12, 85),
		MinWeeks:    4,
		MaxWeeks:    6,
		References:  "Conservative care evidence",
	},
	KneeOAExercise: {
		Key:         KneeOAExercise,
		Name:        "Knee Osteoarthritis - Exercise/Physical Therapy",
		Description: "Clinically meaningful pain reductions typically occur over 6-18 weeks of structured exercise therapy",
		Curve:       curve(0, 0, 3, 10, 6, 25, 9, 40, 12, 55, 18, 70, 24, 65, 52, 50),
		MinWeeks:    6,
		MaxWeeks:    18,
		References:  "Structured exercise therapy studies",
	},
	KneeOAInjection: {
		Key:         KneeOAInjection,
		Name:        "Knee Osteoarthritis - Corticosteroid Injection",
		Description: "Predominantly short-term relief; high-quality reviews characterise benefit as up to ~4-6 weeks (short-term only)",
		Curve:       curve(0, 0, 1, 50, 2, 60, 4, 50, 6, 30, 8, 15, 12, 5),
		MinWeeks:    4,
		MaxWeeks:    6,
		References:  "Short-term relief only",
	},
	RotatorCuffExercise: {
		Key:         RotatorCuffExercise,
		Name:        "Rotator Cuff-Related Shoulder Pain",
		Description: "Guideline windows for measurable improvement commonly use ~12 weeks as primary checkpoint, with further gains over 3-12 months",
		Curve:       curve(0, 0, 4, 15, 8, 30, 12, 50, 16, 60, 24, 70, 36, 75, 52, 80),
		MinWeeks:    12,
		MaxWeeks:    52,
		References:  "2025 AAOS CPG",
	},
}

// curve pairs up week, reduction values.
func curve(pairs ...float64) []Milestone {
	out := make([]Milestone, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, Milestone{Week: pairs[i], PainReduction: pairs[i+1]})
	}
	return out
}

// Lookup returns a copy of the benchmark stored under key.
func Lookup(key string) (Benchmark, bool) {
	b, ok := benchmarks[key]
	if !ok {
		return Benchmark{}, false
	}
	b.Curve = slices.Clone(b.Curve)
	return b, true
}

// Keys lists the benchmark keys in a stable order.
func Keys() []string {
	keys := make([]string, 0, len(benchmarks))
	for k := range benchmarks {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// ExpectedReduction interpolates the curve linearly at week. Weeks before the first
// milestone or after the last one take that milestone's value.
func (b Benchmark) ExpectedReduction(week float64) float64 {
	if len(b.Curve) == 0 {
		return 0
	}
	if week <= b.Curve[0].Week {
		return b.Curve[0].PainReduction
	}
	for i := 1; i < len(b.Curve); i++ {
		lo, hi := b.Curve[i-1], b.Curve[i]
		if week <= hi.Week {
			frac := (week - lo.Week) / (hi.Week - lo.Week)
			return lo.PainReduction + frac*(hi.PainReduction-lo.PainReduction)
		}
	}
	return b.Curve[len(b.Curve)-1].PainReduction
}

// timelineWeeks maps the goal timeline choices to weeks.
var timelineWeeks = map[string]float64{
	"1-2 weeks":        1.5,
	"3-4 weeks":        3.5,
	"1-2 months":       6,
	"3-4 months":       14,
	"4-6 months":       20,
	"6-12 months":      36,
	"More than 1 year": 52,
}

// TimelineWeeks converts a goal timeline choice to weeks. Unknown or empty choices count
// as eight weeks.
func TimelineWeeks(timeline string) float64 {
	if w, ok := timelineWeeks[timeline]; ok {
		return w
	}
	return defaultTimelineWeeks
}

// Target is the pain level that counts as recovered for a patient starting at currentPain.
// Recovery means functional improvement, not a pain-free score.
func Target(currentPain int) float64 {
	switch {
	case currentPain >= 7:
		return 2
	case currentPain >= 4:
		return 1.5
	default:
		return 0.5
	}
}
