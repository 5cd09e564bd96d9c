// Package types provides type definitions for structured data used throughout the pain assessment system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"slices"
	"strings"
	"time"
)

// WizardStep identifies one page of the assessment wizard.
type WizardStep string

// Wizard steps in presentation order. Review is the terminal destination.
const (
	StepWelcome     WizardStep = "welcome"
	StepPainMapping WizardStep = "pain-mapping"
	StepTiming      WizardStep = "timing"
	StepTriggers    WizardStep = "triggers"
	StepSymptoms    WizardStep = "symptoms"
	StepRedFlags    WizardStep = "red-flags"
	StepGoals       WizardStep = "goals"
	StepReview      WizardStep = "review"
)

var stepOrder = []WizardStep{
	StepWelcome,
	StepPainMapping,
	StepTiming,
	StepTriggers,
	StepSymptoms,
	StepRedFlags,
	StepGoals,
	StepReview,
}

// AllSteps returns the wizard steps in order. The returned slice is a copy.
func AllSteps() []WizardStep {
	return slices.Clone(stepOrder)
}

// ParseStep converts a stored or user supplied value into a WizardStep.
func ParseStep(s string) (WizardStep, bool) {
	step := WizardStep(s)
	return step, step.Valid()
}

// Valid reports whether s is one of the known wizard steps.
func (s WizardStep) Valid() bool {
	return slices.Contains(stepOrder, s)
}

// Index returns the ordinal of the step, or -1 if the step is unknown.
func (s WizardStep) Index() int {
	return slices.Index(stepOrder, s)
}

func (s WizardStep) String() string {
	return string(s)
}

// Title returns the heading shown for the step.
func (s WizardStep) Title() string {
	switch s {
	case StepWelcome:
		return "Welcome"
	case StepPainMapping:
		return "Pain Mapping"
	case StepTiming:
		return "Timing"
	case StepTriggers:
		return "Triggers & Relief"
	case StepSymptoms:
		return "Associated Symptoms"
	case StepRedFlags:
		return "Red Flags"
	case StepGoals:
		return "Goals"
	case StepReview:
		return "Review"
	default:
		return string(s)
	}
}

// User holds the patient's contact details.
type User struct {
	Email       string `json:"email" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Phone       string `json:"phone,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
}

// Coords is a position on the body map, normalized to the rendered image.
type Coords struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PainPoint is one marked location on the body map.
type PainPoint struct {
	ID                  string        `json:"id"`
	RegionID            int           `json:"regionId"`
	RegionName          string        `json:"regionName,omitempty"`
	Side                string        `json:"side,omitempty"`
	View                string        `json:"view,omitempty"`
	Coords              *Coords       `json:"coords,omitempty"`
	IntensityCurrent    int           `json:"intensityCurrent" validate:"min=0,max=10"`
	IntensityAverage24h *int          `json:"intensityAverage24h,omitempty" validate:"omitempty,min=0,max=10"`
	IntensityWorst24h   *int          `json:"intensityWorst24h,omitempty" validate:"omitempty,min=0,max=10"`
	Qualities           []PainQuality `json:"qualities,omitempty" validate:"min=1,dive,pain_quality"`
	RadiatesTo          string        `json:"radiatesTo,omitempty"`
	CreatedAt           time.Time     `json:"createdAt"`
	UpdatedAt           time.Time     `json:"updatedAt"`
}

// Clone returns a deep copy of the point.
func (p PainPoint) Clone() PainPoint {
	out := p
	if p.Coords != nil {
		c := *p.Coords
		out.Coords = &c
	}
	if p.IntensityAverage24h != nil {
		v := *p.IntensityAverage24h
		out.IntensityAverage24h = &v
	}
	if p.IntensityWorst24h != nil {
		v := *p.IntensityWorst24h
		out.IntensityWorst24h = &v
	}
	out.Qualities = slices.Clone(p.Qualities)
	return out
}

// Timing describes onset, duration and pattern of the pain.
type Timing struct {
	Onset              string   `json:"onset,omitempty"`
	DurationValue      int      `json:"durationValue,omitempty"`
	DurationUnit       string   `json:"durationUnit,omitempty"`
	Pattern            string   `json:"pattern,omitempty"`
	Course             string   `json:"course,omitempty"`
	TimeOfDay          []string `json:"timeOfDay,omitempty"`
	BaselineWithFlares bool     `json:"baselineWithFlares,omitempty"`
	FlareLengthValue   int      `json:"flareLengthValue,omitempty"`
	FlareLengthUnit    string   `json:"flareLengthUnit,omitempty"`
}

// WakesFromSleep is the timeOfDay value recorded for night pain.
const WakesFromSleep = "wakes_from_sleep"

// Clone returns a deep copy of the timing record; nil stays nil.
func (t *Timing) Clone() *Timing {
	if t == nil {
		return nil
	}
	out := *t
	out.TimeOfDay = slices.Clone(t.TimeOfDay)
	return &out
}

// Aggravators are activities or conditions that make the pain worse.
type Aggravators struct {
	Sitting      bool   `json:"sitting,omitempty"`
	Standing     bool   `json:"standing,omitempty"`
	Walking      bool   `json:"walking,omitempty"`
	Bending      bool   `json:"bending,omitempty"`
	Lifting      bool   `json:"lifting,omitempty"`
	Twisting     bool   `json:"twisting,omitempty"`
	Coughing     bool   `json:"coughing,omitempty"`
	MorningWorse bool   `json:"morningWorse,omitempty"`
	EveningWorse bool   `json:"eveningWorse,omitempty"`
	Weather      bool   `json:"weather,omitempty"`
	Stress       bool   `json:"stress,omitempty"`
	Other        string `json:"other,omitempty"`
}

// Relievers are things that ease the pain.
type Relievers struct {
	Rest       bool   `json:"rest,omitempty"`
	Ice        bool   `json:"ice,omitempty"`
	Heat       bool   `json:"heat,omitempty"`
	Stretching bool   `json:"stretching,omitempty"`
	Movement   bool   `json:"movement,omitempty"`
	Medication bool   `json:"medication,omitempty"`
	Position   bool   `json:"position,omitempty"`
	Other      string `json:"other,omitempty"`
}

// AssociatedSymptoms records yes/no answers to the symptom checklist.
type AssociatedSymptoms struct {
	Weakness            bool `json:"weakness,omitempty"`
	Numbness            bool `json:"numbness,omitempty"`
	Tingling            bool `json:"tingling,omitempty"`
	BalanceIssues       bool `json:"balanceIssues,omitempty"`
	MorningStiffness30m bool `json:"morningStiffness30m,omitempty"`
	FeverChills         bool `json:"feverChills,omitempty"`
	NightSweats         bool `json:"nightSweats,omitempty"`
	Fatigue             bool `json:"fatigue,omitempty"`
	Swelling            bool `json:"swelling,omitempty"`
	RednessWarmth       bool `json:"rednessWarmth,omitempty"`
	Bruising            bool `json:"bruising,omitempty"`
	LockingCatching     bool `json:"lockingCatching,omitempty"`
	Instability         bool `json:"instability,omitempty"`
	Headache            bool `json:"headache,omitempty"`
	LightSoundSensitive bool `json:"lightSoundSensitive,omitempty"`
	VisionChanges       bool `json:"visionChanges,omitempty"`
	JawPain             bool `json:"jawPain,omitempty"`
	ChestPain           bool `json:"chestPain,omitempty"`
	ShortnessBreath     bool `json:"shortnessBreath,omitempty"`
	NauseaVomiting      bool `json:"nauseaVomiting,omitempty"`
	AbdominalPain       bool `json:"abdominalPain,omitempty"`
	BowelChange         bool `json:"bowelChange,omitempty"`
	BladderChange       bool `json:"bladderChange,omitempty"`
	MenstrualLink       bool `json:"menstrualLink,omitempty"`
	SaddleNumbness      bool `json:"saddleNumbness,omitempty"`
	Incontinence        bool `json:"incontinence,omitempty"`
}

// FunctionalImpact captures how the pain limits daily activity.
type FunctionalImpact struct {
	Limits       []string `json:"limits,omitempty"`
	SitMinutes   *int     `json:"sitMinutes,omitempty"`
	StandMinutes *int     `json:"standMinutes,omitempty"`
	WalkMinutes  *int     `json:"walkMinutes,omitempty"`
	MissedDays7  *int     `json:"missedDays7,omitempty"`
	MissedDays30 *int     `json:"missedDays30,omitempty"`
}

// Clone returns a deep copy.
func (f FunctionalImpact) Clone() FunctionalImpact {
	out := f
	out.Limits = slices.Clone(f.Limits)
	out.SitMinutes = cloneInt(f.SitMinutes)
	out.StandMinutes = cloneInt(f.StandMinutes)
	out.WalkMinutes = cloneInt(f.WalkMinutes)
	out.MissedDays7 = cloneInt(f.MissedDays7)
	out.MissedDays30 = cloneInt(f.MissedDays30)
	return out
}

// TriedTreatment is a treatment the patient has already attempted.
type TriedTreatment struct {
	Name        string `json:"name"`
	Helpful     *bool  `json:"helpful,omitempty"`
	SideEffects string `json:"sideEffects,omitempty"`
}

// Medication is a current medication entry.
type Medication struct {
	Name        string `json:"name"`
	Dose        string `json:"dose,omitempty"`
	Frequency   string `json:"frequency,omitempty"`
	Helpful     *bool  `json:"helpful,omitempty"`
	SideEffects string `json:"sideEffects,omitempty"`
}

// HistoryContext is the medical history relevant to the complaint.
type HistoryContext struct {
	RecentInjury        bool             `json:"recentInjury,omitempty"`
	InjuryDate          string           `json:"injuryDate,omitempty"`
	Mechanism           string           `json:"mechanism,omitempty"`
	RepetitiveStrain    bool             `json:"repetitiveStrain,omitempty"`
	NewActivity         bool             `json:"newActivity,omitempty"`
	PregnancyPostpartum bool             `json:"pregnancyPostpartum,omitempty"`
	Recurrent           bool             `json:"recurrent,omitempty"`
	PriorDiagnosis      string           `json:"priorDiagnosis,omitempty"`
	TriedTreatments     []TriedTreatment `json:"triedTreatments,omitempty"`
	CurrentMeds         []Medication     `json:"currentMeds,omitempty"`
	Comorbidities       []string         `json:"comorbidities,omitempty"`
	SleepQuality        *int             `json:"sleepQuality,omitempty"`
	PHQ2                *int             `json:"phq2,omitempty"`
	GAD2                *int             `json:"gad2,omitempty"`
	StressHigh          bool             `json:"stressHigh,omitempty"`
}

// HasComorbidity reports whether name is listed, ignoring case and surrounding space.
func (h HistoryContext) HasComorbidity(name string) bool {
	for _, c := range h.Comorbidities {
		if strings.EqualFold(strings.TrimSpace(c), name) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (h HistoryContext) Clone() HistoryContext {
	out := h
	out.TriedTreatments = slices.Clone(h.TriedTreatments)
	for i := range out.TriedTreatments {
		out.TriedTreatments[i].Helpful = cloneBool(out.TriedTreatments[i].Helpful)
	}
	out.CurrentMeds = slices.Clone(h.CurrentMeds)
	for i := range out.CurrentMeds {
		out.CurrentMeds[i].Helpful = cloneBool(out.CurrentMeds[i].Helpful)
	}
	out.Comorbidities = slices.Clone(h.Comorbidities)
	out.SleepQuality = cloneInt(h.SleepQuality)
	out.PHQ2 = cloneInt(h.PHQ2)
	out.GAD2 = cloneInt(h.GAD2)
	return out
}

// Goals are what the patient wants from care.
type Goals struct {
	Goal2to4Weeks       string   `json:"goal2to4Weeks,omitempty"`
	RecoveryTimeline    string   `json:"recoveryTimeline,omitempty"`
	PreferredTreatments []string `json:"preferredTreatments,omitempty"`
	ExerciseReady       *bool    `json:"exerciseReady,omitempty"`
	Notes               string   `json:"notes,omitempty"`
}

// Clone returns a deep copy.
func (g Goals) Clone() Goals {
	out := g
	out.PreferredTreatments = slices.Clone(g.PreferredTreatments)
	out.ExerciseReady = cloneBool(g.ExerciseReady)
	return out
}

// RedFlagResult is the outcome of the red-flag classifier.
type RedFlagResult struct {
	Any         bool       `json:"any"`
	Reasons     []string   `json:"reasons"`
	EvaluatedAt *time.Time `json:"evaluatedAt,omitempty"`
}

// Clone returns a deep copy.
func (r RedFlagResult) Clone() RedFlagResult {
	out := r
	out.Reasons = slices.Clone(r.Reasons)
	if r.EvaluatedAt != nil {
		t := *r.EvaluatedAt
		out.EvaluatedAt = &t
	}
	return out
}

// AssessmentData is the in-progress assessment record owned by a draft.
type AssessmentData struct {
	DraftID           string             `json:"draftId,omitempty"`
	User              User               `json:"user"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
	Points            []PainPoint        `json:"points,omitempty"`
	Timing            *Timing            `json:"timing,omitempty"`
	Aggravators       Aggravators        `json:"aggravators"`
	Relievers         Relievers          `json:"relievers"`
	Associated        AssociatedSymptoms `json:"associated"`
	Functional        FunctionalImpact   `json:"functional"`
	History           HistoryContext     `json:"history"`
	Goals             Goals              `json:"goals"`
	RedFlags          RedFlagResult      `json:"redFlags"`
	CompletionPercent int                `json:"completionPercent,omitempty"`
	ResumeToken       string             `json:"resumeToken,omitempty"`
	Locale            string             `json:"locale,omitempty"`
	PainMapImageFront string             `json:"painMapImageFront,omitempty"`
	PainMapImageBack  string             `json:"painMapImageBack,omitempty"`
}

// Clone returns a deep copy so callers can hold it without aliasing the owner's state.
func (d AssessmentData) Clone() AssessmentData {
	out := d
	if d.Points != nil {
		out.Points = make([]PainPoint, len(d.Points))
		for i, p := range d.Points {
			out.Points[i] = p.Clone()
		}
	}
	out.Timing = d.Timing.Clone()
	out.Functional = d.Functional.Clone()
	out.History = d.History.Clone()
	out.Goals = d.Goals.Clone()
	out.RedFlags = d.RedFlags.Clone()
	return out
}

// HasInflammatoryBackPattern reports morning stiffness over 30 minutes together with pain
// mapped to the back or lumbar region.
func HasInflammatoryBackPattern(points []PainPoint, associated AssociatedSymptoms) bool {
	if !associated.MorningStiffness30m {
		return false
	}
	for _, p := range points {
		region := strings.ToLower(p.RegionName)
		if strings.Contains(region, "back") || strings.Contains(region, "lumbar") {
			return true
		}
	}
	return false
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneBool(v *bool) *bool {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
