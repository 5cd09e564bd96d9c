package prompts

import (
	"fmt"
	"strings"

	"github.com/jonathan/pain-assessment/internal/types"
)

// sanitize keeps patient text from breaking out of the prompt's formatting.
func sanitize(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "`", "'"))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func spaced(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}

func bullets(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
}

func helpfulNote(h *bool) string {
	if h == nil {
		return ""
	}
	if *h {
		return " - Helpful"
	}
	return " - Not helpful"
}

// BuildAssessmentPrompt renders the payload as the sectioned clinical prompt followed by
// the summary instructions.
func BuildAssessmentPrompt(p types.SubmissionPayload) (string, error) {
	preamble, err := Text(KeyPreamble)
	if err != nil {
		return "", err
	}
	instructions, err := Text(KeyInstructions)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n\nPATIENT INFORMATION:\n")
	fmt.Fprintf(&b, "- Name: %s\n", orDefault(sanitize(p.FullName), "Not provided"))
	fmt.Fprintf(&b, "- Email: %s\n", orDefault(sanitize(p.Email), "Not provided"))
	if dob := sanitize(p.DateOfBirth); dob != "" {
		fmt.Fprintf(&b, "- Date of Birth: %s\n", dob)
	}
	if phone := sanitize(p.Phone); phone != "" {
		fmt.Fprintf(&b, "- Phone: %s\n", phone)
	}

	b.WriteString("\nPAIN MAPPING DATA:\n")
	if len(p.PainAreas) == 0 {
		b.WriteString("No pain areas marked\n")
	}
	for _, area := range p.PainAreas {
		fmt.Fprintf(&b, "- Region: %s, Intensity: %d/10", sanitize(area.Region), area.Intensity)
		if len(area.Qualities) > 0 {
			qs := make([]string, len(area.Qualities))
			for i, q := range area.Qualities {
				qs[i] = spaced(string(q))
			}
			fmt.Fprintf(&b, ", Quality: %s", strings.Join(qs, ", "))
		}
		if notes := sanitize(area.Notes); notes != "" {
			fmt.Fprintf(&b, ", Notes: %s", notes)
		}
		b.WriteString("\n")
	}

	if d := p.Assessment; d != nil {
		writeDetail(&b, d)
	}

	writeRedFlags(&b, p.RedFlags)

	b.WriteString("\nTREATMENT GOALS:\n")
	b.WriteString(orDefault(sanitize(p.TreatmentGoals), "Not specified by patient"))
	b.WriteString("\n")
	if d := p.Assessment; d != nil {
		if len(d.Goals.PreferredTreatments) > 0 {
			fmt.Fprintf(&b, "- Preferred treatments: %s\n", sanitize(strings.Join(d.Goals.PreferredTreatments, ", ")))
		}
		if d.Goals.ExerciseReady != nil {
			fmt.Fprintf(&b, "- Ready for exercise: %s\n", yesNo(*d.Goals.ExerciseReady))
		}
	}

	b.WriteString("\n\n")
	b.WriteString(instructions)
	b.WriteString("\n")
	return b.String(), nil
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func writeDetail(b *strings.Builder, d *types.AssessmentData) {
	if t := d.Timing; t != nil {
		b.WriteString("\nPAIN TIMING & PATTERN:\n")
		if t.Onset != "" {
			fmt.Fprintf(b, "- Onset: %s\n", spaced(sanitize(t.Onset)))
		}
		if t.DurationValue > 0 {
			fmt.Fprintf(b, "- Duration: %d %s\n", t.DurationValue, orDefault(sanitize(t.DurationUnit), "months"))
		}
		if t.Pattern != "" {
			fmt.Fprintf(b, "- Pattern: %s\n", sanitize(t.Pattern))
		}
		if t.Course != "" {
			fmt.Fprintf(b, "- Course: %s\n", sanitize(t.Course))
		}
		if len(t.TimeOfDay) > 0 {
			tods := make([]string, len(t.TimeOfDay))
			for i, tod := range t.TimeOfDay {
				tods[i] = spaced(sanitize(tod))
			}
			fmt.Fprintf(b, "- Time of Day: %s\n", strings.Join(tods, ", "))
		}
		if t.BaselineWithFlares {
			b.WriteString("- Pattern: Baseline pain with flare-ups")
			if t.FlareLengthValue > 0 {
				fmt.Fprintf(b, " (flares last %d %s)", t.FlareLengthValue, orDefault(sanitize(t.FlareLengthUnit), "hours"))
			}
			b.WriteString("\n")
		}
	}

	bullets(b, "AGGRAVATING FACTORS", aggravatorList(d.Aggravators))
	bullets(b, "RELIEVING FACTORS", relieverList(d.Relievers))
	bullets(b, "ASSOCIATED SYMPTOMS", symptomList(d.Associated))

	f := d.Functional
	if len(f.Limits) > 0 || f.SitMinutes != nil || f.StandMinutes != nil || f.WalkMinutes != nil ||
		f.MissedDays7 != nil || f.MissedDays30 != nil {
		b.WriteString("\nFUNCTIONAL IMPACT:\n")
		if len(f.Limits) > 0 {
			fmt.Fprintf(b, "- Limited activities: %s\n", sanitize(strings.Join(f.Limits, ", ")))
		}
		minutes := []struct {
			label string
			v     *int
		}{
			{"- Can sit: %d minutes\n", f.SitMinutes},
			{"- Can stand: %d minutes\n", f.StandMinutes},
			{"- Can walk: %d minutes\n", f.WalkMinutes},
			{"- Missed work/activities (last 7 days): %d days\n", f.MissedDays7},
			{"- Missed work/activities (last 30 days): %d days\n", f.MissedDays30},
		}
		for _, m := range minutes {
			if m.v != nil {
				fmt.Fprintf(b, m.label, *m.v)
			}
		}
	}

	writeHistory(b, d.History)
}

func writeHistory(b *strings.Builder, h types.HistoryContext) {
	var lines strings.Builder
	if h.RecentInjury {
		lines.WriteString("- Recent injury: Yes")
		if h.InjuryDate != "" {
			fmt.Fprintf(&lines, " (%s)", sanitize(h.InjuryDate))
		}
		if h.Mechanism != "" {
			fmt.Fprintf(&lines, " - %s", sanitize(h.Mechanism))
		}
		lines.WriteString("\n")
	}
	if h.RepetitiveStrain {
		lines.WriteString("- Repetitive strain/overuse: Yes\n")
	}
	if h.NewActivity {
		lines.WriteString("- New activity/change in routine: Yes\n")
	}
	if h.PregnancyPostpartum {
		lines.WriteString("- Pregnancy/postpartum: Yes\n")
	}
	if h.Recurrent {
		lines.WriteString("- Recurrent pain: Yes")
		if h.PriorDiagnosis != "" {
			fmt.Fprintf(&lines, " (prior diagnosis: %s)", sanitize(h.PriorDiagnosis))
		}
		lines.WriteString("\n")
	}
	if len(h.Comorbidities) > 0 {
		fmt.Fprintf(&lines, "- Medical conditions: %s\n", sanitize(strings.Join(h.Comorbidities, ", ")))
	}
	if len(h.CurrentMeds) > 0 {
		lines.WriteString("- Current medications:\n")
		for _, m := range h.CurrentMeds {
			fmt.Fprintf(&lines, "  * %s", sanitize(m.Name))
			for _, extra := range []string{m.Dose, m.Frequency} {
				if extra != "" {
					fmt.Fprintf(&lines, " %s", sanitize(extra))
				}
			}
			lines.WriteString(helpfulNote(m.Helpful))
			if m.SideEffects != "" {
				fmt.Fprintf(&lines, " - Side effects: %s", sanitize(m.SideEffects))
			}
			lines.WriteString("\n")
		}
	}
	if len(h.TriedTreatments) > 0 {
		lines.WriteString("- Prior treatments:\n")
		for _, tx := range h.TriedTreatments {
			fmt.Fprintf(&lines, "  * %s%s", sanitize(tx.Name), helpfulNote(tx.Helpful))
			if tx.SideEffects != "" {
				fmt.Fprintf(&lines, " - Side effects: %s", sanitize(tx.SideEffects))
			}
			lines.WriteString("\n")
		}
	}
	if h.SleepQuality != nil {
		fmt.Fprintf(&lines, "- Sleep quality: %d\n", *h.SleepQuality)
	}
	if h.PHQ2 != nil {
		fmt.Fprintf(&lines, "- PHQ-2 (depression screen): %d\n", *h.PHQ2)
	}
	if h.GAD2 != nil {
		fmt.Fprintf(&lines, "- GAD-2 (anxiety screen): %d\n", *h.GAD2)
	}
	if h.StressHigh {
		lines.WriteString("- High stress levels: Yes\n")
	}
	if lines.Len() == 0 {
		return
	}
	b.WriteString("\nMEDICAL HISTORY:\n")
	b.WriteString(lines.String())
}

func writeRedFlags(b *strings.Builder, rf types.RedFlagSummary) {
	b.WriteString("\nRED FLAG SYMPTOMS:\n")
	var present []string
	for _, l := range rf.Labeled() {
		if l.Present {
			present = append(present, l.Label)
		}
	}
	if len(present) == 0 {
		b.WriteString("✓ No red flag symptoms reported\n")
	} else {
		b.WriteString("⚠️  RED FLAGS PRESENT\n")
		for _, label := range present {
			fmt.Fprintf(b, "- %s\n", label)
		}
	}
	if notes := sanitize(rf.Notes); notes != "" {
		fmt.Fprintf(b, "\nAdditional Notes: %s\n", notes)
	}
}

func aggravatorList(a types.Aggravators) []string {
	var out []string
	for _, f := range []struct {
		on    bool
		label string
	}{
		{a.Sitting, "sitting"},
		{a.Standing, "standing"},
		{a.Walking, "walking"},
		{a.Bending, "bending forward"},
		{a.Lifting, "lifting"},
		{a.Twisting, "twisting"},
		{a.Coughing, "coughing/sneezing"},
		{a.MorningWorse, "mornings"},
		{a.EveningWorse, "evenings"},
		{a.Weather, "weather changes"},
		{a.Stress, "stress"},
	} {
		if f.on {
			out = append(out, f.label)
		}
	}
	if other := sanitize(a.Other); other != "" {
		out = append(out, other)
	}
	return out
}

func relieverList(r types.Relievers) []string {
	var out []string
	for _, f := range []struct {
		on    bool
		label string
	}{
		{r.Rest, "rest"},
		{r.Ice, "ice"},
		{r.Heat, "heat"},
		{r.Stretching, "stretching"},
		{r.Movement, "movement"},
		{r.Medication, "medication"},
		{r.Position, "position changes"},
	} {
		if f.on {
			out = append(out, f.label)
		}
	}
	if other := sanitize(r.Other); other != "" {
		out = append(out, other)
	}
	return out
}

func symptomList(a types.AssociatedSymptoms) []string {
	var out []string
	for _, f := range []struct {
		on    bool
		label string
	}{
		{a.Weakness, "Progressive weakness"},
		{a.Numbness, "Numbness"},
		{a.Tingling, "Tingling"},
		{a.BalanceIssues, "Balance issues"},
		{a.MorningStiffness30m, "Morning stiffness >30 min"},
		{a.FeverChills, "Fever/chills"},
		{a.NightSweats, "Night sweats"},
		{a.Fatigue, "Fatigue"},
		{a.Swelling, "Swelling"},
		{a.RednessWarmth, "Redness/warmth"},
		{a.Bruising, "Bruising"},
		{a.LockingCatching, "Joint locking/catching"},
		{a.Instability, "Joint instability"},
		{a.Headache, "Headache"},
		{a.LightSoundSensitive, "Light/sound sensitivity"},
		{a.VisionChanges, "Vision changes"},
		{a.JawPain, "Jaw pain"},
		{a.ChestPain, "Chest pain"},
		{a.ShortnessBreath, "Shortness of breath"},
		{a.NauseaVomiting, "Nausea/vomiting"},
		{a.AbdominalPain, "Abdominal pain"},
		{a.BowelChange, "Bowel changes"},
		{a.BladderChange, "Bladder changes"},
		{a.MenstrualLink, "Menstrual cycle link"},
		{a.SaddleNumbness, "Saddle numbness"},
		{a.Incontinence, "Incontinence"},
	} {
		if f.on {
			out = append(out, f.label)
		}
	}
	return out
}
