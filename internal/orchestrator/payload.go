package orchestrator

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/pain-assessment/internal/types"
)

// UnknownRegion labels points that were placed without a resolved region.
const UnknownRegion = "Unknown Region"

// NewSessionID returns "session-<unix ms>-<8 hex chars>".
func NewSessionID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("session-%d-%s", now.UnixMilli(), suffix)
}

// BuildPayload converts a draft into the submission body. The full record rides along in
// Assessment so the backend can build a detailed prompt.
func BuildPayload(data types.AssessmentData, sessionID string) types.SubmissionPayload {
	areas := make([]types.PainArea, 0, len(data.Points))
	for _, p := range data.Points {
		region := p.RegionName
		if region == "" {
			region = UnknownRegion
		}
		qualities := slices.Clone(p.Qualities)
		if qualities == nil {
			qualities = []types.PainQuality{}
		}
		var coords *types.Coords
		if p.Coords != nil {
			c := *p.Coords
			coords = &c
		}
		areas = append(areas, types.PainArea{
			Region:      region,
			Intensity:   p.IntensityCurrent,
			Coordinates: coords,
			Notes:       p.RadiatesTo,
			Qualities:   qualities,
		})
	}

	a := data.Associated
	flags := types.RedFlagSummary{
		BowelBladderDysfunction: a.BladderChange || a.Incontinence,
		ProgressiveWeakness:     a.Weakness,
		SaddleAnesthesia:        a.SaddleNumbness,
		UnexplainedWeightLoss:   false,
		FeverChills:             a.FeverChills,
		NightPain:               data.Timing != nil && slices.Contains(data.Timing.TimeOfDay, types.WakesFromSleep),
		CancerHistory:           data.History.HasComorbidity("cancer"),
		RecentTrauma:            data.History.RecentInjury,
	}

	goals := data.Goals.Goal2to4Weeks
	if goals == "" {
		goals = data.Goals.Notes
	}

	detail := data.Clone()
	detail.PainMapImageFront = ""
	detail.PainMapImageBack = ""

	return types.SubmissionPayload{
		SessionID:         sessionID,
		Email:             strings.TrimSpace(data.User.Email),
		FullName:          strings.TrimSpace(data.User.Name),
		Phone:             data.User.Phone,
		DateOfBirth:       data.User.DateOfBirth,
		PainAreas:         areas,
		RedFlags:          flags,
		TreatmentGoals:    goals,
		PainMapImageFront: data.PainMapImageFront,
		PainMapImageBack:  data.PainMapImageBack,
		Assessment:        &detail,
	}
}
