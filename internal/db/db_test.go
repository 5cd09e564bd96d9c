package db

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/pain-assessment/internal/types"
)

func TestNewAssessment(t *testing.T) {
	detail := &types.AssessmentData{Locale: "en"}
	p := types.SubmissionPayload{
		SessionID:      "session-1-abcdef12",
		Email:          " pat@example.com ",
		FullName:       " Pat Doe",
		PainAreas:      []types.PainArea{{Region: "Lower Back", Intensity: 6}},
		RedFlags:       types.RedFlagSummary{NightPain: true},
		TreatmentGoals: "walk the dog",
		Assessment:     detail,
	}

	a := NewAssessment(p, "<p>summary</p>", types.UrgencyModerate)

	assert.Equal(t, "session-1-abcdef12", a.SessionID)
	assert.Equal(t, "pat@example.com", a.Email)
	assert.Equal(t, "Pat Doe", a.FullName)
	assert.Len(t, a.PainAreas, 1)
	assert.True(t, a.RedFlags.NightPain)
	assert.Equal(t, "walk the dog", a.TreatmentGoals)
	assert.Same(t, detail, a.Detail)
	assert.Equal(t, "<p>summary</p>", a.AISummary)
	assert.Equal(t, types.UrgencyModerate, a.Urgency)
}

func TestNewAssessment_NilAreas(t *testing.T) {
	a := NewAssessment(types.SubmissionPayload{}, "", types.UrgencyLow)
	assert.NotNil(t, a.PainAreas)
	assert.Empty(t, a.PainAreas)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultListLimit, ClampLimit(0))
	assert.Equal(t, DefaultListLimit, ClampLimit(-3))
	assert.Equal(t, 10, ClampLimit(10))
	assert.Equal(t, MaxListLimit, ClampLimit(MaxListLimit+1))
}

func TestSchemaEmbedded(t *testing.T) {
	assert.Contains(t, schemaSQL, "CREATE TABLE IF NOT EXISTS assessments")
}
