package draft

import (
	"context"
	"testing"
	"time"

	"github.com/jonathan/pain-assessment/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleData() types.AssessmentData {
	now := time.Date(2026, 4, 2, 9, 15, 0, 0, time.UTC)
	return types.AssessmentData{
		DraftID:   "draft-1",
		User:      types.User{Email: "pat@example.com", Name: "Pat Doe"},
		CreatedAt: now,
		UpdatedAt: now,
		Points: []types.PainPoint{{
			ID:               "p1",
			RegionID:         4,
			RegionName:       "Neck",
			IntensityCurrent: 7,
			Qualities:        []types.PainQuality{types.QualityThrobbing},
			CreatedAt:        now,
			UpdatedAt:        now,
		}},
		Timing:     &types.Timing{Onset: "sudden", DurationValue: 3, DurationUnit: "days"},
		Associated: types.AssociatedSymptoms{Headache: true},
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	saved := time.Date(2026, 4, 2, 9, 16, 0, 0, time.UTC)
	snap := Snapshot{
		Data:           sampleData(),
		CurrentStep:    types.StepTiming,
		CompletedSteps: []types.WizardStep{types.StepPainMapping, types.StepWelcome},
		SavedAt:        &saved,
	}

	raw, err := Encode(snap)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"version":2`)

	got, ok := Decode(raw)
	require.True(t, ok)
	assert.Equal(t, snap.Data, got.Data)
	assert.Equal(t, snap.CurrentStep, got.CurrentStep)
	assert.ElementsMatch(t, snap.CompletedSteps, got.CompletedSteps)
	require.NotNil(t, got.SavedAt)
	assert.True(t, saved.Equal(*got.SavedAt))
}

func TestDecode_WrappedV1Shape(t *testing.T) {
	raw := `{"assessmentData":{"user":{"email":"a@example.com","name":"A"}},"currentStep":"symptoms","completedSteps":["welcome","pain-mapping","timing","triggers"],"savedAt":"2026-01-01T00:00:00Z"}`

	got, ok := Decode([]byte(raw))
	require.True(t, ok)
	assert.Equal(t, "a@example.com", got.Data.User.Email)
	assert.Equal(t, types.StepSymptoms, got.CurrentStep)
	assert.Len(t, got.CompletedSteps, 4)
	require.NotNil(t, got.SavedAt)
}

func TestDecode_LegacyShape(t *testing.T) {
	raw := `{"user":{"email":"old@example.com","name":"Old"},"points":[{"id":"p1","regionId":2,"intensityCurrent":3}],"updatedAt":"2025-12-01T08:00:00Z"}`

	got, ok := Decode([]byte(raw))
	require.True(t, ok)
	assert.Equal(t, "old@example.com", got.Data.User.Email)
	assert.Len(t, got.Data.Points, 1)
	assert.Equal(t, types.StepWelcome, got.CurrentStep)
	assert.Empty(t, got.CompletedSteps)
	require.NotNil(t, got.SavedAt)
	assert.Equal(t, 2025, got.SavedAt.Year())
}

func TestDecode_InvalidStepsDiscarded(t *testing.T) {
	raw := `{"version":2,"data":{"user":{"email":"a@example.com"}},"currentStep":"checkout","completedSteps":["welcome","bogus","welcome"]}`

	got, ok := Decode([]byte(raw))
	require.True(t, ok)
	assert.Equal(t, types.StepWelcome, got.CurrentStep)
	assert.Equal(t, []types.WizardStep{types.StepWelcome}, got.CompletedSteps)
}

func TestDecode_WrongTypedStepsKeepData(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		current   types.WizardStep
		completed []types.WizardStep
	}{
		{
			name:      "numeric current step",
			raw:       `{"version":2,"data":{"user":{"email":"a@b.c","name":"A"}},"currentStep":5,"completedSteps":["welcome"]}`,
			current:   types.StepWelcome,
			completed: []types.WizardStep{types.StepWelcome},
		},
		{
			name:      "mixed completed steps",
			raw:       `{"version":2,"data":{"user":{"email":"a@b.c","name":"A"}},"currentStep":"timing","completedSteps":["welcome",3,null,"pain-mapping"]}`,
			current:   types.StepTiming,
			completed: []types.WizardStep{types.StepWelcome, types.StepPainMapping},
		},
		{
			name:      "completed steps not a list",
			raw:       `{"version":2,"data":{"user":{"email":"a@b.c","name":"A"}},"currentStep":"timing","completedSteps":"welcome","savedAt":"yesterday"}`,
			current:   types.StepTiming,
			completed: []types.WizardStep{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Decode([]byte(tt.raw))
			require.True(t, ok)
			assert.Equal(t, "a@b.c", got.Data.User.Email)
			assert.Equal(t, tt.current, got.CurrentStep)
			assert.Equal(t, tt.completed, got.CompletedSteps)
		})
	}
}

func TestDecode_EmptyStoredValueIsAbsent(t *testing.T) {
	for _, raw := range []string{"null", " null ", "{}", `{"data":null}`, `{"assessmentData":null,"currentStep":"goals"}`} {
		_, ok := Decode([]byte(raw))
		assert.False(t, ok, raw)
	}
}

func TestDecode_MalformedIsNull(t *testing.T) {
	for _, raw := range []string{"", "   ", "{not json", `"a string"`, `[1,2]`, `{"data":"oops"}`} {
		_, ok := Decode([]byte(raw))
		assert.False(t, ok, raw)
	}
}

func TestLoadSave_MemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, ok, err := Load(ctx, store)
	require.NoError(t, err)
	assert.False(t, ok)

	snap := Snapshot{Data: sampleData(), CurrentStep: types.StepGoals, CompletedSteps: []types.WizardStep{types.StepWelcome}}
	require.NoError(t, Save(ctx, store, snap))

	got, ok, err := Load(ctx, store)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap.Data, got.Data)
	assert.Equal(t, types.StepGoals, got.CurrentStep)

	require.NoError(t, store.Set(ctx, Key, []byte("garbage")))
	_, ok, err = Load(ctx, store)
	require.NoError(t, err)
	assert.False(t, ok)
}
