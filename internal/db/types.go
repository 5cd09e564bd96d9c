package db

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/pain-assessment/internal/types"
)

// Assessment is a stored submission with its generated summary.
type Assessment struct {
	ID             uuid.UUID             `json:"id"`
	SessionID      string                `json:"session_id"`
	Email          string                `json:"email"`
	FullName       string                `json:"full_name"`
	Phone          string                `json:"phone,omitempty"`
	DateOfBirth    string                `json:"date_of_birth,omitempty"`
	PainAreas      []types.PainArea      `json:"pain_areas"`
	RedFlags       types.RedFlagSummary  `json:"red_flags"`
	TreatmentGoals string                `json:"treatment_goals"`
	Detail         *types.AssessmentData `json:"detail,omitempty"`
	AISummary      string                `json:"ai_summary"`
	Urgency        types.Urgency         `json:"urgency"`
	CreatedAt      time.Time             `json:"created_at"`
}

// List limits
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// NewAssessment builds the record stored for a processed submission.
func NewAssessment(p types.SubmissionPayload, aiSummary string, urgency types.Urgency) *Assessment {
	areas := p.PainAreas
	if areas == nil {
		areas = []types.PainArea{}
	}
	return &Assessment{
		SessionID:      p.SessionID,
		Email:          strings.TrimSpace(p.Email),
		FullName:       strings.TrimSpace(p.FullName),
		Phone:          p.Phone,
		DateOfBirth:    p.DateOfBirth,
		PainAreas:      areas,
		RedFlags:       p.RedFlags,
		TreatmentGoals: p.TreatmentGoals,
		Detail:         p.Assessment,
		AISummary:      aiSummary,
		Urgency:        urgency,
	}
}

// ClampLimit maps a requested page size onto [1, MaxListLimit], using the default for
// non-positive values.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}
