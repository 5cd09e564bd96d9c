package draft

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jonathan/pain-assessment/internal/types"
)

// Snapshot is the persisted state of a draft.
type Snapshot struct {
	Data           types.AssessmentData
	CurrentStep    types.WizardStep
	CompletedSteps []types.WizardStep
	SavedAt        *time.Time

	// Revision is the owner's mutation counter at the time the snapshot was taken.
	// It is not persisted.
	Revision uint64
}

const snapshotVersion = 2

// Kind tags which stored shape a value was decoded from.
type Kind int

const (
	// KindWrapped is the current {version, data, currentStep, completedSteps, savedAt} shape.
	KindWrapped Kind = iota + 1
	// KindWrappedV1 is the earlier wrapper that kept the record under "assessmentData".
	KindWrappedV1
	// KindLegacy is a bare assessment record with no wrapper.
	KindLegacy
)

func (k Kind) String() string {
	switch k {
	case KindWrapped:
		return "wrapped"
	case KindWrappedV1:
		return "wrapped_v1"
	case KindLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// stored is the decoded tagged union; only normalize reads it.
type stored struct {
	kind           Kind
	data           types.AssessmentData
	currentStep    string
	completedSteps []string
	savedAt        *time.Time
}

type wireSnapshot struct {
	Version        int                  `json:"version"`
	Data           types.AssessmentData `json:"data"`
	CurrentStep    types.WizardStep     `json:"currentStep"`
	CompletedSteps []types.WizardStep   `json:"completedSteps"`
	SavedAt        *time.Time           `json:"savedAt,omitempty"`
}

// Encode serializes a snapshot in the current shape.
func Encode(s Snapshot) ([]byte, error) {
	completed := s.CompletedSteps
	if completed == nil {
		completed = []types.WizardStep{}
	}
	data, err := json.Marshal(wireSnapshot{
		Version:        snapshotVersion,
		Data:           s.Data,
		CurrentStep:    s.CurrentStep,
		CompletedSteps: completed,
		SavedAt:        s.SavedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode draft snapshot: %w", err)
	}
	return data, nil
}

// errEmptyDraft marks a stored value that holds no draft at all, such as null or {}.
var errEmptyDraft = errors.New("stored draft is empty")

// Decode accepts every stored shape. It reports false for empty or malformed input, which
// callers treat as no draft.
func Decode(raw []byte) (Snapshot, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Snapshot{}, false
	}
	st, err := parse(raw)
	if errors.Is(err, errEmptyDraft) {
		return Snapshot{}, false
	}
	if err != nil {
		slog.Warn("draft.Decode: discarding malformed draft", "error", err)
		return Snapshot{}, false
	}
	return normalize(st), true
}

func isPresent(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// wrapperKeys are the envelope fields of the wrapped shapes.
var wrapperKeys = []string{"data", "assessmentData", "currentStep", "completedSteps", "savedAt"}

// onlyWrapperKeys reports an envelope whose data is missing, such as {"data":null}.
func onlyWrapperKeys(env map[string]json.RawMessage) bool {
	for key := range env {
		if !slices.Contains(wrapperKeys, key) {
			return false
		}
	}
	return true
}

func parse(raw []byte) (stored, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		return stored{}, err
	}
	if len(env) == 0 {
		return stored{}, errEmptyDraft
	}

	var st stored
	var body json.RawMessage
	switch {
	case isPresent(env["data"]):
		st.kind, body = KindWrapped, env["data"]
	case isPresent(env["assessmentData"]):
		st.kind, body = KindWrappedV1, env["assessmentData"]
	case onlyWrapperKeys(env):
		return stored{}, errEmptyDraft
	default:
		st.kind, body = KindLegacy, raw
	}
	if err := json.Unmarshal(body, &st.data); err != nil {
		return stored{}, fmt.Errorf("failed to decode %s draft data: %w", st.kind, err)
	}
	if st.kind == KindLegacy {
		return st, nil
	}

	// Step fields of the wrong type are dropped; the data is kept.
	_ = json.Unmarshal(env["currentStep"], &st.currentStep)
	var completed []json.RawMessage
	if json.Unmarshal(env["completedSteps"], &completed) == nil {
		for _, item := range completed {
			var name string
			if json.Unmarshal(item, &name) == nil {
				st.completedSteps = append(st.completedSteps, name)
			}
		}
	}
	var savedAt time.Time
	if isPresent(env["savedAt"]) && json.Unmarshal(env["savedAt"], &savedAt) == nil {
		st.savedAt = &savedAt
	}
	return st, nil
}

// normalize turns any stored shape into a Snapshot with only valid steps.
func normalize(st stored) Snapshot {
	snap := Snapshot{
		Data:           st.data,
		CurrentStep:    types.StepWelcome,
		CompletedSteps: []types.WizardStep{},
	}

	if st.kind == KindLegacy {
		if !st.data.UpdatedAt.IsZero() {
			t := st.data.UpdatedAt
			snap.SavedAt = &t
		}
		return snap
	}

	if step, ok := types.ParseStep(st.currentStep); ok {
		snap.CurrentStep = step
	}
	for _, s := range st.completedSteps {
		step, ok := types.ParseStep(s)
		if ok && !slices.Contains(snap.CompletedSteps, step) {
			snap.CompletedSteps = append(snap.CompletedSteps, step)
		}
	}
	snap.SavedAt = st.savedAt
	return snap
}

// Load reads and decodes the draft under Key. A missing or malformed value yields false.
func Load(ctx context.Context, store Store) (Snapshot, bool, error) {
	raw, err := store.Get(ctx, Key)
	if err != nil {
		return Snapshot{}, false, err
	}
	snap, ok := Decode(raw)
	return snap, ok, nil
}

// Save encodes snap and writes it under Key.
func Save(ctx context.Context, store Store, snap Snapshot) error {
	raw, err := Encode(snap)
	if err != nil {
		return err
	}
	return store.Set(ctx, Key, raw)
}
