package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/pain-assessment/internal/db"
	"github.com/jonathan/pain-assessment/internal/llm"
	"github.com/jonathan/pain-assessment/internal/notify"
	"github.com/jonathan/pain-assessment/internal/prompts"
	"github.com/jonathan/pain-assessment/internal/redflags"
	"github.com/jonathan/pain-assessment/internal/schemas"
	"github.com/jonathan/pain-assessment/internal/summary"
	"github.com/jonathan/pain-assessment/internal/types"
)

// maxSubmissionBytes caps the request body; pain map images can be large data URLs.
const maxSubmissionBytes = 8 << 20

const (
	statusAnalyzing = "Analyzing your assessment..."
	processFailed   = "Failed to process assessment."
)

// processed is the outcome of summarizing and storing one submission.
type processed struct {
	record  *db.Assessment
	payload types.SubmissionPayload
}

// decodeSubmission reads, schema-checks and struct-validates a submission body.
func decodeSubmission(w http.ResponseWriter, r *http.Request) (*types.SubmissionPayload, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSubmissionBytes))
	if err != nil {
		return nil, &ErrValidation{Field: "body", Message: "request body is too large or unreadable"}
	}
	if !json.Valid(body) {
		return nil, &ErrValidation{Field: "body", Message: "invalid JSON"}
	}

	if err := schemas.ValidateSubmission(body); err != nil {
		var ve *schemas.ValidationError
		if errors.As(err, &ve) {
			first := ve.First()
			return nil, &ErrValidation{Field: first.Field, Message: first.Message}
		}
		return nil, fmt.Errorf("failed to validate submission: %w", err)
	}

	var payload types.SubmissionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ErrValidation{Field: "body", Message: err.Error()}
	}
	payload.Email = strings.TrimSpace(payload.Email)
	payload.FullName = strings.TrimSpace(payload.FullName)

	if err := payload.Validate(); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, &ErrValidation{
				Field:   jsonFieldName(verrs[0].Namespace()),
				Message: fmt.Sprintf("failed %q check", verrs[0].Tag()),
			}
		}
		return nil, &ErrValidation{Field: "body", Message: err.Error()}
	}
	return &payload, nil
}

// jsonFieldName turns a validator namespace such as "SubmissionPayload.PainAreas[0].Region"
// into "painAreas[0].region".
func jsonFieldName(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToLower(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, ".")
}

// determineUrgency prefers the model's marker, then the deterministic classifier.
func determineUrgency(p types.SubmissionPayload, text string) types.Urgency {
	if u, ok := summary.DetectUrgency(text); ok {
		return u
	}
	if p.Assessment != nil {
		return redflags.UrgencyLevel(redflags.Evaluate(p.Assessment.Associated, p.Assessment.History))
	}
	return redflags.FromSummary(p.RedFlags)
}

// process builds the prompt, runs the model, then stores the cleaned summary. Chunks are
// handed to onChunk as they arrive; a nil onChunk uses the non-streaming call.
func (s *Server) process(ctx context.Context, p types.SubmissionPayload, onChunk llm.ChunkFunc) (*processed, error) {
	prompt, err := prompts.BuildAssessmentPrompt(p)
	if err != nil {
		return nil, fmt.Errorf("failed to build prompt: %w", err)
	}

	var raw string
	if onChunk != nil {
		raw, err = s.llm.StreamContent(ctx, prompt, s.tier, onChunk)
	} else {
		raw, err = s.llm.GenerateContent(ctx, prompt, s.tier)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to summarize assessment: %w", err)
	}

	html, err := summary.Process(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to clean summary: %w", err)
	}
	urgency := determineUrgency(p, raw)

	record := db.NewAssessment(p, html, urgency)
	if _, err := s.store.SaveAssessment(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store assessment: %w", err)
	}
	s.metrics.recordUrgency(urgency)
	s.logger.Info("Server.process: stored assessment",
		"assessment_id", record.ID, "session_id", p.SessionID, "urgency", urgency)

	return &processed{record: record, payload: p}, nil
}

// notifyAsync dispatches notifications detached from the request, bounded by notifyTimeout.
func (s *Server) notifyAsync(ctx context.Context, res *processed) {
	if s.notifier == nil {
		return
	}
	rec := notify.Record{
		AssessmentID: res.record.ID.String(),
		Payload:      res.payload,
		AISummary:    res.record.AISummary,
		Urgency:      res.record.Urgency,
		CreatedAt:    res.record.CreatedAt,
	}
	s.notifyWG.Add(1)
	go func() {
		defer s.notifyWG.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
		defer cancel()
		if err := s.notifier.Dispatch(ctx, rec); err != nil {
			s.logger.Warn("Server.notifyAsync: notification failed",
				"assessment_id", rec.AssessmentID, "error", err)
		}
	}()
}

// handleSubmitStream validates the submission, then streams the summary as SSE events.
func (s *Server) handleSubmitStream(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	payload, err := decodeSubmission(w, r)
	if err != nil {
		s.metrics.observe(modeStream, outcomeInvalid, start)
		s.typedErrorResponse(w, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.metrics.observe(modeStream, outcomeFailed, start)
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := sse.WriteStatus(statusAnalyzing); err != nil {
		s.metrics.observe(modeStream, outcomeFailed, start)
		return
	}

	res, err := s.process(r.Context(), *payload, sse.WriteDelta)
	if err != nil {
		s.metrics.observe(modeStream, outcomeFailed, start)
		s.logger.Error("Server.handleSubmitStream: processing failed",
			"session_id", payload.SessionID, "error", err)
		sse.WriteError(processFailed)
		return
	}

	sse.WriteComplete(res.record.ID.String(), payload.SessionID, res.record.AISummary, res.record.Urgency)
	s.metrics.observe(modeStream, outcomeSuccess, start)
	s.notifyAsync(r.Context(), res)
}

// handleSubmit is the non-streaming variant of handleSubmitStream.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	payload, err := decodeSubmission(w, r)
	if err != nil {
		s.metrics.observe(modeSync, outcomeInvalid, start)
		s.typedErrorResponse(w, err)
		return
	}

	res, err := s.process(r.Context(), *payload, nil)
	if err != nil {
		s.metrics.observe(modeSync, outcomeFailed, start)
		s.logger.Error("Server.handleSubmit: processing failed",
			"session_id", payload.SessionID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, processFailed)
		return
	}

	s.metrics.observe(modeSync, outcomeSuccess, start)
	s.notifyAsync(r.Context(), res)
	s.jsonResponse(w, http.StatusCreated, map[string]any{
		"message":              "Assessment submitted successfully",
		"assessmentId":         res.record.ID.String(),
		"aiSummary":            res.record.AISummary,
		"systemRecommendation": res.record.Urgency,
	})
}
