package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/jonathan/pain-assessment/internal/db"
	"github.com/jonathan/pain-assessment/internal/report"
	"github.com/jonathan/pain-assessment/internal/server/middleware"
)

// parseLimit reads ?limit=, writing the error response itself.
func (s *Server) parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return db.DefaultListLimit, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		s.typedErrorResponse(w, &ErrValidation{Field: "limit", Message: "must be an integer"})
		return 0, false
	}
	return db.ClampLimit(n), true
}

func (s *Server) writeAssessments(w http.ResponseWriter, records []db.Assessment) {
	if records == nil {
		records = []db.Assessment{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"assessments": records,
		"count":       len(records),
	})
}

// handleListAssessments returns the most recent records, newest first.
func (s *Server) handleListAssessments(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.parseLimit(w, r)
	if !ok {
		return
	}

	records, err := s.store.ListAssessments(r.Context(), limit)
	if err != nil {
		s.logger.Error("Server.handleListAssessments: list failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to list assessments")
		return
	}
	s.writeAssessments(w, records)
}

// patientEmail resolves the {email} path value, writing the error response itself.
func (s *Server) patientEmail(w http.ResponseWriter, r *http.Request) (string, bool) {
	email := strings.TrimSpace(r.PathValue("email"))
	if email == "" || !strings.Contains(email, "@") {
		s.typedErrorResponse(w, &ErrValidation{Field: "email", Message: "invalid patient email"})
		return "", false
	}
	return email, true
}

// handleListPatients returns one entry per patient email, most recently active first.
func (s *Server) handleListPatients(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.parseLimit(w, r)
	if !ok {
		return
	}

	patients, err := s.store.ListPatients(r.Context(), limit)
	if err != nil {
		s.logger.Error("Server.handleListPatients: list failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to list patients")
		return
	}
	if patients == nil {
		patients = []db.Patient{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"patients": patients,
		"count":    len(patients),
	})
}

// handlePatientAssessments returns one patient's records, newest first.
func (s *Server) handlePatientAssessments(w http.ResponseWriter, r *http.Request) {
	email, ok := s.patientEmail(w, r)
	if !ok {
		return
	}
	limit, ok := s.parseLimit(w, r)
	if !ok {
		return
	}

	records, err := s.store.ListPatientAssessments(r.Context(), email, limit)
	if err != nil {
		s.logger.Error("Server.handlePatientAssessments: list failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to list assessments")
		return
	}
	clinician, _ := middleware.GetClinician(r)
	s.logger.Info("Server.handlePatientAssessments: records accessed", "count", len(records), "clinician", clinician)
	s.writeAssessments(w, records)
}

// handleDeleteAssessment removes one record.
func (s *Server) handleDeleteAssessment(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		s.typedErrorResponse(w, &ErrValidation{Field: "id", Message: "invalid assessment ID"})
		return
	}

	deleted, err := s.store.DeleteAssessment(r.Context(), id)
	if err != nil {
		s.logger.Error("Server.handleDeleteAssessment: delete failed", "assessment_id", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to delete assessment")
		return
	}
	if !deleted {
		s.typedErrorResponse(w, &ErrNotFound{ID: raw})
		return
	}

	clinician, _ := middleware.GetClinician(r)
	s.logger.Info("Server.handleDeleteAssessment: record deleted", "assessment_id", id, "clinician", clinician)
	s.jsonResponse(w, http.StatusOK, map[string]any{"message": "Assessment deleted", "deleted": 1})
}

// handleDeletePatient removes every record for one patient email.
func (s *Server) handleDeletePatient(w http.ResponseWriter, r *http.Request) {
	email, ok := s.patientEmail(w, r)
	if !ok {
		return
	}

	n, err := s.store.DeletePatientAssessments(r.Context(), email)
	if err != nil {
		s.logger.Error("Server.handleDeletePatient: delete failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to delete patient assessments")
		return
	}
	if n == 0 {
		s.typedErrorResponse(w, &ErrNotFound{ID: email})
		return
	}

	clinician, _ := middleware.GetClinician(r)
	s.logger.Info("Server.handleDeletePatient: records deleted", "count", n, "clinician", clinician)
	s.jsonResponse(w, http.StatusOK, map[string]any{"message": "Patient assessments deleted", "deleted": n})
}

// loadAssessment resolves the {id} path value, writing the error response itself.
func (s *Server) loadAssessment(w http.ResponseWriter, r *http.Request) (*db.Assessment, bool) {
	raw := r.PathValue("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		s.typedErrorResponse(w, &ErrValidation{Field: "id", Message: "invalid assessment ID"})
		return nil, false
	}

	a, err := s.store.GetAssessment(r.Context(), id)
	if err != nil {
		s.logger.Error("Server.loadAssessment: get failed", "assessment_id", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to get assessment")
		return nil, false
	}
	if a == nil {
		s.typedErrorResponse(w, &ErrNotFound{ID: raw})
		return nil, false
	}

	clinician, _ := middleware.GetClinician(r)
	s.logger.Info("Server.loadAssessment: record accessed", "assessment_id", id, "clinician", clinician)
	return a, true
}

// handleGetAssessment returns one record.
func (s *Server) handleGetAssessment(w http.ResponseWriter, r *http.Request) {
	a, ok := s.loadAssessment(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, a)
}

// handleReport renders one record as HTML, or as PDF with ?format=pdf.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	a, ok := s.loadAssessment(w, r)
	if !ok {
		return
	}

	html, err := report.RenderHTML(a)
	if err != nil {
		s.logger.Error("Server.handleReport: render failed", "assessment_id", a.ID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to render report")
		return
	}

	if r.URL.Query().Get("format") != "pdf" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(html)
		return
	}

	pdf, err := s.renderPDF(r.Context(), html, report.DefaultPDFTimeout)
	if err != nil {
		s.logger.Error("Server.handleReport: pdf failed", "assessment_id", a.ID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to render PDF")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="assessment-`+a.ID.String()+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}
