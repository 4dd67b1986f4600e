package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/campusgrid/campus-lms/internal/auth"
	"github.com/campusgrid/campus-lms/internal/quiz"
)

type applyGradesReq struct {
	Items    map[string]quiz.ManualGradeInput `json:"items"` // question_id -> grade
	Feedback string                           `json:"feedback,omitempty"`
}

// GET /attempts/{attemptID}/grading
func GetAttemptGradingHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attemptID := strings.TrimSpace(chi.URLParam(r, "attemptID"))
		if attemptID == "" {
			http.Error(w, "attemptID required", http.StatusBadRequest)
			return
		}
		items, err := svc.AttemptItems(r.Context(), auth.SubjectFromContext(r.Context()), attemptID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, items)
	}
}

// POST /attempts/{attemptID}/grading
func ApplyAttemptGradingHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attemptID := strings.TrimSpace(chi.URLParam(r, "attemptID"))
		if attemptID == "" {
			http.Error(w, "attemptID required", http.StatusBadRequest)
			return
		}
		var req applyGradesReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		a, err := svc.ApplyManualGrades(r.Context(), attemptID,
			auth.SubjectFromContext(r.Context()), req.Items, req.Feedback, time.Now())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, a)
	}
}

// POST /attempts/{attemptID}/regrade
func RegradeAttemptHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req applyGradesReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		a, err := svc.RegradeAttempt(r.Context(), chi.URLParam(r, "attemptID"),
			auth.SubjectFromContext(r.Context()), req.Items, req.Feedback, time.Now())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, a)
	}
}

// POST /attempts/{attemptID}/reopen, administrative only.
func ReopenAttemptHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := svc.ReopenAttempt(r.Context(), chi.URLParam(r, "attemptID"), auth.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, a)
	}
}
