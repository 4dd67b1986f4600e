package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/campusgrid/campus-lms/internal/auth"
	"github.com/campusgrid/campus-lms/internal/quiz"
	"github.com/campusgrid/campus-lms/internal/rbac"
)

// POST /attempts  { "quiz_id": "..." }
func StartAttemptHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			QuizID string `json:"quiz_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		a, err := svc.StartAttempt(r.Context(), auth.SubjectFromContext(r.Context()), req.QuizID, time.Now())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, a)
	}
}

// POST /attempts/{attemptID}/answers  { "question_id": "...", "selected": [...], "text": "..." }
func RecordAnswerHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			QuestionID string   `json:"question_id"`
			Selected   []string `json:"selected,omitempty"`
			Text       string   `json:"text,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		a, err := svc.RecordAnswer(r.Context(),
			chi.URLParam(r, "attemptID"),
			auth.SubjectFromContext(r.Context()),
			req.QuestionID,
			quiz.Submission{Selected: req.Selected, Text: req.Text})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, a)
	}
}

// POST /attempts/{attemptID}/complete
func CompleteAttemptHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := svc.CompleteAttempt(r.Context(),
			chi.URLParam(r, "attemptID"),
			auth.SubjectFromContext(r.Context()),
			time.Now())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, a)
	}
}

// GET /attempts/{attemptID}
func GetAttemptHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := svc.AttemptFor(r.Context(), auth.SubjectFromContext(r.Context()), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, a)
	}
}

// GET /attempts?quiz_id=&student_id=&status=&limit=&offset=
// Callers without attempt:view-all only ever see their own attempts.
func ListAttemptsHandler(svc *quiz.Service) http.HandlerFunc {
	checker := rbac.NewChecker(nil)
	return func(w http.ResponseWriter, r *http.Request) {
		qp := r.URL.Query()
		opts := quiz.AttemptListOpts{
			QuizID:    qp.Get("quiz_id"),
			StudentID: qp.Get("student_id"),
			Status:    quiz.AttemptStatus(qp.Get("status")),
		}
		opts.Limit, _ = strconv.Atoi(qp.Get("limit"))
		opts.Offset, _ = strconv.Atoi(qp.Get("offset"))

		if !checker.Has(rbac.RoleFromContext(r.Context()), "attempt:view-all") {
			opts.StudentID = auth.SubjectFromContext(r.Context())
		}
		out, err := svc.ListAttempts(r.Context(), opts)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, out)
	}
}
