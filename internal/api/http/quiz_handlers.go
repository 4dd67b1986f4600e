package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/campusgrid/campus-lms/internal/auth"
	"github.com/campusgrid/campus-lms/internal/quiz"
)

// POST /quizzes
func UploadQuizHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q quiz.Quiz
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		saved, err := svc.SaveQuiz(r.Context(), auth.SubjectFromContext(r.Context()), q)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, saved)
	}
}

// GET /quizzes/{quizID}. Answer keys are stripped unless the caller may
// grade the quiz's course.
func GetQuizHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := svc.QuizFor(r.Context(), auth.SubjectFromContext(r.Context()), chi.URLParam(r, "quizID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, q)
	}
}

// POST /quizzes/{quizID}/publish
func PublishQuizHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := svc.PublishQuiz(r.Context(), auth.SubjectFromContext(r.Context()), chi.URLParam(r, "quizID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, q)
	}
}
