package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/campusgrid/campus-lms/internal/quiz"
)

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the quiz error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, quiz.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, quiz.ErrNotOwner), errors.Is(err, quiz.ErrNotAuthorized):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, quiz.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, quiz.ErrQuizNotActive),
		errors.Is(err, quiz.ErrQuizPublished),
		errors.Is(err, quiz.ErrAttemptClosed),
		errors.Is(err, quiz.ErrAttemptExists),
		errors.Is(err, quiz.ErrAttemptNotCompleted):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, quiz.ErrConflict):
		// Already retried once; tell the client to try again.
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
