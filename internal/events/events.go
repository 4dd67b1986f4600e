// Package events carries the domain events the grading core emits so that
// notification fan-out stays out of the core. A dispatcher consumes the
// events, appends them to a durable log and hands them to handlers.
package events

import "context"

const (
	TypeQuizPublished       = "quiz.published"
	TypeAttemptGraded       = "attempt.graded"
	TypeAttemptNeedsGrading = "attempt.needs_grading"
	TypeAttemptRegraded     = "attempt.regraded"
	TypeAttemptReopened     = "attempt.reopened"
)

// Event is one domain occurrence. Key is the natural key of the subject
// (attempt ID or quiz ID); Data is a JSON-marshalable payload.
type Event struct {
	Type string
	Key  string
	Data interface{}
}

// Emitter is the only messaging surface the grading core sees.
type Emitter interface {
	Emit(ctx context.Context, e Event)
}

// Handler consumes dispatched events (notification delivery, projections).
type Handler interface {
	Handle(ctx context.Context, e Event) error
}

// Payloads, per event type.

type QuizPublished struct {
	QuizID     string   `json:"quiz_id"`
	QuizTitle  string   `json:"quiz_title"`
	CourseID   string   `json:"course_id"`
	StudentIDs []string `json:"student_ids"`
}

type AttemptGraded struct {
	AttemptID string `json:"attempt_id"`
	StudentID string `json:"student_id"`
	QuizTitle string `json:"quiz_title"`
}

type AttemptNeedsGrading struct {
	AttemptID  string   `json:"attempt_id"`
	QuizTitle  string   `json:"quiz_title"`
	FacultyIDs []string `json:"faculty_ids"`
}

type AttemptReopened struct {
	AttemptID string `json:"attempt_id"`
	StudentID string `json:"student_id"`
	AdminID   string `json:"admin_id"`
}
