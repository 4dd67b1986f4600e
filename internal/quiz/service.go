package quiz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campusgrid/campus-lms/internal/events"
	"github.com/campusgrid/campus-lms/internal/grading"
	"github.com/campusgrid/campus-lms/internal/roster"
)

// Service is the attempt state machine. All mutations of one attempt go
// through an atomic read-modify-write on the store's version column; a
// conflicted write is retried once before the error surfaces.
type Service struct {
	store  Store
	grader grading.Grader
	access roster.AccessChecker
	events events.Emitter
	log    *zap.Logger
}

func NewService(store Store, grader grading.Grader, access roster.AccessChecker, emitter events.Emitter, log *zap.Logger) *Service {
	return &Service{store: store, grader: grader, access: access, events: emitter, log: log}
}

// --- quiz management (faculty surface) ---

// SaveQuiz validates and upserts a quiz definition. Total points is never
// stored; it is derived from the question list on every read.
func (s *Service) SaveQuiz(ctx context.Context, callerID string, q Quiz) (Quiz, error) {
	if q.ID == "" || q.CourseID == "" || q.Title == "" {
		return Quiz{}, fmt.Errorf("%w: quiz id, course_id and title are required", ErrValidation)
	}
	if !q.EndAt.After(q.StartAt) {
		return Quiz{}, fmt.Errorf("%w: quiz window must end after it starts", ErrValidation)
	}
	if err := validateQuestions(q.Questions); err != nil {
		return Quiz{}, err
	}
	caps, err := s.access.CapabilitiesFor(ctx, callerID, q.CourseID)
	if err != nil {
		return Quiz{}, err
	}
	if !caps.CanGrade() {
		return Quiz{}, fmt.Errorf("user %s on course %s: %w", callerID, q.CourseID, ErrNotAuthorized)
	}

	// The question bank freezes at publication: any attempt in flight was
	// started against these questions and keys.
	existing, err := s.store.GetQuiz(ctx, q.ID)
	if err == nil && existing.Published {
		return Quiz{}, fmt.Errorf("quiz %s: %w", q.ID, ErrQuizPublished)
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Quiz{}, err
	}
	// Publication only happens through PublishQuiz, so the publish event
	// always fires.
	q.Published = false

	if err := s.store.PutQuiz(ctx, q); err != nil {
		return Quiz{}, err
	}
	s.log.Info("quiz saved", zap.String("quiz_id", q.ID), zap.String("course_id", q.CourseID),
		zap.Int("questions", len(q.Questions)), zap.Float64("total_points", q.TotalPoints()))
	return q, nil
}

// PublishQuiz opens the quiz for attempts and notifies enrolled students.
func (s *Service) PublishQuiz(ctx context.Context, callerID, quizID string) (Quiz, error) {
	q, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return Quiz{}, err
	}
	caps, err := s.access.CapabilitiesFor(ctx, callerID, q.CourseID)
	if err != nil {
		return Quiz{}, err
	}
	if !caps.CanGrade() {
		return Quiz{}, fmt.Errorf("user %s on course %s: %w", callerID, q.CourseID, ErrNotAuthorized)
	}
	if q.Published {
		return q, nil
	}
	q.Published = true
	if err := s.store.PutQuiz(ctx, q); err != nil {
		return Quiz{}, err
	}
	students, err := s.access.EnrolledStudents(ctx, q.CourseID)
	if err != nil {
		s.log.Warn("list enrolled students for publish event", zap.Error(err))
	}
	s.events.Emit(ctx, events.Event{
		Type: events.TypeQuizPublished,
		Key:  q.ID,
		Data: events.QuizPublished{QuizID: q.ID, QuizTitle: q.Title, CourseID: q.CourseID, StudentIDs: students},
	})
	s.log.Info("quiz published", zap.String("quiz_id", q.ID))
	return q, nil
}

// QuizFor returns the quiz, sanitized unless the caller may grade it.
func (s *Service) QuizFor(ctx context.Context, callerID, quizID string) (Quiz, error) {
	q, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return Quiz{}, err
	}
	caps, err := s.access.CapabilitiesFor(ctx, callerID, q.CourseID)
	if err != nil {
		return Quiz{}, err
	}
	if caps.CanGrade() {
		return q, nil
	}
	return q.Sanitized(), nil
}

// --- attempt lifecycle ---

// StartAttempt opens (or resumes) the caller's attempt. Calling it again
// while an attempt is still in progress returns that same attempt.
func (s *Service) StartAttempt(ctx context.Context, studentID, quizID string, now time.Time) (Attempt, error) {
	if studentID == "" || quizID == "" {
		return Attempt{}, fmt.Errorf("%w: student and quiz are required", ErrValidation)
	}
	q, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return Attempt{}, err
	}
	if !q.ActiveAt(now) {
		return Attempt{}, fmt.Errorf("quiz %s: %w", quizID, ErrQuizNotActive)
	}
	caps, err := s.access.CapabilitiesFor(ctx, studentID, q.CourseID)
	if err != nil {
		return Attempt{}, err
	}
	if !caps.EnrolledStudent {
		return Attempt{}, fmt.Errorf("student %s not enrolled in course %s: %w", studentID, q.CourseID, ErrNotAuthorized)
	}

	// Idempotent resume.
	if a, err := s.store.ActiveAttempt(ctx, quizID, studentID); err == nil {
		return a, nil
	} else if !errors.Is(err, ErrNotFound) {
		return Attempt{}, err
	}

	if !q.AllowRepeats {
		done, err := s.store.HasTerminalAttempt(ctx, quizID, studentID)
		if err != nil {
			return Attempt{}, err
		}
		if done {
			return Attempt{}, fmt.Errorf("quiz %s student %s: %w", quizID, studentID, ErrAttemptExists)
		}
	}

	a := Attempt{
		ID:        uuid.NewString(),
		QuizID:    quizID,
		StudentID: studentID,
		Status:    StatusInProgress,
		StartedAt: now,
		Answers:   emptyAnswers(q),
		Version:   1,
	}
	if err := s.store.CreateAttempt(ctx, a); err != nil {
		// Lost a race with another StartAttempt for the same student:
		// return the attempt that won.
		if errors.Is(err, ErrAttemptExists) {
			if existing, gerr := s.store.ActiveAttempt(ctx, quizID, studentID); gerr == nil {
				return existing, nil
			}
			return Attempt{}, err
		}
		return Attempt{}, err
	}
	s.log.Info("attempt started", zap.String("attempt_id", a.ID),
		zap.String("quiz_id", quizID), zap.String("student_id", studentID))
	return a, nil
}

// RecordAnswer upserts one answer slot. Objective questions are graded
// inline; resubmitting a question overwrites its previous value and
// leaves the other slots alone.
func (s *Service) RecordAnswer(ctx context.Context, attemptID, studentID, questionID string, sub Submission) (Attempt, error) {
	if attemptID == "" || questionID == "" {
		return Attempt{}, fmt.Errorf("%w: attempt and question are required", ErrValidation)
	}
	return s.mutateAttempt(ctx, attemptID, func(a *Attempt, q Quiz) error {
		if a.StudentID != studentID {
			return fmt.Errorf("attempt %s: %w", a.ID, ErrNotOwner)
		}
		if a.Status != StatusInProgress {
			return fmt.Errorf("attempt %s is %s: %w", a.ID, a.Status, ErrAttemptClosed)
		}
		question, ok := q.Question(questionID)
		if !ok {
			return fmt.Errorf("question %s in quiz %s: %w", questionID, q.ID, ErrNotFound)
		}

		slot := a.Answer(questionID)
		if slot == nil {
			a.Answers = append(a.Answers, Answer{QuestionID: questionID})
			slot = &a.Answers[len(a.Answers)-1]
		}
		slot.Selected = sub.Selected
		slot.Text = sub.Text
		slot.Feedback = ""
		if question.Type.Objective() {
			res := s.grader.Grade(gradingView(question), grading.Submission{Selected: sub.Selected, Text: sub.Text})
			slot.IsCorrect = res.IsCorrect
			slot.PointsEarned = res.PointsEarned
		} else {
			slot.IsCorrect = nil
			slot.PointsEarned = 0
		}
		return nil
	})
}

// CompleteAttempt finalizes the student's side of the attempt. Quizzes
// with only objective questions grade immediately; anything with a
// subjective question parks at completed until a grader acts.
func (s *Service) CompleteAttempt(ctx context.Context, attemptID, studentID string, now time.Time) (Attempt, error) {
	var ev *events.Event
	a, err := s.mutateAttempt(ctx, attemptID, func(a *Attempt, q Quiz) error {
		if a.StudentID != studentID {
			return fmt.Errorf("attempt %s: %w", a.ID, ErrNotOwner)
		}
		if a.Status != StatusInProgress {
			return fmt.Errorf("attempt %s is %s: %w", a.ID, a.Status, ErrAttemptClosed)
		}
		end := now
		a.EndedAt = &end

		agg := aggregate(q, *a)
		a.TotalScore = agg.TotalScore
		a.Percentage = agg.Percentage
		if agg.NeedsManual {
			a.Status = StatusCompleted
			faculty, err := s.access.CourseFaculty(ctx, q.CourseID)
			if err != nil {
				s.log.Warn("list course faculty for grading event", zap.Error(err))
			}
			ev = &events.Event{
				Type: events.TypeAttemptNeedsGrading,
				Key:  a.ID,
				Data: events.AttemptNeedsGrading{AttemptID: a.ID, QuizTitle: q.Title, FacultyIDs: faculty},
			}
		} else {
			a.Status = StatusGraded
			graded := now
			a.GradedAt = &graded
			ev = &events.Event{
				Type: events.TypeAttemptGraded,
				Key:  a.ID,
				Data: events.AttemptGraded{AttemptID: a.ID, StudentID: a.StudentID, QuizTitle: q.Title},
			}
		}
		return nil
	})
	if err != nil {
		return Attempt{}, err
	}
	if ev != nil {
		s.events.Emit(ctx, *ev)
	}
	s.log.Info("attempt completed", zap.String("attempt_id", a.ID),
		zap.String("status", string(a.Status)), zap.Float64("total_score", a.TotalScore))
	return a, nil
}

// AttemptFor returns the attempt if the caller owns it or may grade the
// owning course.
func (s *Service) AttemptFor(ctx context.Context, callerID, attemptID string) (Attempt, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.StudentID == callerID {
		return a, nil
	}
	q, err := s.store.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return Attempt{}, err
	}
	caps, err := s.access.CapabilitiesFor(ctx, callerID, q.CourseID)
	if err != nil {
		return Attempt{}, err
	}
	if !caps.CanGrade() {
		return Attempt{}, fmt.Errorf("attempt %s: %w", attemptID, ErrNotOwner)
	}
	return a, nil
}

func (s *Service) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	return s.store.ListAttempts(ctx, opts)
}

// --- internals ---

// mutateAttempt is the single path for attempt mutation: load, apply,
// CAS-write. One retry absorbs a concurrent writer; a second collision
// surfaces ErrConflict as a transient failure.
func (s *Service) mutateAttempt(ctx context.Context, attemptID string, fn func(a *Attempt, q Quiz) error) (Attempt, error) {
	var lastErr error
	for try := 0; try < 2; try++ {
		a, err := s.store.GetAttempt(ctx, attemptID)
		if err != nil {
			return Attempt{}, err
		}
		q, err := s.store.GetQuiz(ctx, a.QuizID)
		if err != nil {
			return Attempt{}, err
		}
		if err := fn(&a, q); err != nil {
			return Attempt{}, err
		}
		updated, err := s.store.UpdateAttempt(ctx, a)
		if errors.Is(err, ErrConflict) {
			lastErr = err
			s.log.Warn("attempt write conflict, retrying", zap.String("attempt_id", attemptID))
			continue
		}
		return updated, err
	}
	return Attempt{}, lastErr
}

func emptyAnswers(q Quiz) []Answer {
	out := make([]Answer, len(q.Questions))
	for i, question := range q.Questions {
		out[i] = Answer{QuestionID: question.ID}
	}
	return out
}

func gradingView(q Question) grading.Question {
	return grading.Question{Type: string(q.Type), Points: q.Points, AnswerKey: q.AnswerKey}
}

func validateQuestions(qs []Question) error {
	if len(qs) == 0 {
		return fmt.Errorf("%w: quiz needs at least one question", ErrValidation)
	}
	seen := make(map[string]struct{}, len(qs))
	for _, q := range qs {
		if q.ID == "" {
			return fmt.Errorf("%w: question id is required", ErrValidation)
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%w: duplicate question id %s", ErrValidation, q.ID)
		}
		seen[q.ID] = struct{}{}
		if !q.Type.Valid() {
			return fmt.Errorf("%w: unknown question type %q", ErrValidation, q.Type)
		}
		if q.Points < 0 {
			return fmt.Errorf("%w: question %s has negative points", ErrValidation, q.ID)
		}
		if q.Type.Objective() && len(q.AnswerKey) == 0 {
			return fmt.Errorf("%w: question %s needs an answer key", ErrValidation, q.ID)
		}
	}
	return nil
}
