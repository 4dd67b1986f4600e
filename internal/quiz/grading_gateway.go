package quiz

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campusgrid/campus-lms/internal/events"
)

// AttemptItem is the grader's per-question view of an attempt: the
// question with its key alongside whatever the student submitted.
type AttemptItem struct {
	QuestionID   string       `json:"question_id"`
	Type         QuestionType `json:"type"`
	Prompt       string       `json:"prompt,omitempty"`
	Points       float64      `json:"points"`
	AnswerKey    []string     `json:"answer_key,omitempty"`
	Selected     []string     `json:"selected,omitempty"`
	Text         string       `json:"text,omitempty"`
	IsCorrect    *bool        `json:"is_correct,omitempty"`
	PointsEarned float64      `json:"points_earned"`
	Feedback     string       `json:"feedback,omitempty"`
	NeedsManual  bool         `json:"needs_manual"`
}

// AttemptItems lists the grading view of an attempt for an authorized
// grader.
func (s *Service) AttemptItems(ctx context.Context, graderID, attemptID string) ([]AttemptItem, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	q, err := s.store.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return nil, err
	}
	if err := s.requireGrader(ctx, graderID, q.CourseID); err != nil {
		return nil, err
	}
	items := make([]AttemptItem, 0, len(q.Questions))
	for _, question := range q.Questions {
		item := AttemptItem{
			QuestionID:  question.ID,
			Type:        question.Type,
			Prompt:      question.Prompt,
			Points:      question.Points,
			AnswerKey:   question.AnswerKey,
			NeedsManual: !question.Type.Objective(),
		}
		if ans := a.Answer(question.ID); ans != nil {
			item.Selected = ans.Selected
			item.Text = ans.Text
			item.IsCorrect = ans.IsCorrect
			item.PointsEarned = ans.PointsEarned
			item.Feedback = ans.Feedback
		}
		items = append(items, item)
	}
	return items, nil
}

// ApplyManualGrades finalizes a completed attempt with instructor-supplied
// grades. Overrides are authoritative: the named answer's correctness,
// points and feedback are replaced wholesale, then totals are recomputed
// over every answer, auto-graded ones included.
func (s *Service) ApplyManualGrades(ctx context.Context, attemptID, graderID string, overrides map[string]ManualGradeInput, overallFeedback string, now time.Time) (Attempt, error) {
	a, err := s.applyOverrides(ctx, attemptID, graderID, overrides, overallFeedback, now, StatusCompleted)
	if err != nil {
		return Attempt{}, err
	}
	s.emitGraded(ctx, events.TypeAttemptGraded, a)
	s.log.Info("attempt manually graded", zap.String("attempt_id", a.ID),
		zap.String("graded_by", graderID), zap.Float64("total_score", a.TotalScore))
	return a, nil
}

// RegradeAttempt applies audited overrides to an attempt that is already
// graded. Same rules as ApplyManualGrades; the event trail records it as
// a regrade.
func (s *Service) RegradeAttempt(ctx context.Context, attemptID, graderID string, overrides map[string]ManualGradeInput, overallFeedback string, now time.Time) (Attempt, error) {
	a, err := s.applyOverrides(ctx, attemptID, graderID, overrides, overallFeedback, now, StatusGraded)
	if err != nil {
		return Attempt{}, err
	}
	s.emitGraded(ctx, events.TypeAttemptRegraded, a)
	s.log.Info("attempt regraded", zap.String("attempt_id", a.ID), zap.String("graded_by", graderID))
	return a, nil
}

// ReopenAttempt is an administrative escape hatch: it returns a terminal
// attempt to in_progress, clearing totals and the grading record. Not a
// student-facing operation.
func (s *Service) ReopenAttempt(ctx context.Context, attemptID, adminID string) (Attempt, error) {
	a, err := s.mutateAttempt(ctx, attemptID, func(a *Attempt, q Quiz) error {
		caps, err := s.access.CapabilitiesFor(ctx, adminID, q.CourseID)
		if err != nil {
			return err
		}
		if !caps.Administrator {
			return fmt.Errorf("user %s: %w", adminID, ErrNotAuthorized)
		}
		if !a.Terminal() {
			return fmt.Errorf("attempt %s is %s: %w", a.ID, a.Status, ErrAttemptNotCompleted)
		}
		a.Status = StatusInProgress
		a.EndedAt = nil
		a.GradedAt = nil
		a.GradedBy = ""
		a.TotalScore = 0
		a.Percentage = 0
		a.Feedback = ""
		return nil
	})
	if err != nil {
		return Attempt{}, err
	}
	s.events.Emit(ctx, events.Event{
		Type: events.TypeAttemptReopened,
		Key:  a.ID,
		Data: events.AttemptReopened{AttemptID: a.ID, StudentID: a.StudentID, AdminID: adminID},
	})
	s.log.Info("attempt reopened", zap.String("attempt_id", a.ID), zap.String("admin_id", adminID))
	return a, nil
}

func (s *Service) applyOverrides(ctx context.Context, attemptID, graderID string, overrides map[string]ManualGradeInput, overallFeedback string, now time.Time, want AttemptStatus) (Attempt, error) {
	if attemptID == "" || graderID == "" {
		return Attempt{}, fmt.Errorf("%w: attempt and grader are required", ErrValidation)
	}
	return s.mutateAttempt(ctx, attemptID, func(a *Attempt, q Quiz) error {
		if a.Status != want {
			return fmt.Errorf("attempt %s is %s: %w", a.ID, a.Status, ErrAttemptNotCompleted)
		}
		if err := s.requireGrader(ctx, graderID, q.CourseID); err != nil {
			return err
		}
		for qid, in := range overrides {
			question, ok := q.Question(qid)
			if !ok {
				return fmt.Errorf("question %s in quiz %s: %w", qid, q.ID, ErrNotFound)
			}
			if in.PointsEarned < 0 || in.PointsEarned > question.Points {
				return fmt.Errorf("%w: question %s grade %.2f outside [0, %.2f]",
					ErrValidation, qid, in.PointsEarned, question.Points)
			}
			slot := a.Answer(qid)
			if slot == nil {
				a.Answers = append(a.Answers, Answer{QuestionID: qid})
				slot = &a.Answers[len(a.Answers)-1]
			}
			slot.IsCorrect = in.IsCorrect
			slot.PointsEarned = in.PointsEarned
			slot.Feedback = in.Feedback
		}
		agg := aggregate(q, *a)
		a.TotalScore = agg.TotalScore
		a.Percentage = agg.Percentage
		a.Status = StatusGraded
		a.GradedBy = graderID
		graded := now
		a.GradedAt = &graded
		if overallFeedback != "" {
			a.Feedback = overallFeedback
		}
		return nil
	})
}

func (s *Service) requireGrader(ctx context.Context, graderID, courseID string) error {
	caps, err := s.access.CapabilitiesFor(ctx, graderID, courseID)
	if err != nil {
		return err
	}
	if !caps.CanGrade() {
		return fmt.Errorf("user %s on course %s: %w", graderID, courseID, ErrNotAuthorized)
	}
	return nil
}

func (s *Service) emitGraded(ctx context.Context, typ string, a Attempt) {
	title := ""
	if q, err := s.store.GetQuiz(ctx, a.QuizID); err == nil {
		title = q.Title
	}
	s.events.Emit(ctx, events.Event{
		Type: typ,
		Key:  a.ID,
		Data: events.AttemptGraded{AttemptID: a.ID, StudentID: a.StudentID, QuizTitle: title},
	})
}
