// Package notify is the boundary to the notification collaborator. The
// real delivery channel (email, push) lives outside this service; the
// logging notifier records what would be delivered and to whom.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/campusgrid/campus-lms/internal/events"
)

// LogNotifier implements events.Handler by logging the delivery intent.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier { return &LogNotifier{log: log} }

func (n *LogNotifier) Handle(_ context.Context, e events.Event) error {
	switch p := e.Data.(type) {
	case events.AttemptGraded:
		n.log.Info("notify student: attempt graded",
			zap.String("attempt_id", p.AttemptID),
			zap.String("student_id", p.StudentID),
			zap.String("quiz_title", p.QuizTitle))
	case events.AttemptNeedsGrading:
		n.log.Info("notify faculty: attempt awaiting manual grading",
			zap.String("attempt_id", p.AttemptID),
			zap.String("quiz_title", p.QuizTitle),
			zap.Strings("faculty_ids", p.FacultyIDs))
	case events.QuizPublished:
		n.log.Info("notify students: quiz published",
			zap.String("quiz_id", p.QuizID),
			zap.String("quiz_title", p.QuizTitle),
			zap.Int("student_count", len(p.StudentIDs)))
	default:
		n.log.Debug("event without notification mapping", zap.String("type", e.Type))
	}
	return nil
}
