package quiz

import "context"

// AttemptListOpts filters ListAttempts for faculty dashboards and a
// student's own history.
type AttemptListOpts struct {
	QuizID    string
	StudentID string
	Status    AttemptStatus
	Limit     int
	Offset    int
}

// Store persists quizzes and attempts. Implementations must guarantee at
// most one in_progress attempt per (quiz, student) and must make
// UpdateAttempt an atomic compare-and-swap on Attempt.Version so that
// concurrent mutations of one attempt serialize.
type Store interface {
	PutQuiz(ctx context.Context, q Quiz) error
	GetQuiz(ctx context.Context, id string) (Quiz, error)

	// CreateAttempt inserts a new attempt. It fails with ErrAttemptExists
	// when an in_progress attempt for the same (quiz, student) already
	// exists.
	CreateAttempt(ctx context.Context, a Attempt) error

	GetAttempt(ctx context.Context, id string) (Attempt, error)

	// UpdateAttempt writes a mutated attempt if and only if the stored
	// version still equals a.Version, then bumps the version. It fails with
	// ErrConflict when another writer got there first.
	UpdateAttempt(ctx context.Context, a Attempt) (Attempt, error)

	// ActiveAttempt returns the in_progress attempt for (quiz, student),
	// or ErrNotFound when there is none.
	ActiveAttempt(ctx context.Context, quizID, studentID string) (Attempt, error)

	// HasTerminalAttempt reports whether a completed or graded attempt
	// exists for (quiz, student).
	HasTerminalAttempt(ctx context.Context, quizID, studentID string) (bool, error)

	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error)
}
