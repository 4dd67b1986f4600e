package quiz

import (
	"context"
	"sort"
	"sync"
)

// memoryStore keeps everything in maps behind one mutex. Operations here
// are short single-record transitions, so coarse locking is enough; the
// version check still applies so behavior matches the SQL store.
type memoryStore struct {
	mu       sync.Mutex
	quizzes  map[string]Quiz
	attempts map[string]Attempt
}

func NewMemoryStore() Store {
	return &memoryStore{
		quizzes:  map[string]Quiz{},
		attempts: map[string]Attempt{},
	}
}

func (m *memoryStore) PutQuiz(_ context.Context, q Quiz) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quizzes[q.ID] = q
	return nil
}

func (m *memoryStore) GetQuiz(_ context.Context, id string) (Quiz, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quizzes[id]
	if !ok {
		return Quiz{}, ErrNotFound
	}
	return q, nil
}

func (m *memoryStore) CreateAttempt(_ context.Context, a Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ex := range m.attempts {
		if ex.QuizID == a.QuizID && ex.StudentID == a.StudentID && ex.Status == StatusInProgress {
			return ErrAttemptExists
		}
	}
	m.attempts[a.ID] = cloneAttempt(a)
	return nil
}

func (m *memoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrNotFound
	}
	return cloneAttempt(a), nil
}

func (m *memoryStore) UpdateAttempt(_ context.Context, a Attempt) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.attempts[a.ID]
	if !ok {
		return Attempt{}, ErrNotFound
	}
	if cur.Version != a.Version {
		return Attempt{}, ErrConflict
	}
	next := cloneAttempt(a)
	next.Version++
	m.attempts[a.ID] = next
	return cloneAttempt(next), nil
}

func (m *memoryStore) ActiveAttempt(_ context.Context, quizID, studentID string) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.QuizID == quizID && a.StudentID == studentID && a.Status == StatusInProgress {
			return cloneAttempt(a), nil
		}
	}
	return Attempt{}, ErrNotFound
}

func (m *memoryStore) HasTerminalAttempt(_ context.Context, quizID, studentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.QuizID == quizID && a.StudentID == studentID && a.Status != StatusInProgress {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryStore) ListAttempts(_ context.Context, opts AttemptListOpts) ([]Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Attempt, 0)
	for _, a := range m.attempts {
		if opts.QuizID != "" && a.QuizID != opts.QuizID {
			continue
		}
		if opts.StudentID != "" && a.StudentID != opts.StudentID {
			continue
		}
		if opts.Status != "" && a.Status != opts.Status {
			continue
		}
		out = append(out, cloneAttempt(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []Attempt{}, nil
		}
		out = out[opts.Offset:]
	}
	// Same default cap as the SQL store.
	limit := opts.Limit
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func cloneAttempt(a Attempt) Attempt {
	out := a
	out.Answers = make([]Answer, len(a.Answers))
	copy(out.Answers, a.Answers)
	for i := range out.Answers {
		if a.Answers[i].Selected != nil {
			out.Answers[i].Selected = append([]string(nil), a.Answers[i].Selected...)
		}
		if a.Answers[i].IsCorrect != nil {
			v := *a.Answers[i].IsCorrect
			out.Answers[i].IsCorrect = &v
		}
	}
	if a.EndedAt != nil {
		t := *a.EndedAt
		out.EndedAt = &t
	}
	if a.GradedAt != nil {
		t := *a.GradedAt
		out.GradedAt = &t
	}
	return out
}
