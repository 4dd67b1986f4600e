package quiz

import "time"

type QuestionType string

const (
	TypeSingleChoice QuestionType = "single_choice"
	TypeMultiSelect  QuestionType = "multi_select"
	TypeTrueFalse    QuestionType = "true_false"
	TypeShortAnswer  QuestionType = "short_answer"
	TypeEssay        QuestionType = "essay"
)

// Objective reports whether the type carries a deterministic answer key.
func (t QuestionType) Objective() bool {
	switch t {
	case TypeSingleChoice, TypeMultiSelect, TypeTrueFalse:
		return true
	}
	return false
}

func (t QuestionType) Valid() bool {
	switch t {
	case TypeSingleChoice, TypeMultiSelect, TypeTrueFalse, TypeShortAnswer, TypeEssay:
		return true
	}
	return false
}

type Option struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
}

type Question struct {
	ID      string       `json:"id"`
	Type    QuestionType `json:"type"`
	Prompt  string       `json:"prompt,omitempty"`
	Options []Option     `json:"options,omitempty"` // choice types only
	Points  float64      `json:"points"`
	// AnswerKey holds correct option IDs for choice types, or the canonical
	// "true"/"false" value. Empty for short_answer and essay.
	AnswerKey []string `json:"answer_key,omitempty"`
}

type Quiz struct {
	ID           string     `json:"id"`
	CourseID     string     `json:"course_id"`
	Title        string     `json:"title"`
	Published    bool       `json:"published"`
	StartAt      time.Time  `json:"start_at"`
	EndAt        time.Time  `json:"end_at"`
	AllowRepeats bool       `json:"allow_repeats"`
	Questions    []Question `json:"questions"`
	CreatedAt    int64      `json:"created_at,omitempty"`
}

// TotalPoints is derived from the question list, never stored, so it can
// not drift when questions change.
func (q Quiz) TotalPoints() float64 {
	var sum float64
	for _, qu := range q.Questions {
		sum += qu.Points
	}
	return sum
}

func (q Quiz) Question(id string) (Question, bool) {
	for _, qu := range q.Questions {
		if qu.ID == id {
			return qu, true
		}
	}
	return Question{}, false
}

// NeedsManualGrading reports whether any question requires human judgment.
func (q Quiz) NeedsManualGrading() bool {
	for _, qu := range q.Questions {
		if !qu.Type.Objective() {
			return true
		}
	}
	return false
}

// ActiveAt reports whether a student may start an attempt at the given
// instant. The end of the window is inclusive.
func (q Quiz) ActiveAt(now time.Time) bool {
	return q.Published && !now.Before(q.StartAt) && !now.After(q.EndAt)
}

// Sanitized returns a copy with answer keys stripped, safe to serve to
// students.
func (q Quiz) Sanitized() Quiz {
	out := q
	out.Questions = make([]Question, len(q.Questions))
	copy(out.Questions, q.Questions)
	for i := range out.Questions {
		out.Questions[i].AnswerKey = nil
	}
	return out
}

type AttemptStatus string

const (
	StatusInProgress AttemptStatus = "in_progress"
	StatusCompleted  AttemptStatus = "completed"
	StatusGraded     AttemptStatus = "graded"
)

// Submission is one student's response to one question.
type Submission struct {
	Selected []string `json:"selected,omitempty"` // option IDs or "true"/"false"
	Text     string   `json:"text,omitempty"`     // free text for subjective types
}

func (s Submission) Empty() bool { return len(s.Selected) == 0 && s.Text == "" }

// Answer is one graded (or not yet graded) slot of an attempt. IsCorrect
// stays nil until the auto-grader or a human grader has acted.
type Answer struct {
	QuestionID   string   `json:"question_id"`
	Selected     []string `json:"selected,omitempty"`
	Text         string   `json:"text,omitempty"`
	IsCorrect    *bool    `json:"is_correct,omitempty"`
	PointsEarned float64  `json:"points_earned"`
	Feedback     string   `json:"feedback,omitempty"`
}

// Attempt is one student's instance of taking a quiz. Answers holds one
// slot per quiz question, in question order, populated at creation.
type Attempt struct {
	ID         string        `json:"id"`
	QuizID     string        `json:"quiz_id"`
	StudentID  string        `json:"student_id"`
	Status     AttemptStatus `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	EndedAt    *time.Time    `json:"ended_at,omitempty"`
	Answers    []Answer      `json:"answers"`
	TotalScore float64       `json:"total_score"`
	Percentage float64       `json:"percentage"`
	Feedback   string        `json:"feedback,omitempty"`
	GradedBy   string        `json:"graded_by,omitempty"`
	GradedAt   *time.Time    `json:"graded_at,omitempty"`

	// Version guards concurrent mutation; every successful write bumps it.
	Version int64 `json:"version"`
}

func (a *Attempt) Answer(questionID string) *Answer {
	for i := range a.Answers {
		if a.Answers[i].QuestionID == questionID {
			return &a.Answers[i]
		}
	}
	return nil
}

func (a *Attempt) Terminal() bool {
	return a.Status == StatusCompleted || a.Status == StatusGraded
}

// ManualGradeInput replaces an answer's grade wholesale; it is not merged
// with the prior value.
type ManualGradeInput struct {
	IsCorrect    *bool   `json:"is_correct,omitempty"`
	PointsEarned float64 `json:"points_earned"`
	Feedback     string  `json:"feedback,omitempty"`
}
