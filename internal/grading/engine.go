package grading

import "strings"

// Question is the minimal view of a question needed for grading.
// Keep this in sync with whatever fields your store uses.
type Question struct {
	Type      string
	Points    float64
	AnswerKey []string
}

// Submission carries what the student handed in for one question:
// selected option IDs for choice types, free text for the rest.
type Submission struct {
	Selected []string
	Text     string
}

// Result is the outcome of grading a single submission. IsCorrect is nil
// for types the engine declines to grade.
type Result struct {
	IsCorrect    *bool
	PointsEarned float64
	MaxPoints    float64
	NeedsManual  bool
}

// Strategy grades a single question type.
type Strategy interface {
	Grade(q Question, sub Submission) Result
}

// Grader routes by question type to the correct Strategy. Grading never
// fails: an empty or malformed submission is simply incorrect for zero
// points. Structural validation belongs to the caller.
type Grader interface {
	Grade(q Question, sub Submission) Result
}

type defaultGrader struct {
	strategies map[string]Strategy
}

func (g *defaultGrader) Grade(q Question, sub Submission) Result {
	s, ok := g.strategies[q.Type]
	if !ok {
		// Unknown type: defer to a human rather than guess.
		return Result{MaxPoints: q.Points, NeedsManual: true}
	}
	return s.Grade(q, sub)
}

// NewDefaultGrader installs built-in strategies for the five question types.
func NewDefaultGrader() Grader {
	return &defaultGrader{
		strategies: map[string]Strategy{
			"single_choice": singleChoiceStrategy{},
			"true_false":    trueFalseStrategy{},
			"multi_select":  multiSelectStrategy{},
			"short_answer":  manualStrategy{},
			"essay":         manualStrategy{},
		},
	}
}

// --- Strategies ---

type singleChoiceStrategy struct{}

func (singleChoiceStrategy) Grade(q Question, sub Submission) Result {
	ok := len(sub.Selected) == 1 && len(q.AnswerKey) == 1 && sub.Selected[0] == q.AnswerKey[0]
	return objective(q, ok)
}

type trueFalseStrategy struct{}

func (trueFalseStrategy) Grade(q Question, sub Submission) Result {
	if len(sub.Selected) != 1 || len(q.AnswerKey) == 0 {
		return objective(q, false)
	}
	got := strings.ToLower(strings.TrimSpace(sub.Selected[0]))
	want := strings.ToLower(strings.TrimSpace(q.AnswerKey[0]))
	return objective(q, got != "" && got == want)
}

type multiSelectStrategy struct{}

// Correct iff the submitted set equals the key set exactly. Partial
// overlap earns nothing.
func (multiSelectStrategy) Grade(q Question, sub Submission) Result {
	if len(sub.Selected) == 0 || len(q.AnswerKey) == 0 {
		return objective(q, false)
	}
	return objective(q, setEqual(toSet(sub.Selected), toSet(q.AnswerKey)))
}

type manualStrategy struct{}

func (manualStrategy) Grade(q Question, _ Submission) Result {
	return Result{MaxPoints: q.Points, NeedsManual: true}
}

// helpers

func objective(q Question, correct bool) Result {
	res := Result{IsCorrect: &correct, MaxPoints: q.Points}
	if correct {
		res.PointsEarned = q.Points
	}
	return res
}

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[s] = struct{}{}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
