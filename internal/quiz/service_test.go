package quiz

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/campusgrid/campus-lms/internal/events"
	"github.com/campusgrid/campus-lms/internal/grading"
	"github.com/campusgrid/campus-lms/internal/roster"
)

// fakeRoster hands out fixed capabilities per user ID.
type fakeRoster struct {
	caps    map[string]roster.Capabilities
	faculty []string
	student []string
}

func (f *fakeRoster) CapabilitiesFor(_ context.Context, userID, _ string) (roster.Capabilities, error) {
	return f.caps[userID], nil
}
func (f *fakeRoster) CourseFaculty(_ context.Context, _ string) ([]string, error) {
	return f.faculty, nil
}
func (f *fakeRoster) EnrolledStudents(_ context.Context, _ string) ([]string, error) {
	return f.student, nil
}

// captureEmitter records every emitted event.
type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(_ context.Context, e events.Event) {
	c.events = append(c.events, e)
}

func (c *captureEmitter) last() events.Event {
	if len(c.events) == 0 {
		return events.Event{}
	}
	return c.events[len(c.events)-1]
}

// conflictStore fails the first n attempt updates with ErrConflict.
type conflictStore struct {
	Store
	failures int
}

func (c *conflictStore) UpdateAttempt(ctx context.Context, a Attempt) (Attempt, error) {
	if c.failures > 0 {
		c.failures--
		return Attempt{}, ErrConflict
	}
	return c.Store.UpdateAttempt(ctx, a)
}

var testWindow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func testQuiz() Quiz {
	return Quiz{
		ID:       "quiz-1",
		CourseID: "course-1",
		Title:    "Midterm Review",
		StartAt:  testWindow,
		EndAt:    testWindow.Add(2 * time.Hour),
		Questions: []Question{
			{ID: "q1", Type: TypeSingleChoice, Points: 2,
				Options:   []Option{{ID: "A"}, {ID: "B"}, {ID: "C"}},
				AnswerKey: []string{"B"}},
			{ID: "q2", Type: TypeEssay, Points: 5, Prompt: "Explain."},
		},
	}
}

func testService(t *testing.T) (*Service, Store, *captureEmitter, *fakeRoster) {
	t.Helper()
	store := NewMemoryStore()
	emitter := &captureEmitter{}
	access := &fakeRoster{
		caps: map[string]roster.Capabilities{
			"alice": {EnrolledStudent: true},
			"bob":   {EnrolledStudent: true},
			"prof":  {CourseFaculty: true},
			"root":  {Administrator: true},
		},
		faculty: []string{"prof"},
		student: []string{"alice", "bob"},
	}
	svc := NewService(store, grading.NewDefaultGrader(), access, emitter, zap.NewNop())
	return svc, store, emitter, access
}

func mustSavePublished(t *testing.T, svc *Service, q Quiz) Quiz {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.SaveQuiz(ctx, "prof", q); err != nil {
		t.Fatalf("SaveQuiz: %v", err)
	}
	out, err := svc.PublishQuiz(ctx, "prof", q.ID)
	if err != nil {
		t.Fatalf("PublishQuiz: %v", err)
	}
	return out
}

func TestSaveQuizValidation(t *testing.T) {
	svc, _, _, _ := testService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(q *Quiz)
	}{
		{"missing title", func(q *Quiz) { q.Title = "" }},
		{"window inverted", func(q *Quiz) { q.EndAt = q.StartAt.Add(-time.Hour) }},
		{"no questions", func(q *Quiz) { q.Questions = nil }},
		{"duplicate question id", func(q *Quiz) { q.Questions[1].ID = q.Questions[0].ID }},
		{"unknown type", func(q *Quiz) { q.Questions[0].Type = "matching" }},
		{"negative points", func(q *Quiz) { q.Questions[0].Points = -1 }},
		{"objective without key", func(q *Quiz) { q.Questions[0].AnswerKey = nil }},
	}
	for _, tc := range cases {
		q := testQuiz()
		tc.mutate(&q)
		if _, err := svc.SaveQuiz(ctx, "prof", q); !errors.Is(err, ErrValidation) {
			t.Errorf("%s: want ErrValidation, got %v", tc.name, err)
		}
	}

	if _, err := svc.SaveQuiz(ctx, "alice", testQuiz()); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("student save: want ErrNotAuthorized, got %v", err)
	}
}

// Publication freezes the question bank: a published quiz cannot be
// rewritten underneath attempts in flight.
func TestSaveQuizPublishedIsImmutable(t *testing.T) {
	svc, _, _, _ := testService(t)
	ctx := context.Background()
	mustSavePublished(t, svc, testQuiz())
	now := testWindow.Add(time.Minute)

	a, err := svc.StartAttempt(ctx, "alice", "quiz-1", now)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	if _, err := svc.RecordAnswer(ctx, a.ID, "alice", "q1", Submission{Selected: []string{"B"}}); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}

	hostile := testQuiz()
	hostile.Published = false
	hostile.Questions[0].AnswerKey = []string{"A"}
	hostile.Questions[0].Points = 100
	if _, err := svc.SaveQuiz(ctx, "prof", hostile); !errors.Is(err, ErrQuizPublished) {
		t.Fatalf("rewrite published quiz: want ErrQuizPublished, got %v", err)
	}

	got, err := svc.QuizFor(ctx, "prof", "quiz-1")
	if err != nil {
		t.Fatalf("QuizFor: %v", err)
	}
	if !got.Published {
		t.Fatal("published quiz was withdrawn by a save")
	}
	if q1, _ := got.Question("q1"); q1.AnswerKey[0] != "B" || q1.Points != 2 {
		t.Fatalf("published question changed: %+v", q1)
	}

	// The open attempt still grades against the original key.
	a, err = svc.CompleteAttempt(ctx, a.ID, "alice", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("CompleteAttempt: %v", err)
	}
	if a.TotalScore != 2 {
		t.Fatalf("score = %v, want 2", a.TotalScore)
	}
}

// Drafts stay editable until they are published.
func TestSaveQuizDraftStaysEditable(t *testing.T) {
	svc, _, _, _ := testService(t)
	ctx := context.Background()
	if _, err := svc.SaveQuiz(ctx, "prof", testQuiz()); err != nil {
		t.Fatalf("SaveQuiz: %v", err)
	}
	q := testQuiz()
	q.Title = "Midterm Review v2"
	q.Questions[0].Points = 4
	saved, err := svc.SaveQuiz(ctx, "prof", q)
	if err != nil {
		t.Fatalf("SaveQuiz draft edit: %v", err)
	}
	if saved.Title != "Midterm Review v2" {
		t.Fatalf("draft edit lost: %+v", saved)
	}
}

// SaveQuiz never sets the publish flag itself; publication goes through
// PublishQuiz so the published event always fires.
func TestSaveQuizCannotSelfPublish(t *testing.T) {
	svc, _, emitter, _ := testService(t)
	ctx := context.Background()

	q := testQuiz()
	q.Published = true
	saved, err := svc.SaveQuiz(ctx, "prof", q)
	if err != nil {
		t.Fatalf("SaveQuiz: %v", err)
	}
	if saved.Published {
		t.Fatal("save published the quiz directly")
	}
	if len(emitter.events) != 0 {
		t.Fatalf("save emitted %d events", len(emitter.events))
	}
	if _, err := svc.StartAttempt(ctx, "alice", "quiz-1", testWindow); !errors.Is(err, ErrQuizNotActive) {
		t.Fatalf("start on unpublished save: want ErrQuizNotActive, got %v", err)
	}
}

func TestPublishQuizIdempotentAndNotifies(t *testing.T) {
	svc, _, emitter, _ := testService(t)
	ctx := context.Background()

	mustSavePublished(t, svc, testQuiz())
	ev := emitter.last()
	if ev.Type != events.TypeQuizPublished {
		t.Fatalf("event type = %q, want %q", ev.Type, events.TypeQuizPublished)
	}
	data := ev.Data.(events.QuizPublished)
	if len(data.StudentIDs) != 2 {
		t.Fatalf("published event students = %v", data.StudentIDs)
	}

	// Publishing again is a no-op and emits nothing.
	n := len(emitter.events)
	if _, err := svc.PublishQuiz(ctx, "prof", "quiz-1"); err != nil {
		t.Fatalf("republish: %v", err)
	}
	if len(emitter.events) != n {
		t.Fatalf("republish emitted %d extra events", len(emitter.events)-n)
	}
}

func TestQuizForSanitizesForStudents(t *testing.T) {
	svc, _, _, _ := testService(t)
	ctx := context.Background()
	mustSavePublished(t, svc, testQuiz())

	got, err := svc.QuizFor(ctx, "alice", "quiz-1")
	if err != nil {
		t.Fatalf("QuizFor student: %v", err)
	}
	for _, q := range got.Questions {
		if q.AnswerKey != nil {
			t.Fatalf("student view leaked answer key on %s", q.ID)
		}
	}

	got, err = svc.QuizFor(ctx, "prof", "quiz-1")
	if err != nil {
		t.Fatalf("QuizFor faculty: %v", err)
	}
	if len(got.Questions[0].AnswerKey) == 0 {
		t.Fatal("faculty view lost the answer key")
	}
}

func TestStartAttemptIdempotentResume(t *testing.T) {
	svc, _, _, _ := testService(t)
	ctx := context.Background()
	mustSavePublished(t, svc, testQuiz())
	now := testWindow.Add(10 * time.Minute)

	a1, err := svc.StartAttempt(ctx, "alice", "quiz-1", now)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	if a1.Status != StatusInProgress || len(a1.Answers) != 2 {
		t.Fatalf("attempt = %+v", a1)
	}

	a2, err := svc.StartAttempt(ctx, "alice", "quiz-1", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("second StartAttempt: %v", err)
	}
	if a2.ID != a1.ID {
		t.Fatalf("resume returned new attempt %s, want %s", a2.ID, a1.ID)
	}

	// Another student gets their own attempt.
	b, err := svc.StartAttempt(ctx, "bob", "quiz-1", now)
	if err != nil {
		t.Fatalf("bob StartAttempt: %v", err)
	}
	if b.ID == a1.ID {
		t.Fatal("attempts shared across students")
	}
}

func TestStartAttemptWindowAndGating(t *testing.T) {
	svc, _, _, _ := testService(t)
	ctx := context.Background()
	q := mustSavePublished(t, svc, testQuiz())

	// End of window is inclusive.
	if _, err := svc.StartAttempt(ctx, "alice", "quiz-1", q.EndAt); err != nil {
		t.Fatalf("start at window end: %v", err)
	}
	if _, err := svc.StartAttempt(ctx, "bob", "quiz-1", q.EndAt.Add(time.Second)); !errors.Is(err, ErrQuizNotActive) {
		t.Fatalf("start after window: want ErrQuizNotActive, got %v", err)
	}
	if _, err := svc.StartAttempt(ctx, "bob", "quiz-1", q.StartAt.Add(-time.Second)); !errors.Is(err, ErrQuizNotActive) {
		t.Fatalf("start before window: want ErrQuizNotActive, got %v", err)
	}

	// Not enrolled.
	if _, err := svc.StartAttempt(ctx, "mallory", "quiz-1", q.StartAt); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("unenrolled start: want ErrNotAuthorized, got %v", err)
	}
	if _, err := svc.StartAttempt(ctx, "alice", "missing", q.StartAt); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing quiz: want ErrNotFound, got %v", err)
	}
	if _, err := svc.StartAttempt(ctx, "", "quiz-1", q.StartAt); !errors.Is(err, ErrValidation) {
		t.Fatalf("blank student: want ErrValidation, got %v", err)
	}
}

func TestStartAttemptUnpublished(t *testing.T) {
	svc, _, _, _ := testService(t)
	ctx := context.Background()
	if _, err := svc.SaveQuiz(ctx, "prof", testQuiz()); err != nil {
		t.Fatalf("SaveQuiz: %v", err)
	}
	if _, err := svc.StartAttempt(ctx, "alice", "quiz-1", testWindow); !errors.Is(err, ErrQuizNotActive) {
		t.Fatalf("unpublished start: want ErrQuizNotActive, got %v", err)
	}
}

func TestStartAttemptRepeatPolicy(t *testing.T) {
	svc, _, _, _ := testService(t)
	ctx := context.Background()
	mustSavePublished(t, svc, testQuiz())
	now := testWindow.Add(5 * time.Minute)

	a, err := svc.StartAttempt(ctx, "alice", "quiz-1", now)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	if _, err := svc.CompleteAttempt(ctx, a.ID, "alice", now.Add(time.Minute)); err != nil {
		t.Fatalf("CompleteAttempt: %v", err)
	}
	if _, err := svc.StartAttempt(ctx, "alice", "quiz-1", now.Add(2*time.Minute)); !errors.Is(err, ErrAttemptExists) {
		t.Fatalf("repeat start: want ErrAttemptExists, got %v", err)
	}

	// With repeats allowed the same sequence opens a fresh attempt.
	q2 := testQuiz()
	q2.ID = "quiz-2"
	q2.AllowRepeats = true
	mustSavePublished(t, svc, q2)
	a1, err := svc.StartAttempt(ctx, "alice", "quiz-2", now)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	if _, err := svc.CompleteAttempt(ctx, a1.ID, "alice", now.Add(time.Minute)); err != nil {
		t.Fatalf("CompleteAttempt: %v", err)
	}
	a2, err := svc.StartAttempt(ctx, "alice", "quiz-2", now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("repeat-allowed start: %v", err)
	}
	if a2.ID == a1.ID {
		t.Fatal("repeat start resumed the finished attempt")
	}
}

func TestRecordAnswerAutoGradesObjective(t *testing.T) {
	svc, _, _, _ := testService(t)
	ctx := context.Background()
	mustSavePublished(t, svc, testQuiz())
	now := testWindow.Add(time.Minute)

	a, err := svc.StartAttempt(ctx, "alice", "quiz-1", now)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}

	a, err = svc.RecordAnswer(ctx, a.ID, "alice", "q1", Submission{Selected: []string{"A"}})
	if err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	ans := a.Answer("q1")
	if ans.IsCorrect == nil || *ans.IsCorrect || ans.PointsEarned != 0 {
		t.Fatalf("wrong answer graded as %+v", ans)
	}

	// Resubmission overwrites the slot.
	a, err = svc.RecordAnswer(ctx, a.ID, "alice", "q1", Submission{Selected: []string{"B"}})
	if err != nil {
		t.Fatalf("RecordAnswer resubmit: %v", err)
	}
	ans = a.Answer("q1")
	if ans.IsCorrect == nil || !*ans.IsCorrect || ans.PointsEarned != 2 {
		t.Fatalf("corrected answer graded as %+v", ans)
	}
	if len(a.Answers) != 2 {
		t.Fatalf("resubmit grew answers to %d", len(a.Answers))
	}

	// Subjective answers stay ungraded.
	a, err = svc.RecordAnswer(ctx, a.ID, "alice", "q2", Submission{Text: "because"})
	if err != nil {
		t.Fatalf("RecordAnswer essay: %v", err)
	}
	if ans := a.Answer("q2"); ans.IsCorrect != nil || ans.PointsEarned != 0 || ans.Text != "because" {
		t.Fatalf("essay slot = %+v", ans)
	}
}

func TestRecordAnswerGuards(t *testing.T) {
	svc, _, _, _ := testService(t)
	ctx := context.Background()
	mustSavePublished(t, svc, testQuiz())
	now := testWindow.Add(time.Minute)

	a, err := svc.StartAttempt(ctx, "alice", "quiz-1", now)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}

	if _, err := svc.RecordAnswer(ctx, a.ID, "bob", "q1", Submission{Selected: []string{"B"}}); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("foreign write: want ErrNotOwner, got %v", err)
	}
	if _, err := svc.RecordAnswer(ctx, a.ID, "alice", "nope", Submission{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown question: want ErrNotFound, got %v", err)
	}
	if _, err := svc.RecordAnswer(ctx, a.ID, "alice", "", Submission{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("blank question: want ErrValidation, got %v", err)
	}

	if _, err := svc.CompleteAttempt(ctx, a.ID, "alice", now.Add(time.Minute)); err != nil {
		t.Fatalf("CompleteAttempt: %v", err)
	}
	if _, err := svc.RecordAnswer(ctx, a.ID, "alice", "q1", Submission{Selected: []string{"B"}}); !errors.Is(err, ErrAttemptClosed) {
		t.Fatalf("write after close: want ErrAttemptClosed, got %v", err)
	}
}

func TestCompleteAttemptAllObjectiveGradesImmediately(t *testing.T) {
	svc, _, emitter, _ := testService(t)
	ctx := context.Background()

	q := testQuiz()
	q.Questions = []Question{
		{ID: "q1", Type: TypeSingleChoice, Points: 2, AnswerKey: []string{"B"}},
		{ID: "q2", Type: TypeTrueFalse, Points: 3, AnswerKey: []string{"true"}},
	}
	mustSavePublished(t, svc, q)
	now := testWindow.Add(time.Minute)

	a, err := svc.StartAttempt(ctx, "alice", "quiz-1", now)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	if _, err := svc.RecordAnswer(ctx, a.ID, "alice", "q1", Submission{Selected: []string{"B"}}); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	if _, err := svc.RecordAnswer(ctx, a.ID, "alice", "q2", Submission{Selected: []string{"TRUE"}}); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	a, err = svc.CompleteAttempt(ctx, a.ID, "alice", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("CompleteAttempt: %v", err)
	}
	if a.Status != StatusGraded {
		t.Fatalf("status = %s, want graded", a.Status)
	}
	if a.TotalScore != 5 || a.Percentage != 100 {
		t.Fatalf("score = %v / %v%%", a.TotalScore, a.Percentage)
	}
	if a.EndedAt == nil || a.GradedAt == nil {
		t.Fatal("timestamps missing on graded attempt")
	}
	ev := emitter.last()
	if ev.Type != events.TypeAttemptGraded {
		t.Fatalf("event type = %q", ev.Type)
	}
	data := ev.Data.(events.AttemptGraded)
	if data.AttemptID != a.ID || data.StudentID != "alice" || data.QuizTitle != "Midterm Review" {
		t.Fatalf("graded event payload = %+v", data)
	}
}

func TestCompleteAttemptParksForManualGrading(t *testing.T) {
	svc, _, emitter, _ := testService(t)
	ctx := context.Background()
	mustSavePublished(t, svc, testQuiz())
	now := testWindow.Add(time.Minute)

	a, err := svc.StartAttempt(ctx, "alice", "quiz-1", now)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	if _, err := svc.RecordAnswer(ctx, a.ID, "alice", "q1", Submission{Selected: []string{"B"}}); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	if _, err := svc.RecordAnswer(ctx, a.ID, "alice", "q2", Submission{Text: "essay text"}); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	a, err = svc.CompleteAttempt(ctx, a.ID, "alice", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("CompleteAttempt: %v", err)
	}
	if a.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", a.Status)
	}
	if a.TotalScore != 2 {
		t.Fatalf("interim score = %v, want 2", a.TotalScore)
	}
	if a.GradedAt != nil {
		t.Fatal("GradedAt set before manual grading")
	}
	ev := emitter.last()
	if ev.Type != events.TypeAttemptNeedsGrading {
		t.Fatalf("event type = %q", ev.Type)
	}
	data := ev.Data.(events.AttemptNeedsGrading)
	if data.AttemptID != a.ID || data.QuizTitle != "Midterm Review" {
		t.Fatalf("needs-grading payload = %+v", data)
	}
	if len(data.FacultyIDs) != 1 || data.FacultyIDs[0] != "prof" {
		t.Fatalf("needs-grading faculty = %v", data.FacultyIDs)
	}

	// Completing twice is rejected.
	if _, err := svc.CompleteAttempt(ctx, a.ID, "alice", now.Add(2*time.Minute)); !errors.Is(err, ErrAttemptClosed) {
		t.Fatalf("double complete: want ErrAttemptClosed, got %v", err)
	}
}

// The mixed quiz walked end to end: a correct 2-point choice plus a
// 5-point essay graded 4 lands at 6/7 = 85.7%.
func TestManualGradingScenario(t *testing.T) {
	svc, _, emitter, _ := testService(t)
	ctx := context.Background()
	mustSavePublished(t, svc, testQuiz())
	now := testWindow.Add(time.Minute)

	a, err := svc.StartAttempt(ctx, "alice", "quiz-1", now)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	if _, err := svc.RecordAnswer(ctx, a.ID, "alice", "q1", Submission{Selected: []string{"B"}}); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	if _, err := svc.RecordAnswer(ctx, a.ID, "alice", "q2", Submission{Text: "long answer"}); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	if _, err := svc.CompleteAttempt(ctx, a.ID, "alice", now.Add(time.Minute)); err != nil {
		t.Fatalf("CompleteAttempt: %v", err)
	}

	yes := true
	graded, err := svc.ApplyManualGrades(ctx, a.ID, "prof", map[string]ManualGradeInput{
		"q2": {IsCorrect: &yes, PointsEarned: 4, Feedback: "solid"},
	}, "good work", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("ApplyManualGrades: %v", err)
	}
	if graded.Status != StatusGraded {
		t.Fatalf("status = %s", graded.Status)
	}
	if graded.TotalScore != 6 {
		t.Fatalf("total = %v, want 6", graded.TotalScore)
	}
	if graded.Percentage != 85.7 {
		t.Fatalf("percentage = %v, want 85.7", graded.Percentage)
	}
	if graded.GradedBy != "prof" || graded.GradedAt == nil || graded.Feedback != "good work" {
		t.Fatalf("grading record = %+v", graded)
	}
	if ans := graded.Answer("q2"); ans.Feedback != "solid" || ans.PointsEarned != 4 {
		t.Fatalf("essay slot = %+v", ans)
	}
	ev := emitter.last()
	if ev.Type != events.TypeAttemptGraded {
		t.Fatalf("event type = %q", ev.Type)
	}
	data := ev.Data.(events.AttemptGraded)
	if data.StudentID != "alice" || data.QuizTitle != "Midterm Review" {
		t.Fatalf("graded payload = %+v", data)
	}
}

func TestApplyManualGradesGuards(t *testing.T) {
	svc, _, _, _ := testService(t)
	ctx := context.Background()
	mustSavePublished(t, svc, testQuiz())
	now := testWindow.Add(time.Minute)

	a, err := svc.StartAttempt(ctx, "alice", "quiz-1", now)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}

	// Grading an attempt still in progress.
	if _, err := svc.ApplyManualGrades(ctx, a.ID, "prof", nil, "", now); !errors.Is(err, ErrAttemptNotCompleted) {
		t.Fatalf("grade in-progress: want ErrAttemptNotCompleted, got %v", err)
	}

	if _, err := svc.CompleteAttempt(ctx, a.ID, "alice", now.Add(time.Minute)); err != nil {
		t.Fatalf("CompleteAttempt: %v", err)
	}

	// Non-grader.
	if _, err := svc.ApplyManualGrades(ctx, a.ID, "bob", nil, "", now); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("student grading: want ErrNotAuthorized, got %v", err)
	}
	// Unknown question in the override set.
	if _, err := svc.ApplyManualGrades(ctx, a.ID, "prof", map[string]ManualGradeInput{
		"nope": {PointsEarned: 1},
	}, "", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown override: want ErrNotFound, got %v", err)
	}
	// Points above the question maximum.
	if _, err := svc.ApplyManualGrades(ctx, a.ID, "prof", map[string]ManualGradeInput{
		"q2": {PointsEarned: 6},
	}, "", now); !errors.Is(err, ErrValidation) {
		t.Fatalf("over-max grade: want ErrValidation, got %v", err)
	}
	if _, err := svc.ApplyManualGrades(ctx, "missing", "prof", nil, "", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing attempt: want ErrNotFound, got %v", err)
	}
}

func TestRegradeAttempt(t *testing.T) {
	svc, _, emitter, _ := testService(t)
	ctx := context.Background()
	mustSavePublished(t, svc, testQuiz())
	now := testWindow.Add(time.Minute)

	a, _ := svc.StartAttempt(ctx, "alice", "quiz-1", now)
	svc.RecordAnswer(ctx, a.ID, "alice", "q1", Submission{Selected: []string{"B"}})
	svc.RecordAnswer(ctx, a.ID, "alice", "q2", Submission{Text: "v1"})
	svc.CompleteAttempt(ctx, a.ID, "alice", now.Add(time.Minute))
	if _, err := svc.ApplyManualGrades(ctx, a.ID, "prof", map[string]ManualGradeInput{
		"q2": {PointsEarned: 3},
	}, "", now.Add(time.Hour)); err != nil {
		t.Fatalf("ApplyManualGrades: %v", err)
	}

	// Regrade only works on graded attempts and replaces the prior grade.
	out, err := svc.RegradeAttempt(ctx, a.ID, "prof", map[string]ManualGradeInput{
		"q2": {PointsEarned: 5},
	}, "appeal accepted", now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("RegradeAttempt: %v", err)
	}
	if out.TotalScore != 7 || out.Percentage != 100 {
		t.Fatalf("regraded score = %v / %v%%", out.TotalScore, out.Percentage)
	}
	if emitter.last().Type != events.TypeAttemptRegraded {
		t.Fatalf("event type = %q", emitter.last().Type)
	}

	// Regrading a merely completed attempt is rejected.
	b, _ := svc.StartAttempt(ctx, "bob", "quiz-1", now)
	svc.CompleteAttempt(ctx, b.ID, "bob", now.Add(time.Minute))
	if _, err := svc.RegradeAttempt(ctx, b.ID, "prof", nil, "", now); !errors.Is(err, ErrAttemptNotCompleted) {
		t.Fatalf("regrade completed: want ErrAttemptNotCompleted, got %v", err)
	}
}

func TestReopenAttempt(t *testing.T) {
	svc, _, emitter, _ := testService(t)
	ctx := context.Background()
	mustSavePublished(t, svc, testQuiz())
	now := testWindow.Add(time.Minute)

	a, _ := svc.StartAttempt(ctx, "alice", "quiz-1", now)

	// Only terminal attempts reopen, and only for administrators.
	if _, err := svc.ReopenAttempt(ctx, a.ID, "root"); !errors.Is(err, ErrAttemptNotCompleted) {
		t.Fatalf("reopen in-progress: want ErrAttemptNotCompleted, got %v", err)
	}
	svc.CompleteAttempt(ctx, a.ID, "alice", now.Add(time.Minute))
	if _, err := svc.ReopenAttempt(ctx, a.ID, "prof"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("faculty reopen: want ErrNotAuthorized, got %v", err)
	}

	out, err := svc.ReopenAttempt(ctx, a.ID, "root")
	if err != nil {
		t.Fatalf("ReopenAttempt: %v", err)
	}
	if out.Status != StatusInProgress || out.EndedAt != nil || out.GradedAt != nil {
		t.Fatalf("reopened attempt = %+v", out)
	}
	if out.TotalScore != 0 || out.Percentage != 0 {
		t.Fatalf("reopened totals = %v / %v", out.TotalScore, out.Percentage)
	}
	if emitter.last().Type != events.TypeAttemptReopened {
		t.Fatalf("event type = %q", emitter.last().Type)
	}

	// The student can keep answering after the reopen.
	if _, err := svc.RecordAnswer(ctx, a.ID, "alice", "q1", Submission{Selected: []string{"B"}}); err != nil {
		t.Fatalf("answer after reopen: %v", err)
	}
}

func TestAttemptItemsAndVisibility(t *testing.T) {
	svc, _, _, _ := testService(t)
	ctx := context.Background()
	mustSavePublished(t, svc, testQuiz())
	now := testWindow.Add(time.Minute)

	a, _ := svc.StartAttempt(ctx, "alice", "quiz-1", now)
	svc.RecordAnswer(ctx, a.ID, "alice", "q1", Submission{Selected: []string{"B"}})

	items, err := svc.AttemptItems(ctx, "prof", a.ID)
	if err != nil {
		t.Fatalf("AttemptItems: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d", len(items))
	}
	if items[0].QuestionID != "q1" || items[0].NeedsManual || items[0].PointsEarned != 2 {
		t.Fatalf("item q1 = %+v", items[0])
	}
	if !items[1].NeedsManual {
		t.Fatalf("item q2 = %+v", items[1])
	}
	if _, err := svc.AttemptItems(ctx, "bob", a.ID); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("student grading view: want ErrNotAuthorized, got %v", err)
	}

	// AttemptFor: owner and graders only.
	if _, err := svc.AttemptFor(ctx, "alice", a.ID); err != nil {
		t.Fatalf("owner read: %v", err)
	}
	if _, err := svc.AttemptFor(ctx, "prof", a.ID); err != nil {
		t.Fatalf("faculty read: %v", err)
	}
	if _, err := svc.AttemptFor(ctx, "bob", a.ID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("peer read: want ErrNotOwner, got %v", err)
	}
}

func TestZeroPointQuizPercentage(t *testing.T) {
	svc, _, _, _ := testService(t)
	ctx := context.Background()

	q := testQuiz()
	q.Questions = []Question{{ID: "q1", Type: TypeTrueFalse, Points: 0, AnswerKey: []string{"true"}}}
	mustSavePublished(t, svc, q)
	now := testWindow.Add(time.Minute)

	a, _ := svc.StartAttempt(ctx, "alice", "quiz-1", now)
	svc.RecordAnswer(ctx, a.ID, "alice", "q1", Submission{Selected: []string{"true"}})
	out, err := svc.CompleteAttempt(ctx, a.ID, "alice", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("CompleteAttempt: %v", err)
	}
	if out.Percentage != 0 {
		t.Fatalf("zero-point percentage = %v, want 0", out.Percentage)
	}
}

func TestMutateAttemptRetriesConflictOnce(t *testing.T) {
	store := NewMemoryStore()
	emitter := &captureEmitter{}
	access := &fakeRoster{caps: map[string]roster.Capabilities{
		"alice": {EnrolledStudent: true},
		"prof":  {CourseFaculty: true},
	}}
	cs := &conflictStore{Store: store}
	svc := NewService(cs, grading.NewDefaultGrader(), access, emitter, zap.NewNop())
	ctx := context.Background()

	q := testQuiz()
	q.Published = true
	if err := store.PutQuiz(ctx, q); err != nil {
		t.Fatalf("PutQuiz: %v", err)
	}
	now := testWindow.Add(time.Minute)
	a, err := svc.StartAttempt(ctx, "alice", "quiz-1", now)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}

	// One conflict is absorbed by the retry.
	cs.failures = 1
	if _, err := svc.RecordAnswer(ctx, a.ID, "alice", "q1", Submission{Selected: []string{"B"}}); err != nil {
		t.Fatalf("RecordAnswer after single conflict: %v", err)
	}

	// Two back-to-back conflicts surface the error.
	cs.failures = 2
	if _, err := svc.RecordAnswer(ctx, a.ID, "alice", "q1", Submission{Selected: []string{"A"}}); !errors.Is(err, ErrConflict) {
		t.Fatalf("double conflict: want ErrConflict, got %v", err)
	}
}

func TestListAttemptsFilters(t *testing.T) {
	svc, _, _, _ := testService(t)
	ctx := context.Background()
	q := testQuiz()
	q.AllowRepeats = true
	mustSavePublished(t, svc, q)
	now := testWindow.Add(time.Minute)

	a, _ := svc.StartAttempt(ctx, "alice", "quiz-1", now)
	svc.StartAttempt(ctx, "bob", "quiz-1", now.Add(time.Second))
	svc.CompleteAttempt(ctx, a.ID, "alice", now.Add(time.Minute))

	all, err := svc.ListAttempts(ctx, AttemptListOpts{QuizID: "quiz-1"})
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("all attempts = %d", len(all))
	}
	mine, err := svc.ListAttempts(ctx, AttemptListOpts{StudentID: "alice"})
	if err != nil {
		t.Fatalf("ListAttempts by student: %v", err)
	}
	if len(mine) != 1 || mine[0].StudentID != "alice" {
		t.Fatalf("alice attempts = %+v", mine)
	}
	open, err := svc.ListAttempts(ctx, AttemptListOpts{Status: StatusInProgress})
	if err != nil {
		t.Fatalf("ListAttempts by status: %v", err)
	}
	if len(open) != 1 || open[0].StudentID != "bob" {
		t.Fatalf("open attempts = %+v", open)
	}
}
