package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SQLStore persists quizzes and attempts over database/sql, for the pgx
// and modernc sqlite drivers. Attempt updates are compare-and-swap on the
// version column; the partial unique index ux_attempts_open enforces the
// single-open-attempt rule even across processes.
type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func (s *SQLStore) PutQuiz(ctx context.Context, q Quiz) error {
	qj, err := json.Marshal(q.Questions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO quizzes (id,course_id,title,published,start_at,end_at,allow_repeats,questions_json,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET course_id=EXCLUDED.course_id, title=EXCLUDED.title,
			published=EXCLUDED.published, start_at=EXCLUDED.start_at, end_at=EXCLUDED.end_at,
			allow_repeats=EXCLUDED.allow_repeats, questions_json=EXCLUDED.questions_json`,
		q.ID, q.CourseID, q.Title, q.Published, q.StartAt.Unix(), q.EndAt.Unix(), q.AllowRepeats,
		string(qj), time.Now().Unix())
	return err
}

func (s *SQLStore) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,course_id,title,published,start_at,end_at,allow_repeats,questions_json,created_at
		FROM quizzes WHERE id=$1`, id)
	var q Quiz
	var startAt, endAt int64
	var qjson string
	err := row.Scan(&q.ID, &q.CourseID, &q.Title, &q.Published, &startAt, &endAt, &q.AllowRepeats, &qjson, &q.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Quiz{}, fmt.Errorf("quiz %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Quiz{}, err
	}
	q.StartAt = time.Unix(startAt, 0).UTC()
	q.EndAt = time.Unix(endAt, 0).UTC()
	if err := json.Unmarshal([]byte(qjson), &q.Questions); err != nil {
		return Quiz{}, err
	}
	return q, nil
}

func (s *SQLStore) CreateAttempt(ctx context.Context, a Attempt) error {
	aj, err := json.Marshal(a.Answers)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO attempts
		(id,quiz_id,student_id,status,total_score,percentage,answers_json,feedback,graded_by,started_at,version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		a.ID, a.QuizID, a.StudentID, string(a.Status), a.TotalScore, a.Percentage,
		string(aj), a.Feedback, a.GradedBy, a.StartedAt.Unix(), a.Version)
	if isUniqueViolation(err) {
		return fmt.Errorf("quiz %s student %s: %w", a.QuizID, a.StudentID, ErrAttemptExists)
	}
	return err
}

const attemptColumns = `id,quiz_id,student_id,status,total_score,percentage,answers_json,feedback,graded_by,started_at,ended_at,graded_at,version`

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE id=$1`, id)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, fmt.Errorf("attempt %s: %w", id, ErrNotFound)
	}
	return a, err
}

func (s *SQLStore) UpdateAttempt(ctx context.Context, a Attempt) (Attempt, error) {
	aj, err := json.Marshal(a.Answers)
	if err != nil {
		return Attempt{}, err
	}
	var endedAt, gradedAt interface{}
	if a.EndedAt != nil {
		endedAt = a.EndedAt.Unix()
	}
	if a.GradedAt != nil {
		gradedAt = a.GradedAt.Unix()
	}
	res, err := s.db.ExecContext(ctx, `UPDATE attempts SET
		status=$1, total_score=$2, percentage=$3, answers_json=$4, feedback=$5,
		graded_by=$6, ended_at=$7, graded_at=$8, version=version+1
		WHERE id=$9 AND version=$10`,
		string(a.Status), a.TotalScore, a.Percentage, string(aj), a.Feedback,
		a.GradedBy, endedAt, gradedAt, a.ID, a.Version)
	if err != nil {
		return Attempt{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Attempt{}, err
	}
	if n == 0 {
		// Missing row and stale version look the same to the UPDATE;
		// disambiguate for the caller.
		if _, getErr := s.GetAttempt(ctx, a.ID); getErr != nil {
			return Attempt{}, getErr
		}
		return Attempt{}, fmt.Errorf("attempt %s at version %d: %w", a.ID, a.Version, ErrConflict)
	}
	return s.GetAttempt(ctx, a.ID)
}

func (s *SQLStore) ActiveAttempt(ctx context.Context, quizID, studentID string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM attempts
		WHERE quiz_id=$1 AND student_id=$2 AND status='in_progress'`, quizID, studentID)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrNotFound
	}
	return a, err
}

func (s *SQLStore) HasTerminalAttempt(ctx context.Context, quizID, studentID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM attempts
		WHERE quiz_id=$1 AND student_id=$2 AND status<>'in_progress'`, quizID, studentID).Scan(&n)
	return n > 0, err
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	where := make([]string, 0, 3)
	args := make([]interface{}, 0, 5)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if opts.QuizID != "" {
		add("quiz_id=$%d", opts.QuizID)
	}
	if opts.StudentID != "" {
		add("student_id=$%d", opts.StudentID)
	}
	if opts.Status != "" {
		add("status=$%d", string(opts.Status))
	}
	q := `SELECT ` + attemptColumns + ` FROM attempts`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY started_at DESC`
	limit := opts.Limit
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	args = append(args, limit)
	q += fmt.Sprintf(` LIMIT $%d`, len(args))
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		q += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Attempt, 0)
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAttempt(row rowScanner) (Attempt, error) {
	var a Attempt
	var status, ajson string
	var startedAt int64
	var endedAt, gradedAt sql.NullInt64
	err := row.Scan(&a.ID, &a.QuizID, &a.StudentID, &status, &a.TotalScore, &a.Percentage,
		&ajson, &a.Feedback, &a.GradedBy, &startedAt, &endedAt, &gradedAt, &a.Version)
	if err != nil {
		return Attempt{}, err
	}
	a.Status = AttemptStatus(status)
	a.StartedAt = time.Unix(startedAt, 0).UTC()
	if endedAt.Valid {
		t := time.Unix(endedAt.Int64, 0).UTC()
		a.EndedAt = &t
	}
	if gradedAt.Valid {
		t := time.Unix(gradedAt.Int64, 0).UTC()
		a.GradedAt = &t
	}
	if err := json.Unmarshal([]byte(ajson), &a.Answers); err != nil {
		return Attempt{}, err
	}
	return a, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") || // sqlite
		strings.Contains(msg, "duplicate key value") || // postgres
		strings.Contains(msg, "sqlstate 23505")
}
