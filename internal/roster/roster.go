// Package roster resolves what a user may do within a course. The quiz
// core asks for a capability set once per operation instead of sprinkling
// role-string checks through handlers.
package roster

import (
	"context"
	"database/sql"
	"errors"
)

type Capabilities struct {
	EnrolledStudent bool
	CourseFaculty   bool
	Administrator   bool
}

// CanGrade reports whether the holder may grade attempts in the course.
func (c Capabilities) CanGrade() bool { return c.CourseFaculty || c.Administrator }

type AccessChecker interface {
	// CapabilitiesFor resolves the caller's capabilities within a course.
	CapabilitiesFor(ctx context.Context, userID, courseID string) (Capabilities, error)

	// CourseFaculty lists the faculty user IDs of a course, the audience
	// for needs-manual-grading notifications.
	CourseFaculty(ctx context.Context, courseID string) ([]string, error)

	// EnrolledStudents lists student user IDs, the audience for
	// quiz-published notifications.
	EnrolledStudents(ctx context.Context, courseID string) ([]string, error)
}

// SQLRoster reads users and enrollments maintained by the course-roster
// side of the system.
type SQLRoster struct {
	db *sql.DB
}

func NewSQLRoster(db *sql.DB) *SQLRoster { return &SQLRoster{db: db} }

func (r *SQLRoster) CapabilitiesFor(ctx context.Context, userID, courseID string) (Capabilities, error) {
	var caps Capabilities

	// Subjects are user ids. Matching on username too would let a username
	// crafted to equal another user's id inherit that row's role.
	var role string
	err := r.db.QueryRowContext(ctx, `SELECT role FROM users WHERE id=$1`, userID).Scan(&role)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Capabilities{}, err
	}
	caps.Administrator = role == "admin"

	var enrollRole string
	err = r.db.QueryRowContext(ctx,
		`SELECT role FROM enrollments WHERE course_id=$1 AND user_id=$2`,
		courseID, userID).Scan(&enrollRole)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Capabilities{}, err
	}
	caps.EnrolledStudent = enrollRole == "student"
	caps.CourseFaculty = enrollRole == "faculty"
	return caps, nil
}

func (r *SQLRoster) CourseFaculty(ctx context.Context, courseID string) ([]string, error) {
	return r.listByRole(ctx, courseID, "faculty")
}

func (r *SQLRoster) EnrolledStudents(ctx context.Context, courseID string) ([]string, error) {
	return r.listByRole(ctx, courseID, "student")
}

func (r *SQLRoster) listByRole(ctx context.Context, courseID, role string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM enrollments WHERE course_id=$1 AND role=$2 ORDER BY user_id`,
		courseID, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
