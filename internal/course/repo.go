package course

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository persists course data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertCourse writes a new course, assigning an id when unset.
func (r *Repository) InsertCourse(ctx context.Context, c Course) (Course, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO courses (id, title, description, media_url, instructor_name)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.Title, c.Description, c.MediaURL, c.InstructorName)
	if err != nil {
		return Course{}, err
	}
	return c, nil
}

// UpdateCourse overwrites all mutable fields of a course.
func (r *Repository) UpdateCourse(ctx context.Context, c Course) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE courses
		SET title = $2, description = $3, media_url = $4
		WHERE id = $1
	`, c.ID, c.Title, c.Description, c.MediaURL)
	return err
}

// DeleteCourse removes the course row only; registrations, quizzes and
// submissions for the course are kept.
func (r *Repository) DeleteCourse(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	return err
}

// GetCourse returns a course by id, or nil when absent.
func (r *Repository) GetCourse(ctx context.Context, id string) (*Course, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, title, description, media_url, instructor_name
		FROM courses WHERE id = $1
	`, id)
	var c Course
	if err := row.Scan(&c.ID, &c.Title, &c.Description, &c.MediaURL, &c.InstructorName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// ListCourses returns all courses.
func (r *Repository) ListCourses(ctx context.Context) ([]Course, error) {
	return r.queryCourses(ctx, `
		SELECT id, title, description, media_url, instructor_name FROM courses
	`)
}

// ListCoursesByInstructor returns the courses owned by one instructor.
func (r *Repository) ListCoursesByInstructor(ctx context.Context, instructorName string) ([]Course, error) {
	return r.queryCourses(ctx, `
		SELECT id, title, description, media_url, instructor_name
		FROM courses WHERE instructor_name = $1
	`, instructorName)
}

func (r *Repository) queryCourses(ctx context.Context, query string, args ...any) ([]Course, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Course
	for rows.Next() {
		var c Course
		if err := rows.Scan(&c.ID, &c.Title, &c.Description, &c.MediaURL, &c.InstructorName); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// InsertRegistration writes a registration row unconditionally.
func (r *Repository) InsertRegistration(ctx context.Context, reg Registration) error {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	if reg.RegisteredAt.IsZero() {
		reg.RegisteredAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO course_registrations (id, student_id, course_id, registered_at)
		VALUES ($1, $2, $3, $4)
	`, reg.ID, reg.StudentID, reg.CourseID, reg.RegisteredAt)
	return err
}

// IsRegistered reports whether any registration row matches.
func (r *Repository) IsRegistered(ctx context.Context, studentID, courseID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM course_registrations
			WHERE student_id = $1 AND course_id = $2
		)
	`, studentID, courseID).Scan(&exists)
	return exists, err
}

// UpsertQuiz replaces the course's quiz payload, inserting on first save.
func (r *Repository) UpsertQuiz(ctx context.Context, q Quiz) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO course_quizzes (course_id, quiz_data)
		VALUES ($1, $2)
		ON CONFLICT (course_id) DO UPDATE SET quiz_data = EXCLUDED.quiz_data
	`, q.CourseID, q.QuizData)
	return err
}

// GetQuiz returns the course's quiz, or nil when absent.
func (r *Repository) GetQuiz(ctx context.Context, courseID string) (*Quiz, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT course_id, quiz_data FROM course_quizzes WHERE course_id = $1
	`, courseID)
	var q Quiz
	if err := row.Scan(&q.CourseID, &q.QuizData); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &q, nil
}

// InsertSubmission writes a new submission row and returns it with the
// database-assigned sequential id.
func (r *Repository) InsertSubmission(ctx context.Context, sub Submission) (Submission, error) {
	if sub.TakenTime.IsZero() {
		sub.TakenTime = time.Now().UTC()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO quiz_submissions (course_id, student_id, marks, taken_time)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, sub.CourseID, sub.StudentID, sub.Marks, sub.TakenTime)
	if err := row.Scan(&sub.ID); err != nil {
		return Submission{}, err
	}
	return sub, nil
}

// ListSubmissions returns every submission for a course.
func (r *Repository) ListSubmissions(ctx context.Context, courseID string) ([]Submission, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, course_id, student_id, marks, taken_time
		FROM quiz_submissions WHERE course_id = $1
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Submission
	for rows.Next() {
		var sub Submission
		if err := rows.Scan(&sub.ID, &sub.CourseID, &sub.StudentID, &sub.Marks, &sub.TakenTime); err != nil {
			return nil, err
		}
		res = append(res, sub)
	}
	return res, rows.Err()
}

// ListPerformances joins submissions with user names and splits the taken
// timestamp into its date and time parts.
func (r *Repository) ListPerformances(ctx context.Context, courseID string) ([]Performance, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.name, qs.marks, qs.taken_time
		FROM quiz_submissions qs
		JOIN users u ON u.id = qs.student_id
		WHERE qs.course_id = $1
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Performance
	for rows.Next() {
		var (
			p     Performance
			taken time.Time
		)
		if err := rows.Scan(&p.StudentName, &p.Marks, &taken); err != nil {
			return nil, err
		}
		p.TakenDate = taken.Format("2006-01-02")
		p.TakenTime = taken.Format("15:04:05")
		res = append(res, p)
	}
	return res, rows.Err()
}
