package store

import (
	"context"
	"database/sql"
)

// migrate creates the schema if it does not exist yet. No foreign keys and
// no uniqueness on (student_id, course_id): course deletion leaves child
// rows behind and a student may register for the same course twice, both
// intentional.
func migrate(ctx context.Context, db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		email         TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS courses (
		id              TEXT PRIMARY KEY,
		title           TEXT NOT NULL,
		description     TEXT NOT NULL DEFAULT '',
		media_url       TEXT NOT NULL DEFAULT '',
		instructor_name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS course_registrations (
		id            TEXT PRIMARY KEY,
		student_id    TEXT NOT NULL,
		course_id     TEXT NOT NULL,
		registered_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS course_quizzes (
		course_id TEXT PRIMARY KEY,
		quiz_data TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS quiz_submissions (
		id         BIGSERIAL PRIMARY KEY,
		course_id  TEXT NOT NULL,
		student_id TEXT NOT NULL,
		marks      INT NOT NULL,
		taken_time TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_registrations_student_course
		ON course_registrations(student_id, course_id);
	CREATE INDEX IF NOT EXISTS idx_submissions_course
		ON quiz_submissions(course_id);
	`
	_, err := db.ExecContext(ctx, schema)
	return err
}
