package course

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"edusync/internal/queue"
)

// Sentinel errors surfaced to the HTTP layer.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNoIdentity   = errors.New("caller identity missing")
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
)

// Store is the persistence needed by the service.
type Store interface {
	InsertCourse(ctx context.Context, c Course) (Course, error)
	UpdateCourse(ctx context.Context, c Course) error
	DeleteCourse(ctx context.Context, id string) error
	GetCourse(ctx context.Context, id string) (*Course, error)
	ListCourses(ctx context.Context) ([]Course, error)
	ListCoursesByInstructor(ctx context.Context, instructorName string) ([]Course, error)

	InsertRegistration(ctx context.Context, reg Registration) error
	IsRegistered(ctx context.Context, studentID, courseID string) (bool, error)

	UpsertQuiz(ctx context.Context, q Quiz) error
	GetQuiz(ctx context.Context, courseID string) (*Quiz, error)

	InsertSubmission(ctx context.Context, sub Submission) (Submission, error)
	ListSubmissions(ctx context.Context, courseID string) ([]Submission, error)
	ListPerformances(ctx context.Context, courseID string) ([]Performance, error)
}

// Uploader stores media bytes durably and returns a dereferenceable URL.
type Uploader interface {
	Upload(data []byte, filename string) (string, error)
}

// SubmissionEvent is published on every quiz submission, before the row is
// written. Publish failure aborts the submission.
type SubmissionEvent struct {
	CourseID  string    `json:"courseId"`
	StudentID string    `json:"studentId"`
	Marks     int       `json:"marks"`
	TakenTime time.Time `json:"takenTime"`
}

// SubmissionEventType tags submission events on the queue.
const SubmissionEventType = "quiz-submission"

// Service owns all writes to the course entities and orchestrates the
// storage and event gateways.
type Service struct {
	store    Store
	uploader Uploader
	events   queue.Queue
}

// NewService creates a service backed by a store, a media uploader and an
// event queue.
func NewService(store Store, uploader Uploader, events queue.Queue) *Service {
	return &Service{store: store, uploader: uploader, events: events}
}

// Create uploads the media file and persists a new course owned by the
// caller. The course row is never written when the upload fails.
func (s *Service) Create(ctx context.Context, title, description string, media []byte, filename, instructorName string) (Course, error) {
	if title == "" || len(media) == 0 {
		return Course{}, ErrInvalidInput
	}
	if instructorName == "" {
		return Course{}, ErrNoIdentity
	}

	mediaURL, err := s.uploader.Upload(media, filename)
	if err != nil {
		return Course{}, fmt.Errorf("upload media: %w", err)
	}

	return s.store.InsertCourse(ctx, Course{
		Title:          title,
		Description:    description,
		MediaURL:       mediaURL,
		InstructorName: instructorName,
	})
}

// Update applies the supplied fields to an existing course. Only the owning
// instructor may update; media is re-uploaded only when a new file is given.
func (s *Service) Update(ctx context.Context, id, title, description string, media []byte, filename, instructorName string) (Course, error) {
	c, err := s.store.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	if c == nil {
		return Course{}, ErrNotFound
	}
	if c.InstructorName != instructorName {
		return Course{}, ErrForbidden
	}

	if title != "" {
		c.Title = title
	}
	if description != "" {
		c.Description = description
	}
	if len(media) > 0 {
		mediaURL, err := s.uploader.Upload(media, filename)
		if err != nil {
			return Course{}, fmt.Errorf("upload media: %w", err)
		}
		c.MediaURL = mediaURL
	}

	if err := s.store.UpdateCourse(ctx, *c); err != nil {
		return Course{}, err
	}
	return *c, nil
}

// Delete removes a course. Registrations, quizzes and submissions for the
// course are left in place.
func (s *Service) Delete(ctx context.Context, id, instructorName string) error {
	c, err := s.store.GetCourse(ctx, id)
	if err != nil {
		return err
	}
	if c == nil {
		return ErrNotFound
	}
	if c.InstructorName != instructorName {
		return ErrForbidden
	}
	return s.store.DeleteCourse(ctx, id)
}

// Get returns a single course.
func (s *Service) Get(ctx context.Context, id string) (Course, error) {
	c, err := s.store.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	if c == nil {
		return Course{}, ErrNotFound
	}
	return *c, nil
}

// List returns all courses.
func (s *Service) List(ctx context.Context) ([]Course, error) {
	return s.store.ListCourses(ctx)
}

// ListByInstructor returns the caller's own courses.
func (s *Service) ListByInstructor(ctx context.Context, instructorName string) ([]Course, error) {
	if instructorName == "" {
		return nil, ErrNoIdentity
	}
	return s.store.ListCoursesByInstructor(ctx, instructorName)
}

// Register enrolls a student in a course. There is no existence check on
// the course and no duplicate check on (student, course); registering twice
// simply creates a second row.
func (s *Service) Register(ctx context.Context, courseID, studentID string) error {
	if studentID == "" {
		return ErrNoIdentity
	}
	return s.store.InsertRegistration(ctx, Registration{
		StudentID: studentID,
		CourseID:  courseID,
	})
}

// RegistrationStatus reports whether the student has any registration row
// for the course.
func (s *Service) RegistrationStatus(ctx context.Context, courseID, studentID string) (bool, error) {
	if studentID == "" {
		return false, ErrNoIdentity
	}
	return s.store.IsRegistered(ctx, studentID, courseID)
}

// UpsertQuiz validates the payload shape and replaces the course's quiz,
// creating it on first save. Exactly one quiz row exists per course.
func (s *Service) UpsertQuiz(ctx context.Context, courseID, quizData string) error {
	if _, err := ParseQuizData(quizData); err != nil {
		return err
	}
	return s.store.UpsertQuiz(ctx, Quiz{CourseID: courseID, QuizData: quizData})
}

// GetQuiz returns the course's quiz payload.
func (s *Service) GetQuiz(ctx context.Context, courseID string) (Quiz, error) {
	q, err := s.store.GetQuiz(ctx, courseID)
	if err != nil {
		return Quiz{}, err
	}
	if q == nil {
		return Quiz{}, ErrNotFound
	}
	return *q, nil
}

// SubmitQuiz publishes a submission event and then persists the submission
// row. Publish failure aborts the whole operation with nothing persisted;
// the row, once written, is authoritative regardless of what consumers do
// with the event.
func (s *Service) SubmitQuiz(ctx context.Context, courseID, studentID string, marks int) error {
	if studentID == "" {
		return ErrNoIdentity
	}

	evt := SubmissionEvent{
		CourseID:  courseID,
		StudentID: studentID,
		Marks:     marks,
		TakenTime: time.Now().UTC(),
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if err := s.events.Publish(ctx, queue.Message{Type: SubmissionEventType, Body: body}); err != nil {
		return fmt.Errorf("publish submission event: %w", err)
	}

	_, err = s.store.InsertSubmission(ctx, Submission{
		CourseID:  courseID,
		StudentID: studentID,
		Marks:     marks,
		TakenTime: time.Now().UTC(),
	})
	return err
}

// QuizResults returns every submission for the course. An empty set is
// reported as not found.
func (s *Service) QuizResults(ctx context.Context, courseID string) ([]Submission, error) {
	subs, err := s.store.ListSubmissions(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, ErrNotFound
	}
	return subs, nil
}

// Performances returns submissions joined with student names, projected for
// the instructor view.
func (s *Service) Performances(ctx context.Context, courseID string) ([]Performance, error) {
	return s.store.ListPerformances(ctx, courseID)
}
