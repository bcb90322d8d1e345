package course

import "time"

// Course is a unit of instructional content owned by one instructor.
// Ownership is tracked by instructor name, matching the token's name claim.
type Course struct {
	ID             string `json:"courseId"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	MediaURL       string `json:"mediaUrl"`
	InstructorName string `json:"instructorName"`
}

// Registration is a student's enrollment record for a course.
type Registration struct {
	ID           string    `json:"id"`
	StudentID    string    `json:"studentId"`
	CourseID     string    `json:"courseId"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Quiz is the single active quiz payload attached to a course. QuizData is
// stored as a serialized blob; its shape is checked on write only.
type Quiz struct {
	CourseID string `json:"courseId"`
	QuizData string `json:"quizData"`
}

// Submission is one student's scored attempt at a course's quiz. Retakes
// append new rows.
type Submission struct {
	ID        int64     `json:"id"`
	CourseID  string    `json:"courseId"`
	StudentID string    `json:"studentId"`
	Marks     int       `json:"marks"`
	TakenTime time.Time `json:"takenTime"`
}

// Performance is the instructor-facing projection of a submission joined
// with the student's name.
type Performance struct {
	StudentName string `json:"studentName"`
	TakenDate   string `json:"takenDate"`
	TakenTime   string `json:"takenTime"`
	Marks       int    `json:"marks"`
}
