package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edusync/internal/auth"
	"edusync/internal/course"
	"edusync/internal/queue"
	"edusync/internal/user"
)

const (
	testKey      = "test-signing-key"
	testIssuer   = "edusync"
	testAudience = "edusync-clients"
)

// ---------- fakes ----------

type fakeUserStore struct {
	byEmail map[string]user.User
}

func (f *fakeUserStore) EmailExists(_ context.Context, email string) (bool, error) {
	_, ok := f.byEmail[email]
	return ok, nil
}

func (f *fakeUserStore) Create(_ context.Context, u user.User) error {
	if u.ID == "" {
		u.ID = fmt.Sprintf("user-%d", len(f.byEmail)+1)
	}
	f.byEmail[u.Email] = u
	return nil
}

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (*user.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

type fakeCourseStore struct {
	courses       map[string]course.Course
	registrations []course.Registration
	quizzes       map[string]course.Quiz
	submissions   []course.Submission
	nextID        int64
}

func newFakeCourseStore() *fakeCourseStore {
	return &fakeCourseStore{courses: map[string]course.Course{}, quizzes: map[string]course.Quiz{}}
}

func (f *fakeCourseStore) InsertCourse(_ context.Context, c course.Course) (course.Course, error) {
	f.nextID++
	if c.ID == "" {
		c.ID = fmt.Sprintf("course-%d", f.nextID)
	}
	f.courses[c.ID] = c
	return c, nil
}

func (f *fakeCourseStore) UpdateCourse(_ context.Context, c course.Course) error {
	f.courses[c.ID] = c
	return nil
}

func (f *fakeCourseStore) DeleteCourse(_ context.Context, id string) error {
	delete(f.courses, id)
	return nil
}

func (f *fakeCourseStore) GetCourse(_ context.Context, id string) (*course.Course, error) {
	c, ok := f.courses[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeCourseStore) ListCourses(_ context.Context) ([]course.Course, error) {
	var out []course.Course
	for _, c := range f.courses {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeCourseStore) ListCoursesByInstructor(_ context.Context, name string) ([]course.Course, error) {
	var out []course.Course
	for _, c := range f.courses {
		if c.InstructorName == name {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCourseStore) InsertRegistration(_ context.Context, reg course.Registration) error {
	f.registrations = append(f.registrations, reg)
	return nil
}

func (f *fakeCourseStore) IsRegistered(_ context.Context, studentID, courseID string) (bool, error) {
	for _, reg := range f.registrations {
		if reg.StudentID == studentID && reg.CourseID == courseID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCourseStore) UpsertQuiz(_ context.Context, q course.Quiz) error {
	f.quizzes[q.CourseID] = q
	return nil
}

func (f *fakeCourseStore) GetQuiz(_ context.Context, courseID string) (*course.Quiz, error) {
	q, ok := f.quizzes[courseID]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

func (f *fakeCourseStore) InsertSubmission(_ context.Context, sub course.Submission) (course.Submission, error) {
	f.nextID++
	sub.ID = f.nextID
	f.submissions = append(f.submissions, sub)
	return sub, nil
}

func (f *fakeCourseStore) ListSubmissions(_ context.Context, courseID string) ([]course.Submission, error) {
	var out []course.Submission
	for _, sub := range f.submissions {
		if sub.CourseID == courseID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (f *fakeCourseStore) ListPerformances(_ context.Context, courseID string) ([]course.Performance, error) {
	var out []course.Performance
	for _, sub := range f.submissions {
		if sub.CourseID == courseID {
			out = append(out, course.Performance{
				StudentName: "Student " + sub.StudentID,
				TakenDate:   sub.TakenTime.Format("2006-01-02"),
				TakenTime:   sub.TakenTime.Format("15:04:05"),
				Marks:       sub.Marks,
			})
		}
	}
	return out, nil
}

type fakeUploader struct {
	calls int
}

func (u *fakeUploader) Upload(data []byte, filename string) (string, error) {
	u.calls++
	return fmt.Sprintf("https://cdn.example.com/media/%d-%s", u.calls, filename), nil
}

type failingQueue struct{}

func (failingQueue) Publish(context.Context, queue.Message) error {
	return errors.New("stream unavailable")
}

func (failingQueue) Consume(context.Context) (<-chan queue.Message, error) {
	return nil, errors.New("stream unavailable")
}

// ---------- test env ----------

type env struct {
	router      *gin.Engine
	userStore   *fakeUserStore
	courseStore *fakeCourseStore
}

func newEnv(t *testing.T, q queue.Queue) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	userStore := &fakeUserStore{byEmail: map[string]user.User{}}
	courseStore := newFakeCourseStore()
	if q == nil {
		q = queue.NewInMemory(16)
	}

	users := user.NewService(userStore)
	courses := course.NewService(courseStore, &fakeUploader{}, q)
	h := New(users, courses, TokenConfig{
		Issuer:     testIssuer,
		Audience:   testAudience,
		SigningKey: testKey,
		TTL:        time.Hour,
	})

	r := gin.New()
	bearer := auth.Bearer(testKey, testIssuer, testAudience)
	instructor := auth.RequireRole(user.RoleInstructor)
	student := auth.RequireRole(user.RoleStudent)

	r.POST("/api/User/register", h.RegisterUser)
	r.POST("/api/User/login", h.Login)

	c := r.Group("/api/Course")
	c.GET("", h.ListCourses)
	c.GET("/instructor", bearer, instructor, h.ListInstructorCourses)
	c.POST("", bearer, instructor, h.CreateCourse)
	c.GET("/:courseId", h.GetCourse)
	c.PUT("/:courseId", bearer, instructor, h.UpdateCourse)
	c.DELETE("/:courseId", bearer, instructor, h.DeleteCourse)
	c.POST("/:courseId/register", bearer, student, h.RegisterForCourse)
	c.GET("/:courseId/registration-status", bearer, student, h.RegistrationStatus)
	c.POST("/:courseId/add", bearer, instructor, h.UpsertQuiz)
	c.GET("/:courseId/quiz-questions", h.GetQuiz)
	c.POST("/:courseId/submit-quiz", bearer, student, h.SubmitQuiz)
	c.GET("/:courseId/quiz-results", h.QuizResults)
	c.GET("/:courseId/performances", bearer, instructor, h.Performances)

	return &env{router: r, userStore: userStore, courseStore: courseStore}
}

func (e *env) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	contentType := ""
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
		contentType = "application/json"
	}
	req := httptest.NewRequest(method, path, &buf)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *env) doMultipart(t *testing.T, method, path, token string, fields map[string]string, fileField, filename string, file []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileField != "" {
		part, err := w.CreateFormFile(fileField, filename)
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *env) registerAndLogin(t *testing.T, name, email, role string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/User/register", "", gin.H{
		"name": name, "email": email, "password": "secret", "role": role,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodPost, "/api/User/login", "", gin.H{
		"email": email, "password": "secret",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Token string `json:"token"`
		Role  string `json:"role"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, role, resp.Role)
	return resp.Token
}

// ---------- tests ----------

func TestRegisterLoginFlow(t *testing.T) {
	e := newEnv(t, nil)

	token := e.registerAndLogin(t, "Alice", "a@x.com", user.RoleStudent)

	claims, err := auth.Parse(token, testKey, testIssuer, testAudience)
	require.NoError(t, err)
	assert.Equal(t, user.RoleStudent, claims.Role)
	assert.Equal(t, "Alice", claims.Name)

	// Wrong password yields 401 and no token.
	rec := e.do(t, http.MethodPost, "/api/User/login", "", gin.H{"email": "a@x.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotContains(t, rec.Body.String(), "token")

	// Duplicate email rejected.
	rec = e.do(t, http.MethodPost, "/api/User/register", "", gin.H{
		"name": "Alice Again", "email": "a@x.com", "password": "p", "role": user.RoleStudent,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateCourseRequiresInstructorRole(t *testing.T) {
	e := newEnv(t, nil)
	studentToken := e.registerAndLogin(t, "Sam", "s@x.com", user.RoleStudent)

	rec := e.doMultipart(t, http.MethodPost, "/api/Course", studentToken,
		map[string]string{"title": "Go 101"}, "mediaFile", "intro.mp4", []byte("media"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.doMultipart(t, http.MethodPost, "/api/Course", "",
		map[string]string{"title": "Go 101"}, "mediaFile", "intro.mp4", []byte("media"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCourseLifecycleAndOwnership(t *testing.T) {
	e := newEnv(t, nil)
	tokenI := e.registerAndLogin(t, "Ira", "i@x.com", user.RoleInstructor)
	tokenJ := e.registerAndLogin(t, "Jo", "j@x.com", user.RoleInstructor)

	// Missing media file is a client error.
	rec := e.doMultipart(t, http.MethodPost, "/api/Course", tokenI,
		map[string]string{"title": "Go 101"}, "", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.doMultipart(t, http.MethodPost, "/api/Course", tokenI,
		map[string]string{"title": "Go 101", "description": "Intro"}, "mediaFile", "intro.mp4", []byte("media"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var created course.Course
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Ira", created.InstructorName)
	assert.NotEmpty(t, created.MediaURL)

	// Non-owner cannot update or delete.
	rec = e.doMultipart(t, http.MethodPut, "/api/Course/"+created.ID, tokenJ,
		map[string]string{"title": "Hijacked"}, "", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodDelete, "/api/Course/"+created.ID, tokenJ, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Owner updates a single field.
	rec = e.doMultipart(t, http.MethodPut, "/api/Course/"+created.ID, tokenI,
		map[string]string{"title": "Go 201"}, "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated course.Course
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "Go 201", updated.Title)
	assert.Equal(t, "Intro", updated.Description)

	// Owner deletes; course disappears from the public list.
	rec = e.do(t, http.MethodDelete, "/api/Course/"+created.ID, tokenI, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/Course", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", rec.Body.String())

	rec = e.do(t, http.MethodGet, "/api/Course/"+created.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegistrationFlow(t *testing.T) {
	e := newEnv(t, nil)
	token := e.registerAndLogin(t, "Sam", "s@x.com", user.RoleStudent)

	rec := e.do(t, http.MethodGet, "/api/Course/c1/registration-status", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"isRegistered":false}`, rec.Body.String())

	rec = e.do(t, http.MethodPost, "/api/Course/c1/register", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/Course/c1/registration-status", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"isRegistered":true}`, rec.Body.String())

	// Registering twice succeeds and appends a second row.
	rec = e.do(t, http.MethodPost, "/api/Course/c1/register", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, e.courseStore.registrations, 2)
}

func TestQuizFlow(t *testing.T) {
	e := newEnv(t, nil)
	tokenI := e.registerAndLogin(t, "Ira", "i@x.com", user.RoleInstructor)
	tokenS := e.registerAndLogin(t, "Sam", "s@x.com", user.RoleStudent)

	quizA := `[{"question":"Q1?","options":["a","b","c","d"],"correctAnswer":"1"}]`
	quizB := `[{"question":"Q2?","options":["w","x","y","z"],"correctAnswer":"3"}]`

	rec := e.do(t, http.MethodGet, "/api/Course/c1/quiz-questions", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/Course/c1/add", tokenI, gin.H{"quizData": quizA})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = e.do(t, http.MethodPost, "/api/Course/c1/add", tokenI, gin.H{"quizData": quizB})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/Course/c1/quiz-questions", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var quiz course.Quiz
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quiz))
	assert.Equal(t, quizB, quiz.QuizData)

	// Malformed payloads are rejected on write.
	rec = e.do(t, http.MethodPost, "/api/Course/c1/add", tokenI, gin.H{"quizData": `[{"question":"Q?"}]`})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Empty results, then one submission.
	rec = e.do(t, http.MethodGet, "/api/Course/c1/quiz-results", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/Course/c1/submit-quiz", tokenS, gin.H{"marks": 7})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodGet, "/api/Course/c1/quiz-results", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var subs []course.Submission
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &subs))
	require.Len(t, subs, 1)
	assert.Equal(t, 7, subs[0].Marks)

	rec = e.do(t, http.MethodGet, "/api/Course/c1/performances", tokenI, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var perfs []course.Performance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &perfs))
	require.Len(t, perfs, 1)
	assert.Equal(t, 7, perfs[0].Marks)
}

func TestSubmitQuizPublishFailure(t *testing.T) {
	e := newEnv(t, failingQueue{})
	token := e.registerAndLogin(t, "Sam", "s@x.com", user.RoleStudent)

	rec := e.do(t, http.MethodPost, "/api/Course/c1/submit-quiz", token, gin.H{"marks": 7})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
	assert.NotContains(t, rec.Body.String(), "stream unavailable", "500 body stays opaque")
	assert.Empty(t, e.courseStore.submissions)
}

func TestInstructorCourseListIsScoped(t *testing.T) {
	e := newEnv(t, nil)
	tokenI := e.registerAndLogin(t, "Ira", "i@x.com", user.RoleInstructor)
	tokenJ := e.registerAndLogin(t, "Jo", "j@x.com", user.RoleInstructor)

	rec := e.doMultipart(t, http.MethodPost, "/api/Course", tokenI,
		map[string]string{"title": "Go 101"}, "mediaFile", "a.mp4", []byte("m"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/Course/instructor", tokenJ, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", rec.Body.String())

	rec = e.do(t, http.MethodGet, "/api/Course/instructor", tokenI, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []course.Course
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, "Go 101", mine[0].Title)
}
