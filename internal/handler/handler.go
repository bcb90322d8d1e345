package handler

import (
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"edusync/internal/auth"
	"edusync/internal/course"
	"edusync/internal/httpmiddleware"
	"edusync/internal/user"
)

// TokenConfig is what Login needs to issue access tokens.
type TokenConfig struct {
	Issuer     string
	Audience   string
	SigningKey string
	TTL        time.Duration
}

// Handler exposes the user and course services over HTTP.
type Handler struct {
	users   *user.Service
	courses *course.Service
	tokens  TokenConfig
}

// New creates a handler.
func New(users *user.Service, courses *course.Service, tokens TokenConfig) *Handler {
	return &Handler{users: users, courses: courses, tokens: tokens}
}

// fail maps service errors onto the HTTP status contract. Unexpected
// errors become an opaque 500 carrying the request correlation id.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, user.ErrDuplicateEmail):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email already exists."})
	case errors.Is(err, user.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials."})
	case errors.Is(err, user.ErrInvalidInput), errors.Is(err, course.ErrInvalidInput), errors.Is(err, course.ErrInvalidQuiz):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, course.ErrNoIdentity):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "caller identity not found"})
	case errors.Is(err, course.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "you can only modify your own courses"})
	case errors.Is(err, course.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		id := httpmiddleware.GetRequestID(c)
		log.Printf("request %s failed: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "requestId": id})
	}
}

// ---------- Users ----------

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required,oneof=Student Instructor"`
}

// RegisterUser creates an account with a hashed password.
func (h *Handler) RegisterUser(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.users.Register(c.Request.Context(), req.Name, req.Email, req.Password, req.Role); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Registration successful."})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login verifies credentials and returns a signed token plus the role.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	u, err := h.users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}

	token, err := auth.Issue(u.ID, u.Name, u.Email, u.Role, h.tokens.Issuer, h.tokens.Audience, h.tokens.SigningKey, h.tokens.TTL)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token.Value, "role": u.Role})
}

// ---------- Courses ----------

// readMediaFile pulls the optional multipart media file into memory.
// Returns nil bytes when the field is absent.
func readMediaFile(c *gin.Context) ([]byte, string, error) {
	file, header, err := c.Request.FormFile("mediaFile")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, "", nil
		}
		return nil, "", err
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", err
	}
	return data, header.Filename, nil
}

// CreateCourse uploads the media file and persists a new course owned by
// the calling instructor. Expects multipart fields: title, description,
// mediaFile.
func (h *Handler) CreateCourse(c *gin.Context) {
	claims, _ := auth.FromContext(c)

	media, filename, err := readMediaFile(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mediaFile could not be read"})
		return
	}
	if c.PostForm("title") == "" || media == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Media file and title are required."})
		return
	}

	created, err := h.courses.Create(c.Request.Context(), c.PostForm("title"), c.PostForm("description"), media, filename, claims.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, created)
}

// UpdateCourse applies the supplied multipart fields; absent fields keep
// their current value and the media is re-uploaded only when a new file is
// given.
func (h *Handler) UpdateCourse(c *gin.Context) {
	claims, _ := auth.FromContext(c)

	media, filename, err := readMediaFile(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mediaFile could not be read"})
		return
	}

	updated, err := h.courses.Update(c.Request.Context(), c.Param("courseId"), c.PostForm("title"), c.PostForm("description"), media, filename, claims.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteCourse removes an owned course.
func (h *Handler) DeleteCourse(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	if err := h.courses.Delete(c.Request.Context(), c.Param("courseId"), claims.Name); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListCourses returns every course.
func (h *Handler) ListCourses(c *gin.Context) {
	courses, err := h.courses.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if courses == nil {
		courses = []course.Course{}
	}
	c.JSON(http.StatusOK, courses)
}

// ListInstructorCourses returns the calling instructor's courses.
func (h *Handler) ListInstructorCourses(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	courses, err := h.courses.ListByInstructor(c.Request.Context(), claims.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	if courses == nil {
		courses = []course.Course{}
	}
	c.JSON(http.StatusOK, courses)
}

// GetCourse returns a single course.
func (h *Handler) GetCourse(c *gin.Context) {
	found, err := h.courses.Get(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, found)
}

// ---------- Registrations ----------

// RegisterForCourse enrolls the calling student. Duplicate registrations
// are accepted and create additional rows.
func (h *Handler) RegisterForCourse(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	if err := h.courses.Register(c.Request.Context(), c.Param("courseId"), claims.Subject); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Registration successful"})
}

// RegistrationStatus reports whether the calling student is registered.
func (h *Handler) RegistrationStatus(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	registered, err := h.courses.RegistrationStatus(c.Request.Context(), c.Param("courseId"), claims.Subject)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"isRegistered": registered})
}

// ---------- Quizzes ----------

type quizRequest struct {
	QuizData string `json:"quizData" binding:"required"`
}

// UpsertQuiz saves the course quiz, replacing any existing payload.
func (h *Handler) UpsertQuiz(c *gin.Context) {
	var req quizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid quiz data."})
		return
	}
	if err := h.courses.UpsertQuiz(c.Request.Context(), c.Param("courseId"), req.QuizData); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Quiz saved successfully."})
}

// GetQuiz returns the course quiz payload.
func (h *Handler) GetQuiz(c *gin.Context) {
	quiz, err := h.courses.GetQuiz(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, quiz)
}

type submitQuizRequest struct {
	Marks int `json:"marks"`
}

// SubmitQuiz publishes the submission event and records the attempt.
func (h *Handler) SubmitQuiz(c *gin.Context) {
	var req submitQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, _ := auth.FromContext(c)
	if err := h.courses.SubmitQuiz(c.Request.Context(), c.Param("courseId"), claims.Subject, req.Marks); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Quiz submitted successfully"})
}

// QuizResults returns every submission for a course; 404 when none exist.
func (h *Handler) QuizResults(c *gin.Context) {
	subs, err := h.courses.QuizResults(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, subs)
}

// Performances returns the instructor view of submissions joined with
// student names.
func (h *Handler) Performances(c *gin.Context) {
	perfs, err := h.courses.Performances(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if perfs == nil {
		perfs = []course.Performance{}
	}
	c.JSON(http.StatusOK, perfs)
}
