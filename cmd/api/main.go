package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"edusync/internal/auth"
	"edusync/internal/cloudinary"
	"edusync/internal/config"
	"edusync/internal/course"
	"edusync/internal/handler"
	"edusync/internal/httpmiddleware"
	"edusync/internal/queue"
	"edusync/internal/store"
	"edusync/internal/user"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.SubmissionStream)
	}

	// Cloudinary client (nil when not configured)
	var cdnClient *cloudinary.Client
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		cdnClient = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Println("Cloudinary configured:", cfg.CloudinaryCloudName)
	} else {
		log.Println("Cloudinary not configured (CLOUDINARY_CLOUD_NAME / API_KEY / API_SECRET not set)")
	}

	users := user.NewService(user.NewRepository(db.Client))
	courses := course.NewService(course.NewRepository(db.Client), mediaUploader{cdnClient}, q)

	h := handler.New(users, courses, handler.TokenConfig{
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		SigningKey: cfg.JWTSigningKey,
		TTL:        cfg.AccessTTL,
	})

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.RequestID())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.Metrics())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	bearer := auth.Bearer(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	instructor := auth.RequireRole(user.RoleInstructor)
	student := auth.RequireRole(user.RoleStudent)

	userRoutes := r.Group("/api/User")
	{
		userRoutes.POST("/register", h.RegisterUser)
		userRoutes.POST("/login", h.Login)
	}

	courseRoutes := r.Group("/api/Course")
	{
		courseRoutes.GET("", h.ListCourses)
		courseRoutes.GET("/instructor", bearer, instructor, h.ListInstructorCourses)
		courseRoutes.POST("", bearer, instructor, h.CreateCourse)
		courseRoutes.GET("/:courseId", h.GetCourse)
		courseRoutes.PUT("/:courseId", bearer, instructor, h.UpdateCourse)
		courseRoutes.DELETE("/:courseId", bearer, instructor, h.DeleteCourse)

		courseRoutes.POST("/:courseId/register", bearer, student, h.RegisterForCourse)
		courseRoutes.GET("/:courseId/registration-status", bearer, student, h.RegistrationStatus)

		courseRoutes.POST("/:courseId/add", bearer, instructor, h.UpsertQuiz)
		courseRoutes.GET("/:courseId/quiz-questions", h.GetQuiz)
		courseRoutes.POST("/:courseId/submit-quiz", bearer, student, h.SubmitQuiz)
		courseRoutes.GET("/:courseId/quiz-results", h.QuizResults)
		courseRoutes.GET("/:courseId/performances", bearer, instructor, h.Performances)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// mediaUploader adapts the Cloudinary client to the course service.
type mediaUploader struct {
	client *cloudinary.Client
}

func (u mediaUploader) Upload(data []byte, filename string) (string, error) {
	if u.client == nil {
		return "", errors.New("media storage not configured")
	}
	result, err := u.client.UploadBytes(data, filename)
	if err != nil {
		return "", err
	}
	return result.SecureURL, nil
}
