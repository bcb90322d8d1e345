package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"edusync/internal/config"
	"edusync/internal/course"
	"edusync/internal/queue"
	"edusync/internal/store"
)

// countsKey is the Redis hash of per-course submission counters.
const countsKey = "edusync:submission_counts"

// Worker consumes quiz-submission events and keeps per-course counters.
// Best-effort analytics: the API's own submission rows are authoritative.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.SubmissionStream)
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for submission events...")
	for msg := range messages {
		if msg.Type != course.SubmissionEventType {
			continue
		}

		var evt course.SubmissionEvent
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			log.Printf("malformed submission event: %v", err)
			continue
		}

		log.Printf("submission: course=%s student=%s marks=%d taken=%s",
			evt.CourseID, evt.StudentID, evt.Marks, evt.TakenTime.Format("2006-01-02 15:04:05"))

		if err := redisClient.Client.HIncrBy(ctx, countsKey, evt.CourseID, 1).Err(); err != nil {
			log.Printf("count update for course %s failed: %v", evt.CourseID, err)
		}
	}

	log.Println("worker exited")
}
