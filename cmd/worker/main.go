package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"faceattend/internal/audit"
	"faceattend/internal/config"
	"faceattend/internal/queue"
	"faceattend/internal/store"
	"faceattend/internal/verify"
)

// Worker consumes verification attempts from the queue and persists the
// audit trail used to review repeated rejects.
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

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("migrate failed: %v", err)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "")
	}

	attempts := audit.NewRepository(db.Client)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("audit worker started, waiting for attempts...")
	for msg := range messages {
		if msg.Type != audit.MessageType {
			continue
		}

		var attempt verify.Attempt
		if err := json.Unmarshal(msg.Body, &attempt); err != nil {
			log.Printf("skipping malformed attempt: %v", err)
			continue
		}

		if err := attempts.Insert(ctx, attempt); err != nil {
			log.Printf("persist attempt %s failed: %v", attempt.ID, err)
			continue
		}
		log.Printf("attempt %s recorded: identity=%s mode=%s outcome=%s",
			attempt.ID, attempt.IdentityID, attempt.Mode, attempt.Outcome)
	}

	log.Println("audit worker stopped")
}
