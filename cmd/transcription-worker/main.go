package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"voicelink-backend/internal/notify"
	"voicelink-backend/internal/queue"
	"voicelink-backend/internal/repository/cockroach"
	transcriptionService "voicelink-backend/internal/service/transcription"
	"voicelink-backend/internal/storage"
	"voicelink-backend/internal/store"
	"voicelink-backend/pkg/database"
	"voicelink-backend/pkg/env"
	"voicelink-backend/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Logging
	logger.InitDefault()
	defer logger.Sync()

	// 2. CockroachDB for recording records
	db, err := database.NewCockroachDBFromEnv(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to CockroachDB: %v", err)
	}
	defer db.Close()
	log.Println("✅ Connected to CockroachDB")
	recordings := cockroach.NewRecordingRepository(db.Pool)

	// 3. MinIO for recording audio
	blobs, err := storage.NewMinIOStorage(
		env.GetString("MINIO_ENDPOINT", "localhost:9000"),
		env.GetStringFromFile("MINIO_ACCESS_KEY", ""),
		env.GetStringFromFile("MINIO_SECRET_KEY", ""),
		env.GetString("MINIO_BUCKET", "call-recordings"),
		env.GetBool("MINIO_USE_SSL", false),
	)
	if err != nil {
		log.Fatalf("Failed to connect to MinIO: %v", err)
	}
	log.Println("✅ Connected to MinIO")

	// 4. Redis carries completed transcripts back to the call service,
	// which owns the live sessions
	redisDB, err := database.NewRedisDBFromEnv()
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisDB.Close()
	log.Println("✅ Connected to Redis")

	// 5. Speech-to-text client
	sttURL := env.GetString("STT_URL", "")
	if sttURL == "" {
		log.Fatal("STT_URL environment variable is required")
	}
	speech := transcriptionService.NewHTTPSpeechClient(sttURL, env.GetStringFromFile("STT_API_KEY", ""), 0)

	// The worker holds no live sessions; transcripts attach to the durable
	// recording record here, and the result publisher hands the text to the
	// call service so the parent session is updated too.
	sessions := store.NewMemorySessionStore()
	transcriptionSvc := transcriptionService.NewService(sessions, recordings, blobs, speech, nil)
	transcriptionSvc.SetResultPublisher(notify.NewTranscriptPublisher(redisDB.Client))

	// 6. RabbitMQ consumer
	conn, err := queue.Connect(ctx, &queue.Config{
		Host: env.GetString("RABBITMQ_HOST", "localhost"),
		Port: env.GetInt("RABBITMQ_PORT", 5672),
		User: env.GetString("RABBITMQ_USER", "guest"),
		Pass: env.GetStringFromFile("RABBITMQ_PASSWORD", "guest"),
	})
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	log.Println("✅ Connected to RabbitMQ")

	numWorkers := env.GetInt("TRANSCRIPTION_WORKERS", 4)
	consumer := queue.NewConsumer(conn, numWorkers, func(ctx context.Context, job queue.TranscriptionJob) error {
		_, err := transcriptionSvc.RequestTranscription(ctx, job.RecordingID)
		return err
	})

	log.Printf("🚀 Transcription worker starting with %d workers\n", numWorkers)
	if err := consumer.Consume(ctx); err != nil && err != context.Canceled {
		log.Printf("Consumer stopped: %v", err)
		os.Exit(1)
	}
	log.Println("Transcription worker shut down")
}
