package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	callHandler "voicelink-backend/internal/handler/http/call"
	pushHandler "voicelink-backend/internal/handler/http/push"
	recordingHandler "voicelink-backend/internal/handler/http/recording"
	wsHandler "voicelink-backend/internal/handler/ws"
	"voicelink-backend/internal/middleware"
	"voicelink-backend/internal/notify"
	"voicelink-backend/internal/queue"
	"voicelink-backend/internal/repository/cassandra"
	"voicelink-backend/internal/repository/cockroach"
	redisRepo "voicelink-backend/internal/repository/redis"
	callService "voicelink-backend/internal/service/call"
	recordingService "voicelink-backend/internal/service/recording"
	transcriptionService "voicelink-backend/internal/service/transcription"
	"voicelink-backend/internal/storage"
	"voicelink-backend/internal/store"
	"voicelink-backend/pkg/database"
	"voicelink-backend/pkg/env"
	"voicelink-backend/pkg/jwt"
	"voicelink-backend/pkg/logger"
	"voicelink-backend/pkg/metrics"
	"voicelink-backend/pkg/push"
)

func main() {
	ctx := context.Background()

	// 1. Logging
	logger.InitDefault()
	defer logger.Sync()

	// 2. JWT Manager
	jwtSecret := env.GetStringFromFile("JWT_SECRET", "")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
	if len(jwtSecret) < 32 {
		log.Fatal("JWT_SECRET must be at least 32 characters")
	}
	jwtManager := jwt.NewJWTManager(jwtSecret, 15*time.Minute, 30*24*time.Hour)

	productionMode := os.Getenv("ENV") == "production"

	// 3. In-memory session engine state
	sessions := store.NewMemorySessionStore()

	// 4. CockroachDB for recording records and durable call history
	var db *database.CockroachDB
	var err error
	db, err = database.NewCockroachDBFromEnv(ctx)
	if err != nil {
		log.Printf("Warning: Failed to connect to CockroachDB: %v", err)
		log.Println("Running in limited mode without durable call history")
	} else {
		defer db.Close()
		log.Println("✅ Connected to CockroachDB")
	}

	var recordings store.RecordingStore
	var archive callService.Archive
	if db != nil {
		recordings = cockroach.NewRecordingRepository(db.Pool)
		archive = cockroach.NewCallHistoryRepository(db.Pool)
	} else {
		recordings = store.NewMemoryRecordingStore()
	}

	// 5. Cassandra for the append-only call event log
	var events callService.EventLog
	cassandraDB, err := database.NewCassandraDBFromEnv()
	if err != nil {
		log.Printf("Warning: Failed to connect to Cassandra: %v", err)
		log.Println("Running without call event audit log")
	} else {
		defer cassandraDB.Close()
		events = cassandra.NewCallEventRepository(cassandraDB.Session)
		log.Println("✅ Connected to Cassandra")
	}

	// 6. Redis for the user directory, push tokens, and event fan-out
	var directory callService.Directory
	var pushTokenRepo push.TokenRepository
	var eventHub *wsHandler.EventHub
	redisDB, err := database.NewRedisDBFromEnv()
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v", err)
		eventHub = wsHandler.NewEventHub(nil)
	} else {
		defer redisDB.Close()
		directory = redisRepo.NewDirectoryRepository(redisDB.Client)
		pushTokenRepo = redisRepo.NewPushTokenRepository(redisDB.Client)
		eventHub = wsHandler.NewEventHub(redisDB.Client)
		log.Println("✅ Connected to Redis")
	}

	// 7. Push provider
	var pushSvc *push.Service
	if pushTokenRepo != nil {
		var pushProvider push.Provider
		switch providerType := env.GetString("PUSH_PROVIDER", "mock"); providerType {
		case "fcm":
			provider, err := push.NewFCMProvider(&push.FCMConfig{
				CredentialsPath: env.GetString("FCM_CREDENTIALS_PATH", ""),
				ProjectID:       env.GetStringFromFile("FCM_PROJECT_ID", ""),
			})
			if err != nil {
				if productionMode {
					log.Fatalf("❌ Fatal: FCM provider init failed: %v", err)
				}
				log.Printf("Warning: FCM provider init failed: %v, falling back to mock", err)
				pushProvider = &push.MockProvider{}
			} else {
				pushProvider = provider
				log.Println("✅ Using FCM push provider")
			}
		case "apns":
			provider, err := push.NewAPNsProvider(&push.APNsConfig{
				KeyPath:    env.GetString("APNS_KEY_PATH", ""),
				KeyID:      env.GetStringFromFile("APNS_KEY_ID", ""),
				TeamID:     env.GetStringFromFile("APNS_TEAM_ID", ""),
				BundleID:   env.GetString("APNS_BUNDLE_ID", ""),
				Production: productionMode,
			})
			if err != nil {
				if productionMode {
					log.Fatalf("❌ Fatal: APNs provider init failed: %v", err)
				}
				log.Printf("Warning: APNs provider init failed: %v, falling back to mock", err)
				pushProvider = &push.MockProvider{}
			} else {
				pushProvider = provider
				log.Println("✅ Using APNs push provider")
			}
		default:
			if productionMode {
				log.Fatal("❌ Fatal: Mock push provider not allowed in production")
			}
			pushProvider = &push.MockProvider{}
			log.Println("ℹ️  Using MockProvider for push notifications (development mode)")
		}
		pushSvc = push.NewService(pushProvider, pushTokenRepo)
	}

	// 8. MinIO for recording artifacts
	var blobs recordingService.BlobStorage
	minioEndpoint := env.GetString("MINIO_ENDPOINT", "")
	if minioEndpoint != "" {
		minioStorage, err := storage.NewMinIOStorage(
			minioEndpoint,
			env.GetStringFromFile("MINIO_ACCESS_KEY", ""),
			env.GetStringFromFile("MINIO_SECRET_KEY", ""),
			env.GetString("MINIO_BUCKET", "call-recordings"),
			env.GetBool("MINIO_USE_SSL", false),
		)
		if err != nil {
			log.Printf("Warning: Failed to connect to MinIO: %v", err)
			log.Println("Running without recording storage")
		} else {
			blobs = minioStorage
			log.Println("✅ Connected to MinIO")
		}
	}

	// 9. Core services
	notifier := notify.NewCallNotifier(pushSvc, eventHub)
	callSvc := callService.NewService(sessions, directory, notifier, nil, events, archive)

	var recordingSvc *recordingService.Service
	if blobs != nil {
		recordingSvc = recordingService.NewService(sessions, recordings, blobs, recordingService.DefaultCaptureProfile())
		recordingSvc.SetEvents(notifier)
		callSvc.SetRecorder(recordingSvc)
	}

	// 10. Transcription: RabbitMQ publisher when configured, otherwise the
	// orchestrator runs jobs in-process.
	var transcriptionSvc *transcriptionService.Service
	sttURL := env.GetString("STT_URL", "")
	if sttURL != "" && blobs != nil {
		speech := transcriptionService.NewHTTPSpeechClient(sttURL, env.GetStringFromFile("STT_API_KEY", ""), 0)

		var publisher transcriptionService.JobPublisher
		if rabbitHost := env.GetString("RABBITMQ_HOST", ""); rabbitHost != "" {
			conn, err := queue.Connect(ctx, &queue.Config{
				Host: rabbitHost,
				Port: env.GetInt("RABBITMQ_PORT", 5672),
				User: env.GetString("RABBITMQ_USER", "guest"),
				Pass: env.GetStringFromFile("RABBITMQ_PASSWORD", "guest"),
			})
			if err != nil {
				log.Printf("Warning: Failed to connect to RabbitMQ: %v", err)
			} else {
				pub, err := queue.NewPublisher(conn)
				if err != nil {
					log.Printf("Warning: Failed to create transcription publisher: %v", err)
				} else {
					publisher = pub
					log.Println("✅ Connected to RabbitMQ")
				}
			}
		}

		transcriptionSvc = transcriptionService.NewService(sessions, recordings, blobs, speech, publisher)
	}

	// Transcripts completed by the worker arrive over Redis; apply them to
	// this instance's sessions and notify connected clients.
	if redisDB != nil {
		if transcriptionSvc != nil {
			transcriptionSvc.SetResultPublisher(notify.NewTranscriptPublisher(redisDB.Client))
		}
		applier := notify.NewTranscriptApplier(redisDB.Client, sessions, eventHub)
		go applier.Run(ctx)
	}

	// 11. Metrics
	appMetrics := metrics.NewMetrics("call-service")
	prometheusMiddleware := middleware.NewPrometheusMiddleware(appMetrics)
	callSvc.SetMetrics(appMetrics)
	eventHub.SetMetrics(appMetrics)
	if recordingSvc != nil {
		recordingSvc.SetMetrics(appMetrics)
	}
	if transcriptionSvc != nil {
		transcriptionSvc.SetMetrics(appMetrics)
	}
	if pushSvc != nil {
		pushSvc.SetMetrics(appMetrics)
	}

	// 12. Handlers
	callHdlr := callHandler.NewHandler(callSvc)
	var recordingHdlr *recordingHandler.Handler
	if recordingSvc != nil {
		recordingHdlr = recordingHandler.NewHandler(recordingSvc, transcriptionSvc)
	}

	// 13. Router
	router := gin.New()

	trustedProxies := []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
	}
	router.SetTrustedProxies(trustedProxies)

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware())
	router.Use(prometheusMiddleware.Handler())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "call-service",
			"time":    time.Now().UTC(),
		})
	})
	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(jwtManager))
	{
		calls := v1.Group("/calls")
		{
			calls.POST("", callHdlr.InitiateCall)
			calls.GET("", callHdlr.ListCalls)
			calls.GET("/history", callHdlr.ListHistory)
			calls.GET("/:id", callHdlr.GetCall)
			calls.POST("/:id/ring", callHdlr.Ring)
			calls.POST("/:id/accept", callHdlr.Accept)
			calls.POST("/:id/decline", callHdlr.Decline)
			calls.POST("/:id/missed", callHdlr.MarkMissed)
			calls.POST("/:id/hangup", callHdlr.Hangup)
			calls.PATCH("/:id/participant", callHdlr.UpdateParticipant)

			// WebSocket endpoint for call lifecycle events
			calls.GET("/ws/events", eventHub.ServeWS)

			if recordingHdlr != nil {
				calls.POST("/:id/recording/start", recordingHdlr.StartRecording)
				calls.POST("/:id/recording/chunk", recordingHdlr.AppendChunk)
				calls.POST("/:id/recording/stop", recordingHdlr.StopRecording)
				calls.GET("/:id/recordings", recordingHdlr.ListCallRecordings)
			}
		}

		if recordingHdlr != nil {
			recs := v1.Group("/recordings")
			{
				recs.GET("/:id", recordingHdlr.GetRecording)
				recs.GET("/:id/audio", recordingHdlr.DownloadAudio)
				recs.POST("/:id/transcribe", recordingHdlr.RequestTranscription)
			}
		}

		if pushSvc != nil {
			pushHdlr := pushHandler.NewHandler(pushSvc)
			tokens := v1.Group("/push/tokens")
			{
				tokens.POST("", pushHdlr.RegisterToken)
				tokens.DELETE("", pushHdlr.UnregisterToken)
			}
		}

		admin := v1.Group("/admin")
		{
			admin.GET("/calls", callHdlr.AdminListCalls)
			admin.DELETE("/calls/:id", callHdlr.AdminDeleteCall)
			if recordingHdlr != nil {
				admin.DELETE("/recordings/:id", recordingHdlr.AdminPurgeRecording)
			}
		}
	}

	// 14. Start server
	port := env.GetString("PORT", "8084")
	addr := fmt.Sprintf(":%s", port)

	log.Printf("🚀 Call Service starting on port %s\n", port)
	log.Println("📡 Call events: /v1/calls/ws/events")
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
