package main

import (
	"context"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/calloway-health/consultline/config"
	"github.com/calloway-health/consultline/internal/api/handlers"
	"github.com/calloway-health/consultline/internal/api/routes"
	"github.com/calloway-health/consultline/internal/cache"
	"github.com/calloway-health/consultline/internal/logger"
	"github.com/calloway-health/consultline/internal/providers/export"
	"github.com/calloway-health/consultline/internal/providers/notify"
	"github.com/calloway-health/consultline/internal/providers/reply"
	"github.com/calloway-health/consultline/internal/providers/stt"
	"github.com/calloway-health/consultline/internal/providers/tts"
	mongorepo "github.com/calloway-health/consultline/internal/repositories/mongo"
	pgrepo "github.com/calloway-health/consultline/internal/repositories/postgres"
	"github.com/calloway-health/consultline/internal/services"
	"github.com/calloway-health/consultline/internal/session"
	"github.com/calloway-health/consultline/internal/storage"
	"github.com/calloway-health/consultline/internal/workers"
)

func main() {
	_ = godotenv.Load()

	log := logger.New()
	ctx := context.Background()

	// Init PostgreSQL
	if err := config.InitPostgres(); err != nil {
		log.Fatalf("PostgreSQL init error: %v", err)
	}
	if err := config.MigratePostgres(); err != nil {
		log.Fatalf("PostgreSQL migration error: %v", err)
	}
	log.Info("PostgreSQL connected")

	// Init MongoDB
	if err := config.InitMongo(); err != nil {
		log.Fatalf("MongoDB init error: %v", err)
	}
	if err := config.EnsureMongoIndexes(); err != nil {
		log.Fatalf("MongoDB index error: %v", err)
	}
	log.Info("MongoDB connected")

	// Init Redis
	if err := config.InitRedis(); err != nil {
		log.Fatalf("Redis init error: %v", err)
	}
	log.Info("Redis connected")

	patients := pgrepo.NewPatientRepo(config.PostgresDB)
	calls := pgrepo.NewCallRepo(config.PostgresDB)
	responses := pgrepo.NewResponseRepo(config.PostgresDB)
	appointments := pgrepo.NewAppointmentRepo(config.PostgresDB)
	snapshots := mongorepo.NewSnapshotRepo(config.MongoDatabase(), 0)
	redisCache := cache.NewRedisCache(config.RedisClient)

	uploader, err := storage.NewGCSUploader(ctx, mustEnv(log, "AUDIO_BUCKET"))
	if err != nil {
		log.Fatalf("GCS init error: %v", err)
	}

	ttsProvider := tts.NewElevenLabs(
		mustEnv(log, "ELEVEN_LABS_API_KEY"),
		mustEnv(log, "ELEVENLABS_VOICE_ID"),
		uploader,
	)

	replyProvider := buildReplyProvider(ctx, log)
	defer replyProvider.Close()

	sttProvider := buildSTTProvider(ctx, log)
	defer sttProvider.Close()

	var exporter export.Exporter
	if sheetID := os.Getenv("GOOGLE_SHEET_ID"); sheetID != "" {
		sheetsExporter, err := export.NewSheetsExporter(ctx, sheetID)
		if err != nil {
			log.Fatalf("Sheets init error: %v", err)
		}
		exporter = sheetsExporter
	}

	twilio := notify.NewTwilio(
		mustEnv(log, "TWILIO_ACCOUNT_SID"),
		mustEnv(log, "TWILIO_AUTH_TOKEN"),
		mustEnv(log, "TWILIO_PHONE_NUMBER"),
	)

	orch, err := session.New(session.Config{
		Calls:     calls,
		Responses: responses,
		Patients:  patients,
		Snapshots: snapshots,
		Reply:     replyProvider,
		TTS:       ttsProvider,
		Control:   twilio,
		Export:    exporter,
		Logger:    log,
	})
	if err != nil {
		log.Fatalf("orchestrator init error: %v", err)
	}

	reminderService := services.NewReminderService(appointments, twilio, log)
	worker := &workers.ReminderWorker{Service: reminderService, Interval: reminderInterval(log), Logger: log}
	if err := worker.Start(ctx); err != nil {
		log.Fatalf("reminder worker error: %v", err)
	}

	callService := services.NewCallService(patients, calls, responses, redisCache)

	r := gin.New()
	r.Use(gin.Recovery())
	routes.Register(r, routes.Deps{
		Call:     handlers.NewCallHandler(callService),
		Twilio:   handlers.NewTwilioHandler(orch, sttProvider, log),
		Reminder: handlers.NewReminderHandler(reminderService),
		Logger:   log,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func buildReplyProvider(ctx context.Context, log *logrus.Logger) reply.Provider {
	switch os.Getenv("REPLY_PROVIDER") {
	case "", "grok":
		return reply.NewGrok(mustEnv(log, "XAI_API_KEY"), os.Getenv("REPLY_MODEL"))
	case "vertex":
		p, err := reply.NewVertexGemini(ctx,
			mustEnv(log, "GOOGLE_CLOUD_PROJECT"),
			os.Getenv("VERTEX_LOCATION"),
			os.Getenv("REPLY_MODEL"),
		)
		if err != nil {
			log.Fatalf("Vertex init error: %v", err)
		}
		return p
	default:
		log.Fatalf("unknown REPLY_PROVIDER %q", os.Getenv("REPLY_PROVIDER"))
		return nil
	}
}

func buildSTTProvider(ctx context.Context, log *logrus.Logger) stt.Provider {
	switch os.Getenv("STT_PROVIDER") {
	case "", "assemblyai":
		return stt.NewAssemblyAI(mustEnv(log, "ASSEMBLY_AI_API_KEY"))
	case "google":
		p, err := stt.NewGoogleSpeech(ctx, nil)
		if err != nil {
			log.Fatalf("Cloud Speech init error: %v", err)
		}
		return p
	default:
		log.Fatalf("unknown STT_PROVIDER %q", os.Getenv("STT_PROVIDER"))
		return nil
	}
}

func reminderInterval(log *logrus.Logger) time.Duration {
	val := os.Getenv("REMINDER_INTERVAL")
	if val == "" {
		return 0 // worker default
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		log.Fatalf("invalid REMINDER_INTERVAL %q: %v", val, err)
	}
	return d
}

func mustEnv(log *logrus.Logger, key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("missing required environment variable %s", key)
	}
	return val
}
