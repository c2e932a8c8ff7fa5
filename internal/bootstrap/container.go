package bootstrap

import (
	"context"
	"log"

	"csvlens-be/internal/collab"
	"csvlens-be/internal/config"
	"csvlens-be/internal/controller"
	"csvlens-be/internal/pkg/auth"
	"csvlens-be/internal/pkg/logger"
	"csvlens-be/internal/repository/implementation"
	"csvlens-be/internal/service"

	pktNats "csvlens-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	DatasetController controller.IDatasetController

	// Collaboration core (exposed for main.go to run the hub loop)
	CollabHub     *collab.Hub
	CollabHandler *collab.Handler

	// Background services
	CollabEventService service.ICollabEventService
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// Collab domain gets its own file-only log: presence and cursor traffic
	// would drown the main log.
	collabLogger := logger.NewIsolatedLogger(cfg.Collab.LogFilePath)

	// In-process event bus between the hub and the NATS forwarder.
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// NATS (platform event stream)
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}

	// Redis (live session stats mirror)
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
		rdb = nil
	}

	datasetRepo := implementation.NewDatasetRepository(db)

	verifier := auth.NewJWTVerifier(cfg.Auth.JWTSecret)
	statsReporter := collab.NewPresenceReporter(rdb, collabLogger)
	registry := collab.NewRegistry(cfg.Collab.ChatLogCapacity)

	hub := collab.NewHub(registry, datasetRepo, pubSub, statsReporter, collabLogger)
	collabHandler := collab.NewHandler(hub, verifier, statsReporter, collabLogger)

	collabEventService := service.NewCollabEventService(pubSub, natsPub, sysLogger)

	datasetService := service.NewDatasetService(datasetRepo)

	return &Container{
		DatasetController:  controller.NewDatasetController(datasetService),
		CollabHub:          hub,
		CollabHandler:      collabHandler,
		CollabEventService: collabEventService,
	}
}
