package main

import (
	"context"
	"log"

	"csvlens-be/internal/bootstrap"
	"csvlens-be/internal/config"
	"csvlens-be/internal/server"
	"csvlens-be/internal/tracer"
	"csvlens-be/pkg/database"
)

func main() {
	// 0. Initialize Tracer
	shutdownTracer := tracer.InitTracer()
	defer shutdownTracer(context.Background())

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Database
	gormDB, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		log.Panicf("Unable to connect to GORM DB: %v", err)
	}

	// 3. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(gormDB, cfg)

	// 4. Start Background Services
	ctx := context.Background()
	go container.CollabHub.Run(ctx)
	go func() {
		log.Println("Background: Starting Collab Event Forwarder...")
		if err := container.CollabEventService.Forward(ctx); err != nil {
			log.Printf("Background Forwarder Error: %v", err)
		}
	}()

	// 5. Initialize Server
	srv := server.New(cfg, container)

	// 6. Run Server
	log.Fatal(srv.Run())
}
