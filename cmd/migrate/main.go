package main

import (
	"log"

	"csvlens-be/internal/config"
	"csvlens-be/internal/entity"
	"csvlens-be/pkg/database"
)

func main() {
	cfg := config.Load()

	db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		log.Fatalf("Unable to connect to DB: %v", err)
	}

	err = db.AutoMigrate(
		&entity.Dataset{},
		&entity.DatasetCellEdit{},
		&entity.DatasetComment{},
		&entity.DatasetCommentReply{},
	)
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Migration complete")
}
