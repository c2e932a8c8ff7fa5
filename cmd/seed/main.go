package main

import (
	"encoding/json"
	"log"
	"time"

	"csvlens-be/internal/config"
	"csvlens-be/internal/entity"
	"csvlens-be/pkg/database"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Seeds a demo dataset so a fresh environment has something to open in the
// collaborative grid.
func main() {
	cfg := config.Load()

	db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		log.Fatalf("Unable to connect to DB: %v", err)
	}

	columns := []string{"month", "region", "sales", "units"}
	rows := []map[string]interface{}{
		{"month": "2026-01", "region": "EMEA", "sales": "125000", "units": "340"},
		{"month": "2026-01", "region": "APAC", "sales": "98000", "units": "275"},
		{"month": "2026-02", "region": "EMEA", "sales": "131500", "units": "361"},
		{"month": "2026-02", "region": "APAC", "sales": "102300", "units": "289"},
		{"month": "2026-03", "region": "EMEA", "sales": "127800", "units": "352"},
	}

	rawColumns, _ := json.Marshal(columns)
	rawRows, _ := json.Marshal(rows)

	dataset := entity.Dataset{
		Id:        uuid.New(),
		UserId:    uuid.New(),
		Name:      "Quarterly Sales Demo",
		Filename:  "quarterly_sales.csv",
		Columns:   datatypes.JSON(rawColumns),
		Rows:      datatypes.JSON(rawRows),
		RowCount:  len(rows),
		CreatedAt: time.Now(),
	}

	if err := db.Create(&dataset).Error; err != nil {
		color.Red("Failed to seed demo dataset: %v", err)
		return
	}

	color.Green("Seeded demo dataset %s (%d rows)", dataset.Id, dataset.RowCount)
	color.Cyan("Open it at /api/datasets/%s", dataset.Id)
}
