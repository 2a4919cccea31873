package repo

import (
	"log"

	"roulette-service/internal/config"
	"roulette-service/internal/model"
	"roulette-service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func InitDB() {
	dsn := config.GlobalConfig.Database.DSN
	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		logger.Log.Fatal("Failed to connect to database",
			zap.Error(err),
		)
	}

	err = DB.AutoMigrate(model.All()...)
	if err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
}
