package main

import (
	"context" // Migration context

	"banker_api/internal/auth"           // Banker app seeding
	"banker_api/internal/config"         // Custom import path (Config)
	"banker_api/internal/db"             // Custom import path (Database)
	"banker_api/internal/store/sqlstore" // Records table

	"github.com/sirupsen/logrus" // Logging library
)

// Main entry point for migration
func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.LoadConfig() // Load configuration
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	gdb, err := db.Open(cfg) // Open a connection to the database
	if err != nil {
		logrus.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close(gdb)

	ctx := context.Background()
	if err := db.Migrate(ctx, gdb); err != nil {
		logrus.Fatalf("%v", err)
	}
	// Seed the banker app so it can request tokens
	apps := auth.NewAppStore(sqlstore.New(gdb))
	if err := db.SeedBanker(ctx, apps, cfg.BankerID, cfg.BankerKey); err != nil {
		logrus.Fatalf("%v", err)
	}
}
