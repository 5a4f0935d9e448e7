package main

import (
	"github.com/wfunc/quizduel/config"
	"github.com/wfunc/quizduel/logger"
	"github.com/wfunc/quizduel/monitor"
	"github.com/wfunc/quizduel/persistence"
	"github.com/wfunc/quizduel/server"
)

func main() {
	// Initialize logger
	logger.Init()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Database
	db, err := persistence.NewGormPostgreSQL(
		cfg.Database.Postgres.Host,
		cfg.Database.Postgres.Port,
		cfg.Database.Postgres.User,
		cfg.Database.Postgres.Password,
		cfg.Database.Postgres.DBName,
	)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	logger.Log.Info("Database connection successful.")

	// Metrics endpoint
	mon := monitor.NewMonitor("quizduel")
	mon.StartServer(cfg.Server.MetricsAddress)

	// Initialize Quiz Server
	quizServer := server.NewQuizServer(cfg, db, mon)

	// Start Server
	logger.Log.Infof("Starting quiz server on %s", cfg.Server.HTTPAddress)
	if err := quizServer.Start(); err != nil {
		logger.Log.Fatalf("Failed to start server: %v", err)
	}
}
