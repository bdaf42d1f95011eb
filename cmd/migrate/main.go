package main

import (
	"ledger_core/internal/config" // Custom import path (Config)
	"ledger_core/internal/db"     // Custom import path (Database)
)

// Main entry point for migration
func main() {
	cfg := config.LoadConfig() // Load configuration
	db.Migrate(cfg.DSN())
}
