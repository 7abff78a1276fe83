package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"

	"chatrelay/internal/config"
	"chatrelay/internal/migrations"
	"chatrelay/internal/security"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file; its database path is used unless -db is set")
	dbPath := flag.String("db", "", "Path to the database file")
	down := flag.Bool("down", false, "Roll back every applied migration")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	path, err := resolvePath(*configPath, *dbPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to resolve database path")
	}

	if err := migrate(path, *down, logger); err != nil {
		logger.WithError(err).Fatal("Migration failed")
	}
}

func resolvePath(configPath, dbPath string) (string, error) {
	if dbPath != "" {
		return dbPath, nil
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	return cfg.Database.Path, nil
}

func migrate(path string, down bool, logger *logrus.Logger) error {
	if err := security.ValidateFilePath(path); err != nil {
		return fmt.Errorf("invalid database path: %w", err)
	}
	if down {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("database file not found: %s", path)
		}
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	entry := logger.WithField("path", path)

	if down {
		if err := migrations.Down(db); err != nil {
			return err
		}
		entry.Info("All migrations rolled back")
		return nil
	}

	result, err := migrations.Up(db)
	if err != nil {
		return err
	}
	entry = entry.WithFields(logrus.Fields{
		"version": result.Version,
		"dirty":   result.Dirty,
	})
	if !result.Changed {
		entry.Info("Schema already up to date")
		return nil
	}
	entry.Info("Migrations applied")
	return nil
}
