package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/metalagman/arcft/internal/config"
	"github.com/metalagman/arcft/internal/dataset"
	"github.com/metalagman/arcft/internal/db"
	"github.com/rs/zerolog/log"
)

func workingConfig() (config.Config, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return config.Config{}, err
	}
	return loadConfig(workDir)
}

func openDB(cfg config.Config) (*sql.DB, func(), error) {
	storeDB, err := db.Open(cfg.DBPath())
	if err != nil {
		return nil, func() {}, err
	}
	return storeDB, func() { _ = storeDB.Close() }, nil
}

// lockDataDir takes the data directory lock or fails when another arcft
// process holds it.
func lockDataDir(cfg config.Config) (*db.Lock, error) {
	lock, ok, err := db.TryAcquireLock(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("data dir %s is locked by another arcft process", cfg.DataDir)
	}
	return lock, nil
}

func loadTasks(challenges, solutions string, limit int) ([]dataset.Task, error) {
	if challenges == "" {
		return nil, fmt.Errorf("--challenges is required")
	}
	store, err := dataset.Load(challenges, solutions)
	if err != nil {
		return nil, err
	}
	tasks := store.Tasks(limit)
	log.Debug().Int("tasks", len(tasks)).Int("available", store.Len()).Str("challenges", challenges).Msg("dataset loaded")
	return tasks, nil
}
