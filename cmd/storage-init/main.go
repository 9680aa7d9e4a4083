package main

import (
	"context"

	"github.com/caarlos0/env/v11"
	log "github.com/sirupsen/logrus"

	"taskboard-api/storage"
)

type initConfig struct {
	Debug             bool   `env:"DEBUG"`
	ConnectionString  string `env:"STORAGE_CONNECTION_STRING,required"`
	UsersTable        string `env:"USERS_TABLE" envDefault:"Users"`
	TasksTable        string `env:"TASKS_TABLE" envDefault:"Tasks"`
	DomainEventsQueue string `env:"DOMAIN_EVENTS_QUEUE"`
}

func main() {
	cfg, err := env.ParseAs[initConfig]()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")

	ctx := context.Background()
	if err := storage.CreateTables(ctx, cfg.ConnectionString, []string{cfg.UsersTable, cfg.TasksTable}); err != nil {
		log.Fatalf("create tables: %v", err)
	}
	if err := storage.CreateQueues(ctx, cfg.ConnectionString, []string{cfg.DomainEventsQueue}); err != nil {
		log.Fatalf("create queues: %v", err)
	}

	log.Info("storage init complete")
}
