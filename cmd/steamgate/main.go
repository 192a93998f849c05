// Command steamgate runs the profile-validation service: it pulls queued
// gaming-platform profiles through a battery of upstream checks, submits
// every profile that passes them all to the downstream ingestion API, and
// serves an HTTP status surface for operators.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"steamgate/internal/api"
	"steamgate/internal/app/bootstrap"
	"steamgate/internal/app/server"
)

func main() {
	if err := run(); err != nil {
		log.Error("steamgate: fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Warn("no .env file found, falling back to system environment variables")
	}

	productionFlag := flag.Bool("production", false, "Run in production mode")
	flag.Parse()
	if *productionFlag {
		log.SetLevel(log.InfoLevel)
	} else {
		log.SetLevel(log.DebugLevel)
	}

	components, err := bootstrap.Setup()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go components.Scheduler.Run(ctx)
	go components.HealthJudge.Run(ctx)
	go components.History.Run(ctx)

	srv := api.New(components.Queue, components.Cooldowns, components.Registry, components.HealthJudge)

	log.Info("steamgate: starting",
		"listen_host", components.Settings.ListenHost,
		"listen_port", components.Settings.ListenPort,
	)

	return server.Run(ctx, components.Settings.ListenHost, components.Settings.ListenPort, srv.Routes())
}
