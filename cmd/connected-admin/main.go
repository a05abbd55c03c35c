package main

import (
	"context"
	"errors"
	"log"
	"os"

	"connected/internal/app"
	"connected/internal/config"
	"connected/internal/logging"
)

func main() {
	logger := log.New(os.Stderr, "ADMIN : ", log.LstdFlags)

	cfg, err := config.Load(os.Getenv(config.EnvPrefix + "_CONFIG_FILE"))
	if err != nil {
		logger.Fatal(err)
	}
	cfg.Log.Level = "warn"

	application, err := app.NewApplication(cfg, logging.New(cfg.Log, os.Stderr))
	if err != nil {
		logger.Fatal(err)
	}

	cli := commandLine{
		accounts:   application.Auth(),
		identities: application.Database(),
		out:        os.Stdout,
	}
	err = cli.run(os.Args)
	if stopErr := application.Stop(context.Background()); stopErr != nil {
		logger.Printf("shutdown: %v", stopErr)
	}
	if err != nil {
		if !errors.Is(err, errHelp) {
			logger.Printf("error: %s", err)
		}
		os.Exit(1)
	}
}
