package main

import (
	"context"
	"log"
	"os"

	"tradeflow/internal/app"
	"tradeflow/internal/config"
	"tradeflow/internal/logger"
)

func main() {
	ctx := context.Background()
	cfgPath := os.Getenv("TRADEFLOW_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) && os.Getenv("TRADEFLOW_CONFIG") == "" {
		// run on defaults and environment when no config file is present
		cfgPath = ""
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config failed: %v", err)
	}
	logger.SetLevel(cfg.App.LogLevel)
	if cfgPath != "" {
		if err := config.WatchLogLevel(cfgPath); err != nil {
			logger.Warnf("config watch disabled: %v", err)
		}
	}
	logger.Infof("config loaded (env=%s db=%s)", cfg.App.Env, cfg.Database.Path)

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("initializing app failed: %v", err)
	}
	if err := a.Run(ctx); err != nil {
		log.Fatalf("run failed: %v", err)
	}
}
