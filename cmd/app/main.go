package main

import (
	"context"
	"flag"
	"log"
	"os"

	"FinPrep/internal/di"
	"FinPrep/pkg/config"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "config file path")
	once := flag.Bool("once", false, "run the configured batch once and exit")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s provider=%s cache=%s kafka=%t", cfg.Environment, cfg.Provider.Type, cfg.Provider.Cache, cfg.Kafka.Enabled)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	if *once {
		res, err := app.RunOnce(context.Background())
		if err != nil {
			log.Printf("prepare failed: %v", err)
			os.Exit(1)
		}
		log.Printf("prepare ok run_id=%s rows=%d degraded=%v published=%t", res.RunID, res.Rows, res.Degraded, res.Published)
		return
	}

	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
