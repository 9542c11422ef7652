package main

import (
	"flag"
	"log"
	"os"

	"QuantLens/internal/di"
	"QuantLens/pkg/config"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "configs/config.yaml", "config file path")
	flag.Parse()

	// Load config
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s chain_backend=%s queue=%s sentiment=%s",
		cfg.Environment, cfg.ChainFeed.Backend, cfg.Queue.Backend, cfg.Sentiment.Strategy)

	// Wire DI: Initialize all dependencies
	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// Run application (blocks until signal)
	err = app.Run()
	cleanup()
	if err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
