package main

import (
	"context"
	"flag"
	"log"

	"github.com/joho/godotenv"

	"codeflow/internal/config"
	"codeflow/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "Configuration file path")
	bind := flag.String("bind", "", "Listen address (overrides sandbox.bind)")
	logLevel := flag.String("log-level", "", "Override logging.level")
	flag.Parse()

	_ = godotenv.Load()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *bind != "" {
		cfg.Sandbox.Bind = *bind
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}

	if err := daemonrun.RunSandbox(context.Background(), cfg, daemonrun.Options{LogLevel: *logLevel}); err != nil {
		log.Fatalf("codeflow-sandbox: %v", err)
	}
}
