package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meetscribe/internal/api"
	"meetscribe/internal/config"
	"meetscribe/internal/insights"
	"meetscribe/internal/logger"
	"meetscribe/internal/media"
	"meetscribe/internal/pipeline"
	"meetscribe/internal/store"
	"meetscribe/internal/transcribe"
)

func main() {
	// 1. Parse command-line arguments
	listenAddr := flag.String("l", ":8080", "HTTP listen address")
	logLevel := flag.String("L", "info", "Log level (error, warn, info, debug)")
	configFile := flag.String("c", "meetscribe.json", "Path to the config file")
	flag.Parse()

	// 2. Initialize logger
	log := logger.NewLogger(*logLevel)
	log.Infof("Starting meetscribe transcription service...")
	log.Infof("Log level set to: %s", *logLevel)

	// 3. Load configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	if cfg.APIKey == "" {
		log.Errorf("OPENAI_API_KEY must be set")
		os.Exit(1)
	}
	log.Infof("Configuration loaded: data dir %s, %d workers, %d byte segments",
		cfg.DataDir, cfg.Workers, cfg.MaxSegmentBytes)

	// 4. Initialize services
	artifacts, err := store.New(log, cfg.DataDir)
	if err != nil {
		log.Errorf("Failed to initialize artifact store: %v", err)
		os.Exit(1)
	}

	ffmpeg := media.NewFFmpeg(log)
	transcriber := transcribe.NewClient(log, cfg.APIKey, cfg.TranscribeEndpoint, cfg.TranscribeModel)
	orchestrator := pipeline.NewOrchestrator(log, ffmpeg, ffmpeg, transcriber, pipeline.Options{
		WorkDir:         cfg.WorkDir,
		MaxSegmentBytes: cfg.MaxSegmentBytes,
		Workers:         cfg.Workers,
		SegmentTimeout:  cfg.SegmentTimeout,
	})
	generator := insights.NewService(log, cfg.APIKey, cfg.InsightsBaseURL, cfg.InsightsModel)

	// 5. Set up API router with dependencies
	router := api.New(log, artifacts, orchestrator, generator)

	// 6. Set up and run the HTTP server with graceful shutdown
	server := &http.Server{
		Addr:    *listenAddr,
		Handler: router,
	}

	go func() {
		log.Infof("Server starting on %s", *listenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Could not listen on %s: %v", *listenAddr, err)
			os.Exit(1)
		}
	}()

	// Listen for shutdown signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Infof("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("Server shutdown failed: %v", err)
		os.Exit(1)
	}

	log.Infof("Server exited gracefully")
}
