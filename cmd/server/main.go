package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"plate-scanner/internal/config"
	"plate-scanner/internal/db"
	httph "plate-scanner/internal/http"
	"plate-scanner/internal/logger"
	"plate-scanner/internal/pipeline"
	"plate-scanner/internal/repository"
	"plate-scanner/internal/service"
	"plate-scanner/internal/vision"
)

func main() {
	configPath := flag.String("config", os.Getenv("PLATESCANNER_CONFIG"), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config load failed:", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	gdb, err := db.Open(cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("database init failed")
	}

	registryRepo := repository.NewRegistryRepository(gdb)
	detectionRepo := repository.NewDetectionRepository(gdb)
	plateService := service.NewPlateService(registryRepo, detectionRepo, log)

	recognizer := vision.NewHTTPRecognizer(cfg.Vision.OCREndpoint, cfg.Vision.OCRTimeout)
	newDetector := func() (vision.Detector, error) {
		return vision.NewDNNDetector(cfg.Vision.ModelPath, cfg.Vision.InputSize, cfg.Pipeline.DetectionConfidence)
	}

	pool := pipeline.NewPool(pipeline.PoolConfig{
		Workers:            cfg.Pipeline.WorkerCount,
		QueueCapacity:      cfg.Pipeline.QueueCapacity,
		OCRConfidenceFloor: cfg.Pipeline.OCRConfidenceFloor,
		HistorySize:        cfg.Pipeline.HistorySize,
		ShutdownGrace:      cfg.Pipeline.ShutdownGrace,
	}, newDetector, recognizer, log)

	sink := pipeline.NewSink(pool.Results(), registryRepo, detectionRepo, pipeline.SinkConfig{
		HistorySize: cfg.Pipeline.ReconcileHistorySize,
		StaleAfter:  cfg.Pipeline.ReconcileStaleAfter,
	}, log)

	cameras := pipeline.NewCameraManager(pool, cfg.Pipeline.FrameSkip, log)

	ctx := context.Background()
	if err := pool.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("worker pool start failed")
	}
	if err := sink.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("result sink start failed")
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handler := httph.NewHandler(plateService, cameras, sink, cfg, log)
	handler.Register(r, httph.NewAuthMiddleware(cfg.Auth))

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: r}
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	// Drain upstream first: capture loops, then workers, then the sink.
	cameras.Shutdown()
	pool.Stop()
	sink.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}

	log.Info().Msg("shutdown complete")
}
