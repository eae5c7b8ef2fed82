package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/local/imagetools/internal/ai"
	cfgpkg "github.com/local/imagetools/internal/config"
	"github.com/local/imagetools/internal/imagerender"
	logpkg "github.com/local/imagetools/internal/logger"
	"github.com/local/imagetools/internal/metrics"
	"github.com/local/imagetools/internal/statuscheck"
	"github.com/local/imagetools/internal/storage"
	"github.com/local/imagetools/internal/tools"
	"github.com/local/imagetools/internal/web"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()
	cfg := cfgpkg.FromEnv()

	// Init logging
	_ = logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	})
	defer logpkg.Close()

	metrics.Init()

	// Remote tools
	builder := ai.NewBuilder(ai.BuilderOptions{
		Models: ai.Models{
			Generate:         cfg.AI.Models.Generate,
			Recognize:        cfg.AI.Models.Recognize,
			RemoveBackground: cfg.AI.Models.RemoveBackground,
		},
		GenerateMaxTokens:   cfg.AI.GenerateMaxTokens,
		GenerateTemperature: cfg.AI.GenerateTemperature,
		VisionMaxTokens:     cfg.AI.VisionMaxTokens,
	})
	client := ai.NewClient(ai.ClientOptions{
		Endpoint: cfg.AI.Endpoint,
		APIKey:   cfg.AI.APIKey,
		Timeout:  cfg.AI.Timeout,
	})
	if cfg.AI.APIKey == "" {
		log.Warn().Msg("AI_API_KEY not set; generate, recognize and remove_background will fail")
	}
	runner := tools.NewRunner(builder, client)

	// Asset loading
	var s3c *storage.S3Client
	if cfg.Server.S3Bucket != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		c, err := storage.NewS3Client(ctx, cfg.Server.S3Bucket)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("S3 disabled")
		} else {
			s3c = c
		}
	}
	loader := storage.NewLoader(storage.Options{
		MaxBytes:     cfg.Server.MaxUploadBytes,
		FetchTimeout: cfg.Server.FetchTimeout,
		S3:           s3c,
	})

	checkOpts := statuscheck.Options{
		State:    func() string { return runner.State().String() },
		Endpoint: cfg.AI.Endpoint,
		APIKey:   cfg.AI.APIKey,
	}
	if s3c != nil {
		checkOpts.S3 = s3c
	}

	mux := http.NewServeMux()
	web.New(runner, loader, imagerender.Config{
		Quality: cfg.Compress.Quality,
		MaxEdge: cfg.Compress.MaxEdge,
	}).WithStatus(statuscheck.New(checkOpts)).RegisterRoutes(mux)

	srv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: mux}

	go func() {
		log.Info().
			Str("endpoint", cfg.AI.Endpoint).
			Float64("quality", cfg.Compress.Quality).
			Int("max_edge", cfg.Compress.MaxEdge).
			Msgf("HTTP server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	fmt.Println("shutdown complete")
}
