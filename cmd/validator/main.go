package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/lpvalidator/internal/archive"
	"github.com/elys-network/lpvalidator/internal/config"
	"github.com/elys-network/lpvalidator/internal/events/cachedevents"
	"github.com/elys-network/lpvalidator/internal/events/pgevents"
	"github.com/elys-network/lpvalidator/internal/executor"
	"github.com/elys-network/lpvalidator/internal/livegate"
	"github.com/elys-network/lpvalidator/internal/logger"
	"github.com/elys-network/lpvalidator/internal/scheduler"
	"github.com/elys-network/lpvalidator/internal/state"
	"github.com/elys-network/lpvalidator/internal/transport/grpctransport"
	"github.com/elys-network/lpvalidator/internal/web"

	"github.com/redis/go-redis/v9"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, relying on OS environment variables")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("lpvalidator starting")

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	jobs, err := config.LoadJobs(cfg.JobsConfigPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load jobs config")
	}
	directory, err := config.LoadMinerDirectory(cfg.MinerDirectoryPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load miner directory")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := state.New(ctx, state.Config{
		Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize reputation store")
	}
	defer store.Close()

	for _, job := range jobs {
		if err := store.UpsertJob(ctx, job); err != nil {
			log.Fatal().Err(err).Str("job_id", job.JobID).Msg("failed to upsert job")
		}
	}

	eventsDSN := os.Getenv("EVENTS_DATABASE_URL")
	pgSource, err := pgevents.New(ctx, eventsDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect events source")
	}
	defer pgSource.Close()

	var redisClient *redis.Client
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: addr})
	}
	source := cachedevents.New(pgSource, redisClient, 10*time.Minute)

	grpcTransport := grpctransport.New(directory)

	sink := executor.Sink(executor.NewLogSink())

	archiveSink, err := archive.New(ctx, archive.Config{
		Endpoint:       os.Getenv("ARCHIVE_S3_ENDPOINT"),
		Region:         os.Getenv("ARCHIVE_S3_REGION"),
		Bucket:         os.Getenv("ARCHIVE_S3_BUCKET"),
		AccessKey:      os.Getenv("ARCHIVE_S3_ACCESS_KEY"),
		SecretKey:      os.Getenv("ARCHIVE_S3_SECRET_KEY"),
		ForcePathStyle: os.Getenv("ARCHIVE_S3_FORCE_PATH_STYLE") == "true",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize archive sink")
	}
	if archiveSink == nil {
		log.Info().Msg("archive bucket not configured, rounds will not be mirrored to object storage")
	}

	gate := livegate.New(store, sink, 30*time.Second)
	go gate.Run(ctx)

	webPort := os.Getenv("WEB_PORT")
	dashboard := web.New(webPort, store, web.NewHub())
	go func() {
		log.Info().Str("port", webPort).Msg("starting dashboard server")
		if err := dashboard.Start(); err != nil {
			log.Error().Err(err).Msg("dashboard server exited")
		}
	}()

	sched := scheduler.New(store, source, grpcTransport, gate, dashboard.Hub(), archiveSink, directory, cfg.MinerTimeout, cfg.DryRun)

	log.Info().Int("jobs", len(jobs)).Bool("dry_run", cfg.DryRun).Msg("starting scheduler")
	if err := sched.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("scheduler exited with error")
	}
	log.Info().Msg("lpvalidator shut down cleanly")
}

func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
