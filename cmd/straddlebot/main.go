package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"straddlebot/internal/auth"
	"straddlebot/internal/config"
	"straddlebot/internal/delta"
	"straddlebot/internal/metrics"
	"straddlebot/internal/ops"
	"straddlebot/internal/scheduler"
	"straddlebot/internal/strategy"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	once := flag.Bool("once", false, "run the strategy immediately and exit instead of scheduling")
	flag.Parse()

	// Setup logger
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// .env is optional, real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid log level")
	}
	log.Logger = log.Logger.Level(level)

	log.Info().
		Str("version", version).
		Str("mode", cfg.Strategy.Mode).
		Str("symbol", cfg.Market.Symbol).
		Str("sell_time", cfg.Strategy.SellTime).
		Str("timezone", cfg.Strategy.Timezone).
		Msg("Starting straddle bot")

	collector := metrics.NewCollector()
	signer := auth.NewSigner(cfg.API.Key, cfg.API.Secret)
	client := delta.NewClient(cfg.API.BaseURL, signer,
		delta.WithTimeout(cfg.Client.Timeout),
		delta.WithMaxRetries(cfg.Client.MaxRetries),
		delta.WithRateLimit(cfg.Client.RatePerSecond, cfg.Client.RateBurst),
		delta.WithErrorHook(collector.RecordAPIError),
	)
	straddle := strategy.New(client, cfg, log.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	job := func(ctx context.Context) {
		report, err := straddle.Execute(ctx)
		collector.RecordRun(report)
		if err != nil {
			log.Error().Err(err).Str("run_id", report.RunID).Msg("Strategy run failed")
			return
		}
		log.Info().Str("run_id", report.RunID).Str("outcome", metrics.Outcome(report)).Msg("Strategy run finished")
	}

	if *once {
		job(ctx)
		return
	}

	var opsServer *ops.Server
	serverErrors := make(chan error, 1)
	if cfg.Ops.Enabled {
		opsServer = ops.NewServer(cfg.Ops.Port, cfg.Strategy.Mode, version, collector, log.Logger)
		go func() {
			serverErrors <- opsServer.Start()
		}()
	}

	hour, minute, err := cfg.SellAt()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid sell time")
	}
	location, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid timezone")
	}

	sched := scheduler.New(hour, minute, location, log.Logger)
	schedDone := make(chan error, 1)
	go func() {
		schedDone <- sched.Run(ctx, job)
	}()

	select {
	case err := <-serverErrors:
		if err != nil {
			log.Error().Err(err).Msg("Ops server error")
		}
		stop()
		<-schedDone
	case <-schedDone:
	}

	if opsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown ops server gracefully")
		}
	}

	log.Info().Msg("Shutdown complete")
}
