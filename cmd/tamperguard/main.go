package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/AlexKimmel/tamperguard/internal/action"
	"github.com/AlexKimmel/tamperguard/internal/auth"
	"github.com/AlexKimmel/tamperguard/internal/config"
	"github.com/AlexKimmel/tamperguard/internal/gateway"
	"github.com/AlexKimmel/tamperguard/internal/obs"
	"github.com/AlexKimmel/tamperguard/internal/protect"
	"github.com/AlexKimmel/tamperguard/internal/runner"
)

var version = "v0.1.0"

// bootEnv is read before the config file exists.
type bootEnv struct {
	ConfigPath string `env:"CONFIG" envDefault:"./config.yaml"`
}

func main() {
	_ = godotenv.Load()

	boot, err := env.ParseAsWithOptions[bootEnv](env.Options{Prefix: "TAMPERGUARD_"})
	if err != nil {
		l := obs.SetupLogger("info")
		l.Fatal().Err(err).Msg("read environment")
	}

	path := flag.String("config", boot.ConfigPath, "path to config file (env TAMPERGUARD_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		l := obs.SetupLogger("info")
		l.Fatal().Err(err).Str("path", *path).Msg("load config")
	}

	logger := obs.SetupLogger(cfg.Observability.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("tamperguard stopped")
	}
	logger.Info().Msg("bye")
}

func run(cfg *config.Root, logger zerolog.Logger) error {
	pcfg, err := cfg.Protection.ProtectorConfig()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := obs.NewMetrics(reg)

	protector, err := protect.New(pcfg,
		protect.WithLogger(logger.With().Str("component", "protector").Logger()),
		protect.WithRecorder(metrics),
	)
	if err != nil {
		return err
	}
	reg.MustRegister(obs.NewSnapshotCollector(protector))

	commands := make(map[action.Kind]runner.Command, len(cfg.Actions))
	for kind, a := range cfg.Actions {
		commands[kind] = runner.Command{Argv: a.Command, Timeout: a.Timeout()}
	}
	executors := runner.NewRegistry(commands)
	for _, k := range action.All() {
		if !executors.Configured(k) {
			logger.Warn().Str("action", k.String()).Msg("no command configured; triggers will fail")
		}
	}

	pairs := map[string]string{} // secret -> caller id
	for _, k := range cfg.Auth.Keys {
		if k.Secret != "" && k.ID != "" {
			pairs[k.Secret] = k.ID
		}
	}
	if len(pairs) == 0 {
		logger.Warn().Msg("no API keys configured; trigger endpoint rejects every request")
	}

	handler := gateway.NewRouter(gateway.Options{
		Protector:      protector,
		Executors:      executors,
		Auth:           auth.NewStatic(cfg.Auth.Header, pairs).Middleware,
		Logger:         logger,
		Metrics:        metrics,
		MetricsPath:    cfg.Observability.PrometheusPath,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		MaxBodyBytes:   cfg.Server.MaxBody(),
		Version:        version,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout(),
		IdleTimeout:       cfg.Server.IdleTimeout(),
		ReadTimeout:       cfg.Server.ReadTimeout(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().
			Str("addr", srv.Addr).
			Str("preset", cfg.Protection.Preset).
			Bool("metrics", pcfg.EnableMetrics).
			Bool("logging", pcfg.EnableLogging).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
