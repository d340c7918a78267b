package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/AlexKimmel/adgate/internal/config"
	"github.com/AlexKimmel/adgate/internal/decision"
	"github.com/AlexKimmel/adgate/internal/freqcap"
	"github.com/AlexKimmel/adgate/internal/freqcap/memory"
	"github.com/AlexKimmel/adgate/internal/freqcap/redis"
	"github.com/AlexKimmel/adgate/internal/freqcap/sqlite"
	"github.com/AlexKimmel/adgate/internal/impression"
	"github.com/AlexKimmel/adgate/internal/interstitial"
	"github.com/AlexKimmel/adgate/internal/mainloop"
	"github.com/AlexKimmel/adgate/internal/mediation"
	"github.com/AlexKimmel/adgate/internal/obs"
	"github.com/AlexKimmel/adgate/internal/sdk"
	"github.com/AlexKimmel/adgate/internal/surface"
	"github.com/AlexKimmel/adgate/internal/transport"
)

const version = "v0.1.0"

func main() {
	configPath := flag.String("config", "./config.yaml", "path to the YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := obs.SetupLogger(cfg.Observability.LogLevel)
	logger.Info().Str("version", version).Msg("Setup logger")

	otel.SetTextMapPropagator(propagation.TraceContext{})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := obs.NewMetrics(reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := opsServer(cfg, reg, logger)
	if srv != nil {
		go func() {
			logger.Info().Str("addr", srv.Addr).Msg("ops server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("server error: %v", err)
			}
		}()
	}

	showLog, err := openShowLog(ctx, cfg.Store, logger)
	if err != nil {
		log.Fatalf("open show log: %v", err)
	}
	defer showLog.Close()

	store, err := freqcap.NewStore(ctx, showLog, freqcap.Options{
		LocalCap: cfg.Capping.FrequencyCap(),
		Logger:   logger,
		Metrics:  metrics,
	})
	if err != nil {
		log.Fatalf("restriction store: %v", err)
	}

	tr := transport.NewHTTPTransport()
	client, err := decision.New(decision.Config{
		BaseURL:   cfg.Endpoints.DecisionURL,
		Timeout:   cfg.Endpoints.FetchTimeout(),
		Transport: tr,
		Consent:   decision.StaticConsent(decision.ParseTrackingStatus(cfg.SDK.TrackingStatus)),
		Logger:    logger,
		Metrics:   metrics,
	})
	if err != nil {
		log.Fatalf("decision client: %v", err)
	}
	reporter := impression.New(impression.Config{
		FallbackURL: cfg.Endpoints.TrackURL,
		Transport:   tr,
		Logger:      logger,
		Metrics:     metrics,
	})

	loop := mainloop.New()
	loopCtx, stopLoop := context.WithCancel(context.Background())
	go func() { _ = loop.Run(loopCtx) }()

	headless := surface.NewHeadless(cfg.Demo.Dwell(), logger)
	adapter, err := mediation.New(mediation.Deps{
		Identity: sdk.NewIdentity(),
		Ad: interstitial.Config{
			Store:             store,
			Gate:              freqcap.NewGate(store, logger, metrics),
			Fetcher:           client,
			Reporter:          reporter,
			Surface:           headless,
			Loop:              loop,
			DefaultMinVisible: cfg.Capping.DefaultSessionGate(),
			Logger:            logger,
			Metrics:           metrics,
		},
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("mediation adapter: %v", err)
	}
	if err := adapter.Initialize(map[string]string{
		"partner_id": cfg.SDK.PartnerID,
		"app_id":     cfg.SDK.AppID,
	}); err != nil {
		log.Fatalf("initialize adapter: %v", err)
	}

	runDemo(ctx, adapter, cfg.Demo, logger)

	adapter.Destroy()
	headless.Close()
	// let the loop deliver the dismissals that Close produced
	_ = loop.Call(context.Background(), func() {})
	stopLoop()
	<-loop.Done()
	reporter.Wait()

	if srv != nil {
		logger.Info().Msg("demo finished, serving ops endpoints until interrupted")
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
		}
	}
	logger.Info().Msg("bye")
}

func opsServer(cfg *config.Root, reg *prometheus.Registry, logger zerolog.Logger) *http.Server {
	if cfg.Observability.MetricsAddr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(version))
	})
	mux.Handle(cfg.Observability.PrometheusPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &http.Server{
		Addr:              cfg.Observability.MetricsAddr,
		Handler:           obs.Logger(logger)(mux),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func openShowLog(ctx context.Context, cfg config.Store, logger zerolog.Logger) (freqcap.ShowLog, error) {
	switch cfg.Backend {
	case "memory":
		return memory.New(), nil
	case "redis":
		return redis.Connect(ctx, redis.Options{
			Addr:       cfg.RedisAddr,
			Password:   cfg.RedisPassword,
			DB:         cfg.RedisDB,
			Key:        cfg.RedisKey,
			MaxRetries: uint64(cfg.ConnectRetries),
		}, logger)
	default:
		return sqlite.Open(cfg.SQLitePath)
	}
}
