package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/PratikDhanave/interaction-analytics-service/internal/config"
	"github.com/PratikDhanave/interaction-analytics-service/internal/httpserver"
	"github.com/PratikDhanave/interaction-analytics-service/internal/logging"
	"github.com/PratikDhanave/interaction-analytics-service/internal/metrics"
	"github.com/PratikDhanave/interaction-analytics-service/internal/session"
	"github.com/PratikDhanave/interaction-analytics-service/internal/sink"
	"github.com/PratikDhanave/interaction-analytics-service/internal/store"
)

// main boots the service: config → store → sinks → sessions → HTTP server.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		logrus.WithError(err).Fatal("configure logging")
	}

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("service stopped")
	}
}

func run(cfg config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Direct /events ingestion is persisted by its handler; it only needs the forwarding sinks.
	forward := sink.Multi{sink.NewLogSink(log)}
	if cfg.RedisURL != "" {
		rs, err := sink.NewRedisSink(cfg.RedisURL, cfg.RedisStream, cfg.RedisMaxLen)
		if err != nil {
			return err
		}
		defer rs.Close()
		forward = append(forward, rs)
		log.WithField("stream", cfg.RedisStream).Info("forwarding analytics events to redis")
	}
	events := sink.Instrument(append(sink.Multi{store.NewSink(st)}, forward...), m)

	sessions := session.New(session.Options{
		Sink:    events,
		Logger:  log,
		Metrics: m,
		TTL:     cfg.SessionTTL,
		Rate:    rate.Limit(cfg.SignalRate),
		Burst:   cfg.SignalBurst,
		RootID:  cfg.RootElementID,
	})
	defer sessions.Close()

	router := httpserver.NewRouter(httpserver.Deps{
		Config:   cfg,
		Store:    st,
		Sessions: sessions,
		Stream:   forward,
		Gatherer: registry,
		Logger:   log,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{"addr": cfg.HTTPAddr, "store": cfg.StoreDriver}).Info("server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "listen")
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	log.Info("server exited")
	return nil
}

// openStore connects to the configured durable store and makes sure its schema exists.
func openStore(ctx context.Context, cfg config.Config) (store.EventStore, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		sq, err := store.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return sq, nil
	default:
		pg, err := store.NewPostgresStore(cfg.DBURL)
		if err != nil {
			return nil, err
		}
		// Tables/indexes are created on boot so `docker compose up --build` is enough.
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	}
}
