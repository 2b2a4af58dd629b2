package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/cyvasse-online/server/internal/config"
	"github.com/cyvasse-online/server/internal/eventbus"
	"github.com/cyvasse-online/server/internal/logging"
	"github.com/cyvasse-online/server/internal/persist"
	"github.com/cyvasse-online/server/pkg/server"
	"github.com/cyvasse-online/server/pkg/transport/websocket"
)

const eventBufferSize = 1024

func main() {
	configPath := flag.String("config", "", "path to a YAML or JSON config file")
	flag.Parse()

	cfg, err := config.Load(config.LoadOptions{Path: *configPath})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)
	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Server.PidFile != "" {
		if err := writePidFile(cfg.Server.PidFile); err != nil {
			return err
		}
		defer os.Remove(cfg.Server.PidFile)
	}

	bus := eventbus.NewInMemoryBus(eventBufferSize, logger)
	bus.Start(ctx)
	defer bus.Stop()

	if cfg.Database.Enabled() {
		stop, err := startPersistence(ctx, cfg.Database, bus, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	if cfg.NATS.Enabled() {
		nc, err := eventbus.ConnectNATS(cfg.NATS.URL, logger)
		if err != nil {
			return fmt.Errorf("connect to nats: %w", err)
		}
		forwarder := eventbus.NewNATSForwarder(nc, cfg.NATS.SubjectPrefix, logger)
		forwarder.Attach(bus)
		defer func() {
			forwarder.Detach()
			_ = nc.Drain()
		}()
		logger.Info("forwarding events to nats", "url", cfg.NATS.URL, "prefix", cfg.NATS.SubjectPrefix)
	}

	engine := server.New(server.Options{
		Workers:  cfg.Workers.Count,
		Ordering: server.Ordering(cfg.Workers.Ordering),
		Logger:   logger,
		EventBus: bus,
	})
	engine.Start(ctx)
	defer engine.Stop()

	ws := websocket.NewServer(
		websocket.WithAcceptor(engine),
		websocket.WithLogger(logger),
		websocket.WithEventBus(bus),
		websocket.WithClientOptions(websocket.ClientOptions{
			WriteTimeout:    cfg.Transport.WriteTimeout,
			ReadTimeout:     cfg.Transport.ReadTimeout,
			PingInterval:    cfg.Transport.PingInterval,
			MaxMessageSize:  cfg.Transport.MaxMessageSize,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			SendBufferSize:  cfg.Transport.SendBuffer,
		}),
	)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      newRouter(engine, ws, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			"addr", httpServer.Addr,
			"workers", cfg.Workers.Count,
			"ordering", cfg.Workers.Ordering,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGUSR1)
	defer signal.Stop(signals)

	for {
		select {
		case err, ok := <-serveErr:
			if ok {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		case sig := <-signals:
			if sig == syscall.SIGUSR1 {
				on := engine.ToggleMaintenance()
				logger.Info("maintenance mode toggled", "enabled", on)
				continue
			}

			logger.Info("shutting down", "signal", sig.String())
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			err := httpServer.Shutdown(shutdownCtx)
			cancelShutdown()
			ws.CloseAll()
			if err != nil {
				return fmt.Errorf("http shutdown: %w", err)
			}
			logger.Info("server stopped")
			return nil
		}
	}
}

// startPersistence connects to Postgres, migrates the schema if asked to
// and attaches a persistence worker to bus.
func startPersistence(ctx context.Context, cfg config.DatabaseConfig, bus eventbus.Bus, logger *logging.Logger) (func(), error) {
	if cfg.Migrate {
		if err := persist.Migrate(cfg.URL, logger); err != nil {
			return nil, err
		}
	}

	store, err := persist.NewPostgresStore(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}

	worker := persist.NewWorker(store, cfg.QueueSize, logger)
	worker.Start(context.Background())
	worker.Attach(bus)
	logger.Info("persistence enabled", "queue_size", cfg.QueueSize)

	return func() {
		worker.Stop()
		store.Close()
		logger.Info("persistence stopped",
			"written", worker.Written(),
			"failed", worker.Failed(),
			"dropped", worker.Dropped(),
		)
	}, nil
}

func writePidFile(path string) error {
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}
