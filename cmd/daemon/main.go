package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/lpetrelli/autopause/internal/config"
	"github.com/lpetrelli/autopause/internal/coordinator"
	"github.com/lpetrelli/autopause/internal/devmon"
	"github.com/lpetrelli/autopause/internal/domain"
	"github.com/lpetrelli/autopause/internal/player"
	"github.com/lpetrelli/autopause/internal/registry"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// AppOptions assembles the daemon's dependency graph. Kept as a package
// variable so tests can validate the graph without starting the app.
var AppOptions = fx.Options(
	fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: log}
	}),

	fx.Provide(
		newLogger,
		config.Load,
		newBusClient,
		newRegistry,
		newDeviceMonitor,
		newCoordinator,
	),

	fx.Invoke(registerHooks),
)

func main() {
	app := fx.New(AppOptions)

	// Handle graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		panic(err)
	}

	<-ctx.Done()

	if err := app.Stop(context.Background()); err != nil {
		panic(err)
	}
}

// newLogger creates a new zap logger instance
func newLogger() (*zap.Logger, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return logger, nil
}

// newBusClient connects to the session bus
func newBusClient(logger *zap.Logger) (player.BusClient, error) {
	conn, err := player.NewStdBusClient()
	if err != nil {
		logger.Error("Failed to connect to session bus", zap.Error(err))
		return nil, err
	}
	return conn, nil
}

// newRegistry builds the registry with every enabled backend. A duplicate
// identity is a configuration mistake and aborts startup.
func newRegistry(logger *zap.Logger, cfg *config.Config, conn player.BusClient) (*registry.Registry, error) {
	opts := player.Options{
		Retries: cfg.Control.Retries,
		Backoff: cfg.Control.Backoff(),
		Settle:  cfg.Control.Settle(),
	}

	reg := registry.New(logger)
	for _, c := range player.All(logger, conn, opts, cfg.Players.Disabled) {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// newDeviceMonitor creates the PulseAudio route watcher
func newDeviceMonitor(logger *zap.Logger, cfg *config.Config) domain.DeviceMonitor {
	return devmon.NewPulseMonitor(logger, cfg.Device.Sink)
}

// newCoordinator wires the pause/resume state machine
func newCoordinator(logger *zap.Logger, reg *registry.Registry, mon domain.DeviceMonitor) *coordinator.Coordinator {
	return coordinator.New(logger, reg, mon)
}

// registerHooks starts the monitor and coordinator loops on app start and
// tears them down on stop
func registerHooks(
	lc fx.Lifecycle,
	logger *zap.Logger,
	mon domain.DeviceMonitor,
	coord *coordinator.Coordinator,
	conn player.BusClient,
) {
	var cancel context.CancelFunc

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, c := context.WithCancel(context.Background())
			cancel = c

			go func() {
				if err := mon.Start(runCtx); err != nil && !errors.Is(err, context.Canceled) {
					// A broken monitor leaves the daemon idle but alive;
					// players are never left paused by a crash here.
					logger.Error("Device monitor exited", zap.Error(err))
				}
			}()
			go coord.Run(runCtx)

			logger.Info("autopause daemon started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down")
			if cancel != nil {
				cancel()
			}
			if err := mon.Stop(ctx); err != nil {
				logger.Warn("Device monitor stop failed", zap.Error(err))
			}
			if err := conn.Close(); err != nil {
				logger.Warn("Session bus close failed", zap.Error(err))
			}
			return nil
		},
	})
}
