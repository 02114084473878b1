package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/anicoll/moisture-node/internal/pkg/command"
	"github.com/anicoll/moisture-node/internal/pkg/config"
	"github.com/anicoll/moisture-node/internal/pkg/console"
	"github.com/anicoll/moisture-node/internal/pkg/led"
	"github.com/anicoll/moisture-node/internal/pkg/mqtt"
	"github.com/anicoll/moisture-node/internal/pkg/netcheck"
	"github.com/anicoll/moisture-node/internal/pkg/node"
	"github.com/anicoll/moisture-node/internal/pkg/nvram"
	"github.com/anicoll/moisture-node/internal/pkg/responder"
	"github.com/anicoll/moisture-node/internal/pkg/sensor"
	"github.com/anicoll/moisture-node/internal/pkg/settings"
)

// Version is the fixed build identifier reported by the remote `version`
// command.
const Version = "2.2.0"

var errShutdown = errors.New("shutdown requested")

// NodeCommand is the entry point for the moisture node. Flags override the
// environment-derived bootstrap config.
func NodeCommand(ctx *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if v := ctx.String("nvram"); v != "" {
		cfg.NVRAMPath = v
	}
	if v := ctx.String("serial-device"); v != "" {
		cfg.SerialDev = v
	}
	if v := ctx.Int("serial-baud"); v != 0 {
		cfg.SerialBaud = v
	}
	if v := ctx.String("adc-path"); v != "" {
		cfg.ADCPath = v
	}
	if v := ctx.String("led-chip"); v != "" {
		cfg.LedChip = v
	}
	if ctx.IsSet("led-line") {
		cfg.LedLine = ctx.Int("led-line")
	}
	if v := ctx.String("log-level"); v != "" {
		cfg.LogLevel = v
	}

	return run(ctx.Context, cfg)
}

func run(ctx context.Context, cfg *config.Config) error {
	logCfg := zap.NewProductionConfig()
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logCfg.Level = level
	logCfg.OutputPaths = []string{"stdout"}
	logCfg.ErrorOutputPaths = []string{"stdout"}
	logCfg.Sampling = nil
	logger := zap.Must(logCfg.Build(zap.AddCaller()))
	defer func() {
		_ = logger.Sync() // flushes buffer, if any.
	}()
	zap.ReplaceGlobals(logger)

	region, err := nvram.OpenFile(cfg.NVRAMPath, settings.RecordSize)
	if err != nil {
		return err
	}
	defer region.Close()

	var cons console.Console
	if cfg.SerialDev != "" {
		cons, err = console.OpenSerial(cfg.SerialDev, cfg.SerialBaud)
		if err != nil {
			return fmt.Errorf("open console %s: %w", cfg.SerialDev, err)
		}
	} else {
		cons = console.OpenStdio()
	}
	defer cons.Close()

	var indicator sensor.Indicator = led.Noop{}
	if cfg.LedChip != "" {
		line, err := led.Open(cfg.LedChip, cfg.LedLine)
		if err != nil {
			logger.Warn("activity led unavailable", zap.Error(err))
		} else {
			indicator = line
			defer line.Close()
		}
	}

	sens := sensor.New(sensor.NewFileSource(cfg.ADCPath), indicator)
	store := settings.NewStore(region)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig := <-sigs:
			logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
			return errShutdown
		}
	})
	eg.Go(func() error {
		return nodeLoop(ctx, store, sens, cons, level)
	})

	err = eg.Wait()
	if errors.Is(err, errShutdown) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// nodeLoop wires one node instance per boot. Deliberate restarts (factory
// reset, remote reboot) come back as ErrRestart and re-enter with settings
// freshly loaded from NVRAM.
func nodeLoop(ctx context.Context, store *settings.Store, sens *sensor.Sensor, cons console.Console, level zap.AtomicLevel) error {
	for {
		record, valid := store.Load()
		if !valid {
			// first boot or wiped region: stamp the defaults so a client id
			// exists and persists before the record is complete
			zap.L().Info("no valid settings found, initializing defaults")
			store.Save(&record)
		}
		if record.Debug {
			level.SetLevel(zapcore.DebugLevel)
		}

		n := node.New(&record, sens, netcheck.New(), cons, func(s *settings.Settings) node.Messenger {
			return mqtt.New(s)
		})
		proc := command.New(&record, store, n, cons, level)
		n.SetProcessor(proc)
		n.SetHandler(responder.New(&record, proc, n, n, n.PublishStatus, Version))

		if err := n.Run(ctx); !errors.Is(err, node.ErrRestart) {
			return err
		}
	}
}
