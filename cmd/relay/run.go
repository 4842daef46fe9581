package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"helios-hq/relay/pkg/config"
	"helios-hq/relay/pkg/maintenance"
	"helios-hq/relay/pkg/server"
	"helios-hq/relay/pkg/telemetry/logging"
	"helios-hq/relay/pkg/telemetry/tracing"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the gateway",
	RunE:  runGateway,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logCfg := cfg.Telemetry.Logging
	logCfg.RedactAuth = true
	if verbose {
		logCfg.Level = "debug"
	}
	logger, err := logging.Install(logCfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer, err := tracing.New(ctx, cfg.Telemetry.Tracing)
	if err != nil {
		return err
	}
	defer tracer.Shutdown(context.Background())

	srv, err := server.New(cfg, tracer)
	if err != nil {
		return err
	}

	scheduler, err := maintenance.New(maintenance.Config{
		ProbeSchedule: cfg.Maintenance.ProbeSchedule,
		SweepSchedule: cfg.Maintenance.SweepSchedule,
		SweepIdle:     cfg.Limits.SweepIdle.Std(),
	}, srv.Registry(), srv.Runtime(), srv.Limiter(), srv.IdempotencyStore())
	if err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	watcher, err := config.NewWatcher(cfgFile, srv.ApplyConfig)
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return srv.ListenAndServe()
	})

	group.Go(func() error {
		watcher.Run(groupCtx)
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown signal received")
		return srv.Shutdown(context.Background())
	})

	return group.Wait()
}
