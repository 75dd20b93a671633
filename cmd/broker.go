package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scriptbridge/sb-broker/internal/broker"
	"github.com/scriptbridge/sb-broker/internal/frame"
)

func runBroker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := fileLogger(cfg)
	defer logger.Sync()

	logger.Info("broker starting",
		zap.Strings("args", args),
		zap.String("config", cfg.Source),
		zap.String("hosts_file", cfg.HostsFile))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := broker.New(
		newDirectory(cfg),
		newRunner(cfg, logger),
		frame.NewWriter(os.Stdout, logger),
		cfg.MaxFrameSize,
		logger,
	)

	done := make(chan error, 1)
	go func() {
		done <- b.Serve(ctx, os.Stdin)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-done:
		if err != nil {
			logger.Error("input stream failed", zap.Error(err))
			return err
		}
		logger.Info("input closed, broker exiting")
	case sig := <-sigChan:
		logger.Info("shutting down", zap.Stringer("signal", sig))
		cancel()
		b.Wait()
	}
	return nil
}
