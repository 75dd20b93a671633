package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scriptbridge/sb-broker/internal/manage"
)

var manageAddr string

var manageCmd = &cobra.Command{
	Use:   "manage",
	Short: "Serve the management websocket",
	Long: `Serve a loopback websocket through which the desktop application
installs, uninstalls and inspects host registrations.

Each JSON request {"type": "install"|"uninstall"|"status"|"list", ...}
receives exactly one {"type": "result", ...} message.`,
	Args: cobra.NoArgs,
	RunE: runManage,
}

func init() {
	rootCmd.AddCommand(manageCmd)
	manageCmd.Flags().StringVarP(&manageAddr, "listen", "l", "", "Listen address (default from config)")
}

func runManage(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := consoleLogger(cfg)
	defer logger.Sync()

	backend, err := newBackend(cfg, logger)
	if err != nil {
		return err
	}

	addr := cfg.ManageAddr
	if manageAddr != "" {
		addr = manageAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("management server starting", zap.String("config", cfg.Source), zap.String("hosts_file", cfg.HostsFile))
	return manage.NewServer(backend, newDirectory(cfg), logger).ListenAndServe(ctx, addr)
}
