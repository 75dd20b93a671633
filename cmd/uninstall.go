package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall hostName",
	Short: "Remove a host registration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
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
		if err := backend.Uninstall(args[0]); err != nil {
			return fmt.Errorf("uninstall %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Uninstalled %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
}
