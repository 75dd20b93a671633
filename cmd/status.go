package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var statusCmd = &cobra.Command{
	Use:   "status hostName",
	Short: "Report whether a host is registered",
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
		installed, err := backend.Status(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], installedLabel(installed))
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List hosts from the hosts file with their registration state",
	Args:  cobra.NoArgs,
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
		defs, err := newDirectory(cfg).List()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "HOST\tSTATE\tSCRIPT")
		for _, def := range defs {
			installed, err := backend.Status(def.HostName)
			if err != nil {
				logger.Warn("status check failed", zap.String("host", def.HostName), zap.Error(err))
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", def.HostName, installedLabel(installed), def.ScriptPath)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
}

func installedLabel(installed bool) string {
	if installed {
		return "installed"
	}
	return "not installed"
}
