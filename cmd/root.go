package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "sb-broker [origin]",
	Short: "ScriptBridge native messaging broker",
	Long: `sb-broker lets a browser extension run local scripts through one
native messaging host.

Without a subcommand it runs as the broker: the browser starts it, writes
length-prefixed JSON requests of the form {"hostName": ..., "payload": ...}
to stdin and reads one reply per request from stdout. The browser passes
the caller origin (and on Windows --parent-window) as arguments; they are
logged and otherwise ignored.

Subcommands register hosts with the browser and inspect them.`,
	Args:               cobra.ArbitraryArgs,
	FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
	SilenceUsage:       true,
	SilenceErrors:      true,
	RunE:               runBroker,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
