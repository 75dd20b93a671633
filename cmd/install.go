package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scriptbridge/sb-broker/internal/hostdir"
	"github.com/scriptbridge/sb-broker/internal/registration"
)

var (
	installScript      string
	installInterpreter string
	installDescription string
	installOrigins     []string
)

var installCmd = &cobra.Command{
	Use:   "install hostName",
	Short: "Register a host with the browser",
	Long: `Register hostName so the browser can reach it through the broker.

With --script the definition comes from flags; otherwise hostName is looked
up in the hosts file and its description and allowedOrigins are used.
Installing an already registered host overwrites it.

Example:
  sb-broker install com.example.echo --script ~/bin/echo.py --interpreter python3 \
    --origin chrome-extension://abcdefghijklmnopabcdefghijklmnop/`,
	Args: cobra.ExactArgs(1),
	RunE: runInstall,
}

func init() {
	rootCmd.AddCommand(installCmd)
	installCmd.Flags().StringVarP(&installScript, "script", "s", "", "Script path")
	installCmd.Flags().StringVarP(&installInterpreter, "interpreter", "i", "", "Interpreter used to run the script")
	installCmd.Flags().StringVarP(&installDescription, "description", "d", "", "Host description")
	installCmd.Flags().StringArrayVarP(&installOrigins, "origin", "o", nil, "Allowed extension origin (repeatable)")
}

func runInstall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := consoleLogger(cfg)
	defer logger.Sync()

	def, err := installDefinition(newDirectory(cfg), args[0])
	if err != nil {
		return err
	}
	backend, err := newBackend(cfg, logger)
	if err != nil {
		return err
	}
	path, err := backend.Install(def, registration.InstallOptions{MarkExecutable: true})
	if err != nil {
		return fmt.Errorf("install %s: %w", def.HostName, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Installed %s: %s\n", def.HostName, path)
	return nil
}

func installDefinition(dir hostdir.Directory, hostName string) (hostdir.Definition, error) {
	if installScript == "" {
		def, err := dir.Resolve(hostName)
		if err != nil {
			return hostdir.Definition{}, err
		}
		if installDescription != "" {
			def.Description = installDescription
		}
		if len(installOrigins) > 0 {
			def.AllowedOrigins = installOrigins
		}
		return def, nil
	}
	return hostdir.Definition{
		HostName:       hostName,
		Description:    installDescription,
		ScriptPath:     installScript,
		Interpreter:    installInterpreter,
		AllowedOrigins: installOrigins,
	}, nil
}
