package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/scriptbridge/sb-broker/internal/config"
	"github.com/scriptbridge/sb-broker/internal/hostdir"
	"github.com/scriptbridge/sb-broker/internal/logging"
	"github.com/scriptbridge/sb-broker/internal/registration"
	"github.com/scriptbridge/sb-broker/internal/supervisor"
)

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// fileLogger is used by the broker, whose stdout belongs to the browser.
func fileLogger(cfg config.Config) *zap.Logger {
	return logging.New(logging.Config{Level: cfg.LogLevel, File: cfg.LogFile})
}

// consoleLogger is used by interactive subcommands.
func consoleLogger(cfg config.Config) *zap.Logger {
	return logging.NewConsole(cfg.LogLevel)
}

func newDirectory(cfg config.Config) *hostdir.FileDirectory {
	return hostdir.NewFileDirectory(cfg.HostsFile)
}

func newRunner(cfg config.Config, logger *zap.Logger) *supervisor.Runner {
	return supervisor.New(supervisor.Options{
		Timeout:   cfg.ScriptTimeout,
		MaxOutput: cfg.MaxOutputSize,
	}, logger)
}

func newBackend(cfg config.Config, logger *zap.Logger) (registration.Backend, error) {
	brokerPath, err := resolveBrokerPath(cfg.BrokerPath)
	if err != nil {
		return nil, err
	}
	return registration.Detect(registration.Options{
		Browser:     cfg.Browser,
		ManifestDir: cfg.ManifestDir,
		DataDir:     cfg.DataDir,
		BrokerPath:  brokerPath,
	}, logger)
}

// resolveBrokerPath defaults to the running executable, with symlinks
// resolved so the manifest survives package-manager relinks.
func resolveBrokerPath(configured string) (string, error) {
	if configured != "" {
		return filepath.Abs(configured)
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve broker executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return exe, nil
}
