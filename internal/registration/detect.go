package registration

import (
	"fmt"
	"os"
	"runtime"

	"go.uber.org/zap"
)

// Options select and configure a Backend.
type Options struct {
	Browser     string
	ManifestDir string // overrides the browser's default directory
	DataDir     string // holds indirection manifests on Windows
	BrokerPath  string
}

// Detect picks the backend for the running platform.
func Detect(opts Options, logger *zap.Logger) (Backend, error) {
	return detect(runtime.GOOS, opts, logger)
}

func detect(goos string, opts Options, logger *zap.Logger) (Backend, error) {
	if goos == "windows" {
		store, err := SystemKeyStore()
		if err != nil {
			return nil, err
		}
		root, err := RegistryRoot(opts.Browser)
		if err != nil {
			return nil, err
		}
		return NewRegistryBackend(store, root, opts.DataDir, opts.BrokerPath, logger), nil
	}

	dir := opts.ManifestDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		dir, err = ManifestDir(goos, home, opts.Browser)
		if err != nil {
			return nil, err
		}
	}
	return NewManifestBackend(dir, opts.BrokerPath, logger), nil
}
