package registration

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/scriptbridge/sb-broker/internal/hostdir"
)

// ManifestBackend registers hosts by dropping <hostName>.json into the
// browser's manifest directory.
type ManifestBackend struct {
	dir        string
	brokerPath string
	logger     *zap.Logger
}

// NewManifestBackend creates a backend writing manifests into dir.
func NewManifestBackend(dir, brokerPath string, logger *zap.Logger) *ManifestBackend {
	return &ManifestBackend{dir: dir, brokerPath: brokerPath, logger: logger}
}

// ManifestPath returns where hostName's manifest lives.
func (b *ManifestBackend) ManifestPath(hostName string) string {
	return filepath.Join(b.dir, hostName+".json")
}

func (b *ManifestBackend) Install(def hostdir.Definition, opts InstallOptions) (string, error) {
	if err := ValidateHostName(def.HostName); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(BuildManifest(def, b.brokerPath), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	path := b.ManifestPath(def.HostName)
	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}
	b.logger.Info("manifest installed", zap.String("host", def.HostName), zap.String("path", path))

	if !opts.MarkExecutable {
		return path, nil
	}
	if err := markExecutable(def.ScriptPath); err != nil {
		b.logger.Warn("could not mark script executable",
			zap.String("script", def.ScriptPath), zap.Error(err))
	}
	return path, nil
}

func (b *ManifestBackend) Uninstall(hostName string) error {
	if err := ValidateHostName(hostName); err != nil {
		return err
	}
	path := b.ManifestPath(hostName)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove manifest: %w", err)
	}
	b.logger.Info("manifest removed", zap.String("host", hostName), zap.String("path", path))
	return nil
}

func (b *ManifestBackend) Status(hostName string) (bool, error) {
	if err := ValidateHostName(hostName); err != nil {
		return false, err
	}
	_, err := os.Stat(b.ManifestPath(hostName))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat manifest: %w", err)
}

// markExecutable adds execute bits for everyone who can read the script.
func markExecutable(path string) error {
	if path == "" {
		return errors.New("empty script path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	mode := info.Mode().Perm()
	return os.Chmod(path, mode|(mode&0o444)>>2)
}
