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

// ErrKeyNotFound is returned by a KeyStore for a missing key.
var ErrKeyNotFound = errors.New("registry key not found")

// KeyStore is the slice of the registry the backend needs. Keys are
// relative to the current user's hive.
type KeyStore interface {
	SetDefault(key, value string) error
	Default(key string) (string, error)
	Delete(key string) error
	Exists(key string) (bool, error)
}

// RegistryBackend registers a host as a registry key whose default value
// points at a manifest file kept in the application's data directory.
type RegistryBackend struct {
	store      KeyStore
	root       string
	dataDir    string
	brokerPath string
	logger     *zap.Logger
}

// NewRegistryBackend creates a backend writing keys under root.
func NewRegistryBackend(store KeyStore, root, dataDir, brokerPath string, logger *zap.Logger) *RegistryBackend {
	return &RegistryBackend{
		store:      store,
		root:       root,
		dataDir:    dataDir,
		brokerPath: brokerPath,
		logger:     logger,
	}
}

// KeyPath returns hostName's key relative to HKCU.
func (b *RegistryBackend) KeyPath(hostName string) string {
	return b.root + `\` + hostName
}

// ManifestPath returns the indirection file for hostName.
func (b *RegistryBackend) ManifestPath(hostName string) string {
	return filepath.Join(b.dataDir, "manifests", hostName+".json")
}

// Install writes the manifest file first, then the key. If the key write
// fails the file is left behind. Windows has no execute bit, so opts is
// ignored.
func (b *RegistryBackend) Install(def hostdir.Definition, _ InstallOptions) (string, error) {
	if err := ValidateHostName(def.HostName); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(BuildManifest(def, b.brokerPath), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	manifest := b.ManifestPath(def.HostName)
	if err := writeFileAtomic(manifest, data); err != nil {
		return "", err
	}

	key := b.KeyPath(def.HostName)
	if err := b.store.SetDefault(key, manifest); err != nil {
		b.logger.Error("registry write failed, manifest file orphaned",
			zap.String("host", def.HostName), zap.String("manifest", manifest), zap.Error(err))
		return "", fmt.Errorf("write registry key: %w", err)
	}
	display := `HKEY_CURRENT_USER\` + key
	b.logger.Info("registry key installed", zap.String("host", def.HostName), zap.String("key", display))
	return display, nil
}

// Uninstall also cleans up a key whose manifest file has already vanished.
func (b *RegistryBackend) Uninstall(hostName string) error {
	if err := ValidateHostName(hostName); err != nil {
		return err
	}
	key := b.KeyPath(hostName)

	manifest, err := b.store.Default(key)
	if errors.Is(err, ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read registry key: %w", err)
	}
	if manifest != "" {
		if err := os.Remove(manifest); err != nil && !errors.Is(err, os.ErrNotExist) {
			b.logger.Warn("could not remove manifest file",
				zap.String("host", hostName), zap.String("manifest", manifest), zap.Error(err))
		}
	}

	if err := b.store.Delete(key); err != nil && !errors.Is(err, ErrKeyNotFound) {
		return fmt.Errorf("delete registry key: %w", err)
	}
	b.logger.Info("registry key removed", zap.String("host", hostName))
	return nil
}

// Status checks the key only; the manifest file it points at is not
// re-validated.
func (b *RegistryBackend) Status(hostName string) (bool, error) {
	if err := ValidateHostName(hostName); err != nil {
		return false, err
	}
	return b.store.Exists(b.KeyPath(hostName))
}
