// Package registration makes the broker discoverable by the browser as a
// native messaging host, one registration per host name.
package registration

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/scriptbridge/sb-broker/internal/hostdir"
	"github.com/scriptbridge/sb-broker/internal/protocol"
)

// ErrInvalidHostName rejects names the browser would refuse, and names
// that could escape the manifest directory.
var ErrInvalidHostName = errors.New("invalid host name")

var hostNamePattern = regexp.MustCompile(`^[a-z0-9_]+(\.[a-z0-9_]+)*$`)

// InstallOptions tune a single Install.
type InstallOptions struct {
	// MarkExecutable adds execute bits to the script. Only set it for
	// scripts taken from the hosts file or named by the local user.
	MarkExecutable bool
}

// Backend installs, removes and inspects host registrations.
type Backend interface {
	// Install registers def, overwriting any previous registration, and
	// returns the manifest file or registry key it wrote.
	Install(def hostdir.Definition, opts InstallOptions) (string, error)
	// Uninstall removes a registration. A missing registration is not an error.
	Uninstall(hostName string) error
	// Status reports whether hostName is registered.
	Status(hostName string) (bool, error)
}

// ValidateHostName checks the browser's naming rules.
func ValidateHostName(name string) error {
	if !hostNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidHostName, name)
	}
	return nil
}

// BuildManifest describes def as a stdio host launched through brokerPath.
// Without a broker path the script itself is registered.
func BuildManifest(def hostdir.Definition, brokerPath string) protocol.Manifest {
	path := brokerPath
	if path == "" {
		path = def.ScriptPath
	}
	origins := def.AllowedOrigins
	if origins == nil {
		origins = []string{}
	}
	return protocol.Manifest{
		Name:           def.HostName,
		Description:    def.Description,
		Path:           path,
		Type:           protocol.ManifestTypeStdio,
		AllowedOrigins: origins,
	}
}

// writeFileAtomic replaces path so readers never see a partial manifest.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create manifest directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace manifest: %w", err)
	}
	return nil
}
