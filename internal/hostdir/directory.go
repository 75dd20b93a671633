// Package hostdir resolves logical host names to executable targets.
package hostdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/scriptbridge/sb-broker/internal/protocol"
)

// ErrConfigUnavailable means the hosts file is missing or unparsable.
var ErrConfigUnavailable = errors.New("host configuration unavailable")

// ConfigError carries the cause of ErrConfigUnavailable.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v (%s): %v", ErrConfigUnavailable, e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func (e *ConfigError) Is(target error) bool { return target == ErrConfigUnavailable }

// NotFoundError reports a host name absent from the directory.
type NotFoundError struct {
	HostName string
}

func (e *NotFoundError) Error() string {
	return "No host registered with name: " + e.HostName
}

// Definition is a resolved host.
type Definition struct {
	HostName       string
	Description    string
	ScriptPath     string
	Interpreter    string
	AllowedOrigins []string
}

// Directory resolves host definitions.
type Directory interface {
	Resolve(hostName string) (Definition, error)
	List() ([]Definition, error)
}

// FileDirectory reads a JSON hosts file on every call so edits made by the
// management app apply to the next request without a restart.
type FileDirectory struct {
	path string
}

// NewFileDirectory creates a directory backed by path. The file is never written.
func NewFileDirectory(path string) *FileDirectory {
	return &FileDirectory{path: path}
}

// Path returns the hosts file location.
func (d *FileDirectory) Path() string {
	return d.path
}

// Resolve looks up hostName in a fresh read of the hosts file.
func (d *FileDirectory) Resolve(hostName string) (Definition, error) {
	entries, err := d.load()
	if err != nil {
		return Definition{}, err
	}
	entry, ok := entries[hostName]
	if !ok {
		return Definition{}, &NotFoundError{HostName: hostName}
	}
	return toDefinition(hostName, entry), nil
}

// List returns every host sorted by name.
func (d *FileDirectory) List() ([]Definition, error) {
	entries, err := d.load()
	if err != nil {
		return nil, err
	}
	return sortedDefinitions(entries), nil
}

func (d *FileDirectory) load() (map[string]protocol.HostEntry, error) {
	f, err := os.Open(d.path)
	if err != nil {
		return nil, &ConfigError{Path: d.path, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &ConfigError{Path: d.path, Err: err}
	}
	if err := verifyTrusted(info); err != nil {
		return nil, &ConfigError{Path: d.path, Err: err}
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &ConfigError{Path: d.path, Err: err}
	}
	var entries map[string]protocol.HostEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &ConfigError{Path: d.path, Err: fmt.Errorf("parse: %w", err)}
	}
	return entries, nil
}

// MemoryDirectory is an in-memory Directory.
type MemoryDirectory struct {
	mu      sync.RWMutex
	entries map[string]protocol.HostEntry
}

// NewMemoryDirectory creates a directory holding a copy of entries.
func NewMemoryDirectory(entries map[string]protocol.HostEntry) *MemoryDirectory {
	m := &MemoryDirectory{entries: make(map[string]protocol.HostEntry, len(entries))}
	for name, e := range entries {
		m.entries[name] = e
	}
	return m
}

// Put adds or replaces a host.
func (m *MemoryDirectory) Put(hostName string, entry protocol.HostEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[hostName] = entry
}

func (m *MemoryDirectory) Resolve(hostName string) (Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[hostName]
	if !ok {
		return Definition{}, &NotFoundError{HostName: hostName}
	}
	return toDefinition(hostName, entry), nil
}

func (m *MemoryDirectory) List() ([]Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedDefinitions(m.entries), nil
}

func toDefinition(hostName string, e protocol.HostEntry) Definition {
	return Definition{
		HostName:       hostName,
		Description:    e.Description,
		ScriptPath:     e.ScriptPath,
		Interpreter:    strings.TrimSpace(e.Interpreter),
		AllowedOrigins: append([]string(nil), e.AllowedOrigins...),
	}
}

func sortedDefinitions(entries map[string]protocol.HostEntry) []Definition {
	defs := make([]Definition, 0, len(entries))
	for name, e := range entries {
		defs = append(defs, toDefinition(name, e))
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].HostName < defs[j].HostName })
	return defs
}
