// Package settings manages runtime-editable settings persisted as a JSON
// file under the data directory. Unlike config, these values can change
// while the server runs; a watcher reloads the file on external edits.
package settings

import (
	"encoding/json/v2"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/komandorr/komandorr-server/internal/config"
)

const settingsFile = "settings.json"

// Settings holds the runtime-editable server configuration.
type Settings struct {
	// ServerName is shown to users on the join page.
	ServerName string `json:"serverName"`
	// PlexServerURL is the reachable address of the Plex Media Server.
	PlexServerURL string `json:"plexServerUrl"`
	// PlexToken is the admin token used for sharing and library lookups.
	PlexToken string `json:"plexToken"`
}

// Manager loads and persists settings, serializing concurrent access.
type Manager struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	current  Settings
	onChange []func(Settings)
}

// NewManager creates a settings manager rooted at the data directory.
// Initial values come from the settings file when it exists, falling
// back to the config defaults otherwise.
func NewManager(cfg *config.Config, logger *slog.Logger) (*Manager, error) {
	m := &Manager{
		path:   filepath.Join(cfg.Data.BasePath, settingsFile),
		logger: logger,
		current: Settings{
			ServerName:    cfg.Server.Name,
			PlexServerURL: cfg.Plex.ServerURL,
			PlexToken:     cfg.Plex.Token,
		},
	}

	if err := m.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load settings: %w", err)
		}
		// No file yet; persist the defaults so the file is editable.
		if err := m.save(m.current); err != nil {
			return nil, fmt.Errorf("write initial settings: %w", err)
		}
	}

	return m, nil
}

// Get returns a snapshot of the current settings.
func (m *Manager) Get() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Update persists new settings and notifies change listeners.
func (m *Manager) Update(s Settings) error {
	m.mu.Lock()
	if err := m.save(s); err != nil {
		m.mu.Unlock()
		return err
	}
	m.current = s
	listeners := make([]func(Settings), len(m.onChange))
	copy(listeners, m.onChange)
	m.mu.Unlock()

	m.logger.Info("settings updated", "server_name", s.ServerName)
	for _, fn := range listeners {
		fn(s)
	}
	return nil
}

// OnChange registers a callback invoked after every settings change,
// whether through Update or an external file edit.
func (m *Manager) OnChange(fn func(Settings)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

// Path returns the settings file path being managed.
func (m *Manager) Path() string {
	return m.path
}

// load reads the settings file into the current snapshot.
func (m *Manager) load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return err
	}

	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("parse settings file: %w", err)
	}

	m.current = s
	return nil
}

// save writes settings atomically via a temp file rename.
// Caller holds the mutex.
func (m *Manager) save(s Settings) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o750); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("replace settings file: %w", err)
	}
	return nil
}

// reload re-reads the file and notifies listeners if the content changed.
// Used by the watcher after external edits.
func (m *Manager) reload() error {
	m.mu.Lock()
	previous := m.current
	if err := m.load(); err != nil {
		m.mu.Unlock()
		return err
	}
	changed := m.current != previous
	current := m.current
	listeners := make([]func(Settings), len(m.onChange))
	copy(listeners, m.onChange)
	m.mu.Unlock()

	if !changed {
		return nil
	}

	m.logger.Info("settings reloaded from disk", "server_name", current.ServerName)
	for _, fn := range listeners {
		fn(current)
	}
	return nil
}
