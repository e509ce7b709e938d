// Package config provides a configuration manager that loads and watches a JSON configuration file.
//
// The configuration restricts which synthesis voices and which transcription audio
// file types the service accepts. Empty lists fall back to the built-in defaults.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/speechrelay/speechrelay/internal/common/constants"
)

// Provider is an interface that defines methods to access configuration values.
type Provider interface {
	Voices() []string
	FileTypes() []string
}

// Conf represents the configuration structure.
type Conf struct {
	AllowedVoices    []string `json:"allowedVoices"`
	AllowedFileTypes []string `json:"allowedFileTypes"`
}

// Manager is a struct that manages the configuration.
type Manager struct {
	config     Conf
	lock       sync.RWMutex
	configPath string

	log *slog.Logger
}

type options struct {
	Logger *slog.Logger
}

// Options represents an optional function to override Manager default values.
type Options func(*options)

// New creates a new configuration manager with the specified path.
//
// An empty path means no configuration file: the manager serves the defaults
// and Load and Watch become no-ops.
func New(path string, args ...Options) *Manager {
	opts := options{
		Logger: slog.Default(),
	}

	for _, opt := range args {
		opt(&opts)
	}

	return &Manager{
		configPath: path,
		log:        opts.Logger,
	}
}

// Load reads the configuration from the specified file and updates the internal state.
func (cm *Manager) Load() error {
	if cm.configPath == "" {
		cm.log.Debug("No configuration file set, using defaults")
		return nil
	}

	file, err := os.Open(cm.configPath)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	defer file.Close()

	var newConfig Conf
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&newConfig); err != nil {
		return fmt.Errorf("decoding config JSON: %w", err)
	}

	cm.lock.Lock()
	cm.config = newConfig
	cm.lock.Unlock()

	cm.log.Info("Configuration loaded", "config", cm.config)
	return nil
}

// Watch starts watching the configuration file for changes.
//
// It returns two channels: one for configuration changes which result in a successful load
// and another for unrecoverable watcher errors.
func (cm *Manager) Watch(ctx context.Context) (changes <-chan struct{}, errs <-chan error, err error) {
	changesCh := make(chan struct{}, 1)
	errorsCh := make(chan error, 1)

	if cm.configPath == "" {
		// Nothing to watch, close the channels once the context is done.
		go func() {
			defer close(changesCh)
			defer close(errorsCh)
			<-ctx.Done()
		}()
		return changesCh, errorsCh, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create watcher: %v", err)
	}

	configDir, _ := filepath.Split(cm.configPath)
	if configDir == "" {
		configDir = "."
	}
	if err := watcher.Add(configDir); err != nil {
		watcher.Close()
		return nil, nil, fmt.Errorf("failed to add directory %s to watcher: %v", configDir, err)
	}

	cm.log.Info("Watching configuration directory", "dir", configDir)

	// Initial load of the configuration
	if err := cm.Load(); err != nil {
		cm.log.Warn("Error loading initial config", "err", err)
	}

	go func() {
		defer close(changesCh)
		defer close(errorsCh)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				cm.log.Info("Configuration watcher stopped")
				return
			case event, ok := <-watcher.Events:
				if !ok {
					errorsCh <- fmt.Errorf("watcher events channel closed unexpectedly")
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}

				if event.Name != cm.configPath {
					continue
				}

				cm.log.Debug("Configuration file changed. Reloading...")
				if err := cm.Load(); err != nil {
					cm.log.Warn("Error reloading config", "err", err)
					continue
				}

				select {
				case changesCh <- struct{}{}:
				default:
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					errorsCh <- fmt.Errorf("watcher errors channel closed unexpectedly")
					return
				}
				cm.log.Warn("Watcher error", "err", err)
			}
		}
	}()

	return changesCh, errorsCh, nil
}

// Voices returns the allowed synthesis voices, falling back to the defaults
// when the configuration does not restrict them.
func (cm *Manager) Voices() []string {
	cm.lock.RLock()
	defer cm.lock.RUnlock()
	if len(cm.config.AllowedVoices) == 0 {
		return constants.DefaultVoices
	}
	return cm.config.AllowedVoices
}

// FileTypes returns the allowed transcription audio file types, falling back
// to the defaults when the configuration does not restrict them.
func (cm *Manager) FileTypes() []string {
	cm.lock.RLock()
	defer cm.lock.RUnlock()
	if len(cm.config.AllowedFileTypes) == 0 {
		return constants.DefaultFileTypes
	}
	return cm.config.AllowedFileTypes
}

// IsVoiceAllowed reports whether the given voice is in the allowed voice list.
func (cm *Manager) IsVoiceAllowed(voice string) bool {
	return contains(cm.Voices(), voice)
}

// IsFileTypeAllowed reports whether the given audio file type is in the allowed list.
//
// The comparison ignores case and a leading dot.
func (cm *Manager) IsFileTypeAllowed(fileType string) bool {
	return contains(cm.FileTypes(), strings.TrimPrefix(strings.ToLower(fileType), "."))
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
