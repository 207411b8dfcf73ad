// Package store provides TOML-backed persistence for stream specifications.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/nvrnode/internal/streams"
)

// config is the on-disk shape of the streams configuration file.
type config struct {
	Version int                           `toml:"version" json:"version"`
	Streams map[string]streams.StreamSpec `toml:"streams" json:"streams"`
}

// tomlStore implements streams.Store using a TOML file.
type tomlStore struct {
	configPath string
	mu         sync.RWMutex
	config     *config
}

// NewTOML creates a TOML-backed stream store.
func NewTOML(configPath string) streams.Store {
	if configPath == "" {
		configPath = "streams.toml"
	}

	return &tomlStore{
		configPath: configPath,
		config: &config{
			Version: 1,
			Streams: make(map[string]streams.StreamSpec),
		},
	}
}

// Load loads the streams configuration from file.
func (s *tomlStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.configPath); os.IsNotExist(err) {
		// File doesn't exist, use empty config
		return nil
	}

	data, err := os.ReadFile(s.configPath)
	if err != nil {
		return fmt.Errorf("failed to read streams config: %w", err)
	}

	cfg := &config{}
	if unmarshalErr := toml.Unmarshal(data, cfg); unmarshalErr != nil {
		return fmt.Errorf("failed to parse streams config: %w", unmarshalErr)
	}

	if cfg.Streams == nil {
		cfg.Streams = make(map[string]streams.StreamSpec)
	}
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	// The map key is authoritative for the stream name
	for name, spec := range cfg.Streams {
		if spec.Name == "" {
			spec.Name = name
			cfg.Streams[name] = spec
		}
	}

	s.config = cfg
	return nil
}

// Save saves the streams configuration to file.
func (s *tomlStore) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dir := filepath.Dir(s.configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(s.config)
	if err != nil {
		return fmt.Errorf("failed to marshal streams config: %w", err)
	}

	if writeErr := os.WriteFile(s.configPath, data, 0o644); writeErr != nil {
		return fmt.Errorf("failed to write streams config: %w", writeErr)
	}
	return nil
}

// GetStream returns a stream spec by name.
func (s *tomlStore) GetStream(name string) (streams.StreamSpec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	spec, ok := s.config.Streams[name]
	return spec, ok
}

// GetAllStreams returns a copy of all stream specs.
func (s *tomlStore) GetAllStreams() map[string]streams.StreamSpec {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make(map[string]streams.StreamSpec, len(s.config.Streams))
	for name, spec := range s.config.Streams {
		all[name] = spec
	}
	return all
}

// SetStream adds or replaces a stream spec.
func (s *tomlStore) SetStream(spec streams.StreamSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.Streams[spec.Name] = spec
}

// DeleteStream removes a stream spec.
func (s *tomlStore) DeleteStream(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.config.Streams[name]; !ok {
		return false
	}
	delete(s.config.Streams, name)
	return true
}
