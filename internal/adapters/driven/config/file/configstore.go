package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/filer/internal/adapters/driven/config"
	"github.com/custodia-labs/filer/internal/core/ports/driven"
)

var _ driven.ConfigStore = (*ConfigStore)(nil)

// ConfigStore reads filer's TOML config file. Tables are flattened so
// [dedup] bands = 8 is looked up as "dedup.bands".
type ConfigStore struct {
	path string

	mu     sync.RWMutex
	values map[string]any
}

// DefaultPath returns ~/.filer/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".filer", "config.toml"), nil
}

// NewConfigStore loads path, or DefaultPath when path is empty. A missing
// file is an empty config; a malformed one is an error.
func NewConfigStore(path string) (*ConfigStore, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	s := &ConfigStore{path: path}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load re-reads the file, replacing every value.
func (s *ConfigStore) Load() error {
	values := map[string]any{}
	raw, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("reading config %s: %w", s.path, err)
	default:
		var tables map[string]any
		if err := toml.Unmarshal(raw, &tables); err != nil {
			return fmt.Errorf("parsing config %s: %w", s.path, err)
		}
		values = config.Flatten(tables)
	}

	s.mu.Lock()
	s.values = values
	s.mu.Unlock()
	return nil
}

func (s *ConfigStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *ConfigStore) GetString(key string) string          { return config.String(s.Get(key)) }
func (s *ConfigStore) GetInt(key string) int                { return config.Int(s.Get(key)) }
func (s *ConfigStore) GetFloat(key string) float64          { return config.Float(s.Get(key)) }
func (s *ConfigStore) GetBool(key string) bool              { return config.Bool(s.Get(key)) }
func (s *ConfigStore) GetDuration(key string) time.Duration { return config.Duration(s.Get(key)) }
func (s *ConfigStore) GetStringSlice(key string) []string   { return config.StringSlice(s.Get(key)) }

// Path is the file the store reads.
func (s *ConfigStore) Path() string {
	return s.path
}
