package memory

import (
	"sync"
	"time"

	"github.com/custodia-labs/filer/internal/adapters/driven/config"
	"github.com/custodia-labs/filer/internal/core/ports/driven"
)

var _ driven.ConfigStore = (*ConfigStore)(nil)

// ConfigStore holds config values seeded with Set. Tests use it in place
// of a TOML file; values may be Go types such as time.Duration.
type ConfigStore struct {
	mu     sync.RWMutex
	values map[string]any
}

func NewConfigStore() *ConfigStore {
	return &ConfigStore{values: make(map[string]any)}
}

// Set stores value under a dot-notation key.
func (s *ConfigStore) Set(key string, value any) error {
	s.mu.Lock()
	s.values[key] = value
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

func (s *ConfigStore) Load() error  { return nil }
func (s *ConfigStore) Path() string { return ":memory:" }
