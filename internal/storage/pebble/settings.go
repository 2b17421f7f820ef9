package pebblestore

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cockroachdb/pebble"
)

// Settings carries optional engine tuning loaded from a settings file.
// Zero values leave the corresponding Pebble default in place.
type Settings struct {
	CacheBytes            int64 `json:"cacheBytes"`
	MemTableBytes         int64 `json:"memTableBytes"`
	L0CompactionThreshold int   `json:"l0CompactionThreshold"`
	MaxOpenFiles          int   `json:"maxOpenFiles"`
}

// LoadSettings reads a JSON settings file.
func LoadSettings(path string) (*Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	var s Settings
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return &s, nil
}

// apply merges the settings into Pebble options. Nil receiver is a no-op.
func (s *Settings) apply(po *pebble.Options) {
	if s == nil {
		return
	}
	if s.CacheBytes > 0 {
		po.Cache = pebble.NewCache(s.CacheBytes)
	}
	if s.MemTableBytes > 0 {
		po.MemTableSize = uint64(s.MemTableBytes)
	}
	if s.L0CompactionThreshold > 0 {
		po.L0CompactionThreshold = s.L0CompactionThreshold
	}
	if s.MaxOpenFiles > 0 {
		po.MaxOpenFiles = s.MaxOpenFiles
	}
}
