package logdb

import (
	"errors"
	"fmt"

	"github.com/opendata-oss/opendata-go/internal/storage"
	"github.com/opendata-oss/opendata-go/internal/storage/memory"
	pebblestore "github.com/opendata-oss/opendata-go/internal/storage/pebble"
	"github.com/opendata-oss/opendata-go/pkg/config"
)

// openEngine maps the storage variant to an engine. The switch is the single
// place a new backend has to be added.
func openEngine(st config.Storage, seg config.Segment, readOnly bool) (storage.Engine, error) {
	switch c := st.(type) {
	case config.InMemory:
		return memory.Open(), nil
	case config.Persistent:
		eng, err := pebblestore.OpenEngine(pebblestore.EngineConfig{
			DataPath:     c.DataPath,
			ObjectStore:  c.ObjectStore,
			SettingsPath: c.SettingsPath,
			SealInterval: seg.SealInterval,
			ReadOnly:     readOnly,
		})
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		return eng, nil
	case nil:
		return nil, errors.New("logdb: storage config must not be nil")
	default:
		return nil, fmt.Errorf("logdb: unsupported storage backend %T", st)
	}
}
