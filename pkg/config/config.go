// Package config holds the storage, object-store, and segmentation
// configuration variants for opendata log stores.
//
// Storage and ObjectStore are modeled as sealed interfaces with one concrete
// type per backend so that every consumer switches over them exhaustively.
// All values are immutable and validated eagerly: a config that fails
// Validate never reaches the storage boundary.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalid is wrapped by every validation error produced by this package.
var ErrInvalid = errors.New("invalid configuration")

// Storage selects the persistence tier for a log store.
type Storage interface {
	// Validate checks the variant recursively and fails fast on bad input.
	Validate() error

	isStorage()
}

// InMemory is non-persistent storage. Data is lost when the process exits.
// Useful for testing and development.
type InMemory struct{}

func (InMemory) isStorage() {}

// Validate always succeeds for in-memory storage.
func (InMemory) Validate() error { return nil }

// Persistent is durable storage layered over an object-store substrate.
type Persistent struct {
	// DataPath is the path prefix for the engine's data.
	DataPath string
	// ObjectStore selects the durability substrate.
	ObjectStore ObjectStore
	// SettingsPath optionally points to an engine tuning file.
	SettingsPath string
}

func (Persistent) isStorage() {}

// Validate checks the data path and the nested object-store config.
func (p Persistent) Validate() error {
	if strings.TrimSpace(p.DataPath) == "" {
		return fmt.Errorf("%w: persistent storage: data path must not be blank", ErrInvalid)
	}
	if p.ObjectStore == nil {
		return fmt.Errorf("%w: persistent storage: object store must not be nil", ErrInvalid)
	}
	return p.ObjectStore.Validate()
}

// ObjectStore selects the durability substrate for persistent storage.
type ObjectStore interface {
	Validate() error

	isObjectStore()
}

// InMemoryObjectStore keeps object data in process memory.
type InMemoryObjectStore struct{}

func (InMemoryObjectStore) isObjectStore() {}

// Validate always succeeds for the in-memory object store.
func (InMemoryObjectStore) Validate() error { return nil }

// Local stores objects under a local filesystem directory.
type Local struct {
	Path string
}

func (Local) isObjectStore() {}

// Validate checks the directory path.
func (l Local) Validate() error {
	if strings.TrimSpace(l.Path) == "" {
		return fmt.Errorf("%w: local object store: path must not be blank", ErrInvalid)
	}
	return nil
}

// Cloud stores objects in a cloud bucket.
type Cloud struct {
	Region string
	Bucket string
}

func (Cloud) isObjectStore() {}

// Validate checks region and bucket.
func (c Cloud) Validate() error {
	if strings.TrimSpace(c.Region) == "" {
		return fmt.Errorf("%w: cloud object store: region must not be blank", ErrInvalid)
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return fmt.Errorf("%w: cloud object store: bucket must not be blank", ErrInvalid)
	}
	return nil
}

// Segment configures time-based sealing of a key's internal log segments.
// Sealing is a retention and range-query optimization only; it never affects
// append or read correctness.
type Segment struct {
	// SealInterval is the interval between automatic segment seals.
	// Zero disables automatic sealing.
	SealInterval time.Duration
}

// DefaultSegment returns the default segmentation config: sealing disabled.
func DefaultSegment() Segment { return Segment{} }

// WithSealInterval returns a segment config sealing at the given interval.
func WithSealInterval(interval time.Duration) Segment {
	return Segment{SealInterval: interval}
}

// Validate checks the seal interval.
func (s Segment) Validate() error {
	if s.SealInterval < 0 {
		return fmt.Errorf("%w: segment: seal interval must be positive", ErrInvalid)
	}
	return nil
}
