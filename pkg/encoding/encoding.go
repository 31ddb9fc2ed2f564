// Package encoding provides a small pluggable Codec registry used by the
// L2 index and any component that needs to persist structured metadata
// without hard-coding a single marshal format.
package encoding

import "sync"

// Codec marshals/unmarshals values to/from a byte encoding.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

var (
	mu       sync.RWMutex
	registry = map[string]Codec{}
	def      Codec
)

// Register adds a codec under its own Name() to the registry.
func Register(c Codec) {
	mu.Lock()
	defer mu.Unlock()
	registry[c.Name()] = c
}

// Get returns a registered codec by name, or nil if absent.
func Get(name string) Codec {
	mu.RLock()
	defer mu.RUnlock()
	return registry[name]
}

// SetDefaultCodec sets the codec returned by DefaultCodec.
func SetDefaultCodec(c Codec) {
	mu.Lock()
	defer mu.Unlock()
	def = c
	registry[c.Name()] = c
}

// DefaultCodec returns the process-wide default codec.
func DefaultCodec() Codec {
	mu.RLock()
	defer mu.RUnlock()
	return def
}
