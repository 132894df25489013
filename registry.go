package schemaforge

import (
	"log"
	"strings"
	"sync"

	"github.com/burugo/schemaforge/common"
)

// Factory builds an unconnected adapter from a connection config.
type Factory func(cfg Config) (Adapter, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// Register makes an adapter factory available under each of names. Driver packages call
// it from init(), so importing a driver for side effects is enough to enable it.
func Register(factory Factory, names ...string) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	for _, name := range names {
		key := strings.ToLower(name)
		if _, dup := factories[key]; dup {
			log.Printf("schemaforge: adapter %q registered twice, keeping the latest", key)
		}
		factories[key] = factory
	}
}

// New returns the adapter registered for cfg.Adapter. The adapter is not connected yet.
func New(cfg Config) (Adapter, error) {
	factoriesMu.RLock()
	factory, ok := factories[strings.ToLower(cfg.Adapter)]
	factoriesMu.RUnlock()
	if !ok {
		return nil, &common.UnknownAdapterError{Name: cfg.Adapter}
	}
	return factory(cfg)
}

// Adapters lists the registered adapter names.
func Adapters() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	return names
}
