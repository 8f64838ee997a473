package warehouse

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]func(*slog.Logger) Driver)
)

// Register adds a driver factory to the registry.
// Called by driver implementations in their init() functions.
func Register(name string, factory func(*slog.Logger) Driver) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Get retrieves a driver factory by name.
func Get(name string) (func(*slog.Logger) Driver, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[strings.ToLower(name)]
	return f, ok
}

// New creates a driver instance based on config type.
// The logger is passed to the driver constructor (nil uses a discard logger).
func New(cfg Config, logger *slog.Logger) (Driver, error) {
	if cfg.Type == "" {
		return nil, fmt.Errorf("warehouse type not specified")
	}
	factory, ok := Get(cfg.Type)
	if !ok {
		return nil, &UnknownDriverError{
			Type:      cfg.Type,
			Available: ListDrivers(),
		}
	}
	return factory(logger), nil
}

// ListDrivers returns all registered driver names (sorted).
func ListDrivers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a driver type is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[strings.ToLower(name)]
	return ok
}

// UnknownDriverError is returned when an unknown driver type is requested.
type UnknownDriverError struct {
	Type      string
	Available []string
}

func (e *UnknownDriverError) Error() string {
	return fmt.Sprintf("unknown warehouse type %q\nAvailable types: %v\nHint: Check warehouse.type in spectra.yaml", e.Type, e.Available)
}
