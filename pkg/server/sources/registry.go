package sources

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Magicwander/OKX-submission-complete/pkg/logging"
)

var (
	registry = make(map[string]SourceFactory)
	mu       sync.RWMutex
)

// Register adds a factory under "type.name", or under "type" alone for
// generic adapters that accept any name.
func Register(key string, factory SourceFactory) {
	mu.Lock()
	defer mu.Unlock()
	registry[key] = factory
}

// Create builds a source, preferring a "type.name" factory over a "type" one.
func Create(sourceType, name string, config map[string]interface{}, logger *logging.Logger) (MarketDataSource, error) {
	mu.RLock()
	factory, ok := registry[fmt.Sprintf("%s.%s", sourceType, name)]
	if !ok {
		factory, ok = registry[sourceType]
	}
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownSource, sourceType, name)
	}
	if config == nil {
		config = map[string]interface{}{}
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return factory(name, config, logger)
}

// List returns all registered keys, sorted.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
