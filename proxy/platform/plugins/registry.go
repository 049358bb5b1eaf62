package plugins

import (
	"fmt"
	"sort"
	"sync"

	"github.com/liuran001/SongProxy-Go/proxy"
	"github.com/liuran001/SongProxy-Go/proxy/config"
	"github.com/liuran001/SongProxy-Go/proxy/platform"
	"github.com/liuran001/SongProxy-Go/proxy/primary"
	"github.com/liuran001/SongProxy-Go/proxy/upstream"
)

// Contribution describes the components a plugin can provide.
type Contribution struct {
	Adapter  platform.Adapter
	Fallback platform.Fallback
	// Probe is an upstream URL the health check may GET.
	Probe string
}

// Deps are the shared services handed to every factory.
type Deps struct {
	Logger proxy.Logger
	// Primary is the resolver client shared by the primary source adapters.
	Primary *primary.Client
	// HTTP is a general upstream client for plugins that call their own API.
	HTTP *upstream.Client
}

// Factory creates a plugin contribution based on config and shared deps.
type Factory func(cfg *config.Config, deps Deps) (*Contribution, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register registers a plugin factory by name.
func Register(name string, factory Factory) error {
	if name == "" {
		return fmt.Errorf("plugin name required")
	}
	if factory == nil {
		return fmt.Errorf("plugin factory required")
	}
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[name]; exists {
		return fmt.Errorf("plugin %s already registered", name)
	}
	factories[name] = factory
	return nil
}

// Get returns a registered factory by name.
func Get(name string) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	factory, ok := factories[name]
	return factory, ok
}

// Names returns all registered plugin names.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	nameList := make([]string, 0, len(factories))
	for name := range factories {
		nameList = append(nameList, name)
	}
	sort.Strings(nameList)
	return nameList
}
