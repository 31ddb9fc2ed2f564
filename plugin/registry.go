// Package plugin is the plugin registry: a name -> Factory map, mirroring
// server/middleware's Registry/Create pattern on the plugin side of the
// tree.
package plugin

import (
	"errors"
	"strings"
	"sync"

	pluginv1 "github.com/omalloc/tavern/api/defined/v1/plugin"
	"github.com/omalloc/tavern/conf"
	"github.com/omalloc/tavern/contrib/log"
)

// Factory builds a Plugin instance from its configured options.
type Factory func(opts pluginv1.Option, logger *log.Helper) (pluginv1.Plugin, error)

// ErrNotFound is returned when no plugin is registered under a name.
var ErrNotFound = errors.New("plugin has not been registered")

var (
	mu        sync.Mutex
	factories = map[string]Factory{}
)

// Register registers factory under name. Called from each plugin
// package's init().
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[strings.ToLower(name)] = factory
}

// Create instantiates the plugin named by cfg.Name with cfg as its
// options source.
func Create(cfg *conf.Plugin, logger *log.Helper) (pluginv1.Plugin, error) {
	mu.Lock()
	factory, ok := factories[strings.ToLower(cfg.Name)]
	mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return factory(cfg, logger)
}
