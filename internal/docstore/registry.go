package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// OpenConfig carries backend-agnostic connection settings. Kind selection
// happens in Open; unknown fields are ignored by backends that do not need
// them (the memory store ignores everything).
type OpenConfig struct {
	DSN        string
	Table      string
	AutoCreate bool
}

// OpenFunc constructs a Store. The returned func releases its resources.
type OpenFunc func(ctx context.Context, cfg OpenConfig) (Store, func(), error)

var (
	registryMu sync.RWMutex
	registry   = map[string]OpenFunc{}
)

// Register installs a backend under kind. Backends call this from init;
// programs select backends by blank-importing the docstore/all package (or
// individual backends).
func Register(kind string, fn OpenFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[kind]; dup {
		panic("docstore: duplicate backend registration: " + kind)
	}
	registry[kind] = fn
}

// Open constructs the registered backend for kind.
func Open(ctx context.Context, kind string, cfg OpenConfig) (Store, func(), error) {
	registryMu.RLock()
	fn, ok := registry[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("docstore: unknown backend %q (registered: %v)", kind, Kinds())
	}
	return fn(ctx, cfg)
}

// Kinds lists the registered backend kinds, sorted.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
