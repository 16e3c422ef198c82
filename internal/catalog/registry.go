package catalog

import "sync"

// Registry caches one loaded catalog for the process lifetime and supports
// explicit reload to pick up config-file edits without a restart. Construct
// it once at startup and inject it into the pipeline components.
type Registry struct {
	mu   sync.RWMutex
	path string // empty means the embedded default catalog
	cat  *Catalog
}

// NewRegistry loads the catalog from path, or the embedded default when path
// is empty.
func NewRegistry(path string) (*Registry, error) {
	r := &Registry{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Catalog returns the currently loaded catalog.
func (r *Registry) Catalog() *Catalog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cat
}

// Reload re-reads the catalog source. On error the previously loaded catalog
// stays in place.
func (r *Registry) Reload() error {
	var cat *Catalog
	var err error
	if r.path == "" {
		cat, err = LoadDefault()
	} else {
		cat, err = LoadFile(r.path)
	}
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.cat = cat
	r.mu.Unlock()
	return nil
}
