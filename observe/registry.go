package observe

import (
	"errors"
	"sort"
	"sync"

	"github.com/aponysus/ilw/internal"
)

// Registry is a thread-safe name → Observer map. Names are case-insensitive.
type Registry struct {
	mu sync.RWMutex
	m  map[string]Observer
}

func NewRegistry() *Registry {
	return &Registry{m: make(map[string]Observer)}
}

// Register associates name with o. Invalid input is ignored; use RegisterE to
// see why.
func (r *Registry) Register(name string, o Observer) {
	_ = r.RegisterE(name, o)
}

// RegisterE registers an observer with validation.
// It returns an error if the registry is nil, the name is empty, or o is nil/typed-nil.
func (r *Registry) RegisterE(name string, o Observer) error {
	if r == nil {
		return errors.New("registry is nil")
	}
	name = internal.NormalizeName(name)
	if name == "" {
		return errors.New("observer name cannot be empty")
	}
	if internal.IsTypedNil(o) {
		return errors.New("observer cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.m == nil {
		r.m = make(map[string]Observer)
	}
	r.m[name] = o
	return nil
}

// MustRegister registers an observer and panics on error.
func (r *Registry) MustRegister(name string, o Observer) {
	if err := r.RegisterE(name, o); err != nil {
		panic("observe.Registry.MustRegister: " + err.Error())
	}
}

func (r *Registry) Get(name string) (Observer, bool) {
	if r == nil {
		return nil, false
	}
	name = internal.NormalizeName(name)
	if name == "" {
		return nil, false
	}

	r.mu.RLock()
	o, ok := r.m[name]
	r.mu.RUnlock()
	return o, ok && o != nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	names := make([]string, 0, len(r.m))
	for name := range r.m {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Observer combines every registered observer, in name order.
func (r *Registry) Observer() Observer {
	names := r.Names()
	obs := make([]Observer, 0, len(names))
	for _, name := range names {
		if o, ok := r.Get(name); ok {
			obs = append(obs, o)
		}
	}
	return Combine(obs...)
}
