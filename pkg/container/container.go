package container

import (
	"fmt"
	"reflect"
	"sync"
)

// Container is a registry of named services backing callable
// resolution. Services register during startup; transition-time
// lookups are read-only.
type Container struct {
	mu      sync.RWMutex
	byName  map[string]*entry
	ordered []*entry
}

type entry struct {
	name  string
	value interface{}
	typ   reflect.Type
}

// New creates an empty container.
func New() *Container {
	return &Container{byName: make(map[string]*entry)}
}

// Register adds a service under a unique name. Registering nil or a
// duplicate name fails.
func (c *Container) Register(name string, service interface{}) error {
	if name == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	if service == nil {
		return fmt.Errorf("service %s cannot be nil", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byName[name]; exists {
		return fmt.Errorf("service %s is already registered", name)
	}

	e := &entry{name: name, value: service, typ: reflect.TypeOf(service)}
	c.byName[name] = e
	c.ordered = append(c.ordered, e)
	return nil
}

// MustRegister is Register that panics on error. Intended for startup
// wiring where a duplicate is a programming mistake.
func (c *Container) MustRegister(name string, service interface{}) {
	if err := c.Register(name, service); err != nil {
		panic(err)
	}
}

// Resolve returns the service registered under name.
func (c *Container) Resolve(name string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.byName[name]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// ResolveType returns a service whose type matches t: first by exact
// type, then by interface satisfaction, in registration order.
func (c *Container) ResolveType(t reflect.Type) (interface{}, bool) {
	if t == nil {
		return nil, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, e := range c.ordered {
		if e.typ == t {
			return e.value, true
		}
	}
	if t.Kind() == reflect.Interface {
		for _, e := range c.ordered {
			if e.typ.Implements(t) {
				return e.value, true
			}
		}
	}
	return nil, false
}

// Names returns the registered service names in registration order.
func (c *Container) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, len(c.ordered))
	for i, e := range c.ordered {
		names[i] = e.name
	}
	return names
}
