package fsm

import (
	"fmt"
	"reflect"
	"sync"
)

// ContextDTO is the contract for transition context payloads. A DTO
// converts itself to a plain mapping; the inverse direction goes
// through a factory registered with RegisterContextType.
type ContextDTO interface {
	ToMap() map[string]interface{}
}

// ContextFactory rebuilds a DTO from its mapping form.
type ContextFactory func(payload map[string]interface{}) (ContextDTO, error)

var contextTypes = struct {
	mu     sync.RWMutex
	byName map[string]ContextFactory
	names  map[reflect.Type]string
}{
	byName: make(map[string]ContextFactory),
	names:  make(map[reflect.Type]string),
}

// RegisterContextType registers a DTO type under a stable name so it
// can round-trip across the queue boundary. T is the concrete type
// the factory produces.
func RegisterContextType[T ContextDTO](name string, factory ContextFactory) {
	contextTypes.mu.Lock()
	defer contextTypes.mu.Unlock()
	contextTypes.byName[name] = factory
	contextTypes.names[reflect.TypeOf((*T)(nil)).Elem()] = name
}

// ContextTypeName returns the registered name for a DTO instance.
func ContextTypeName(dto ContextDTO) (string, bool) {
	if dto == nil {
		return "", false
	}
	contextTypes.mu.RLock()
	defer contextTypes.mu.RUnlock()
	name, ok := contextTypes.names[reflect.TypeOf(dto)]
	return name, ok
}

// EncodeContext serializes a DTO to its queue form: the registered
// type name and the mapping payload. Unregistered types fail; the
// caller decides whether that is fatal.
func EncodeContext(dto ContextDTO) (string, map[string]interface{}, error) {
	if dto == nil {
		return "", nil, nil
	}
	name, ok := ContextTypeName(dto)
	if !ok {
		return "", nil, NewError(ErrorCodeContextHydration,
			fmt.Sprintf("context type %T is not registered for serialization", dto))
	}
	return name, dto.ToMap(), nil
}

// HydrateContext rebuilds a DTO from its queue form.
func HydrateContext(class string, payload map[string]interface{}) (ContextDTO, error) {
	contextTypes.mu.RLock()
	factory, ok := contextTypes.byName[class]
	contextTypes.mu.RUnlock()

	if !ok {
		return nil, NewError(ErrorCodeContextHydration,
			fmt.Sprintf("unknown context type %q", class))
	}
	dto, err := factory(payload)
	if err != nil {
		e := NewError(ErrorCodeContextHydration,
			fmt.Sprintf("failed to rebuild context type %q", class))
		e.Cause = err
		return nil, e
	}
	return dto, nil
}

// MapContext is the trivial map-backed DTO.
type MapContext map[string]interface{}

// ToMap returns a shallow copy so downstream filtering cannot mutate
// the caller's map.
func (m MapContext) ToMap() map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func init() {
	RegisterContextType[MapContext]("map", func(payload map[string]interface{}) (ContextDTO, error) {
		return MapContext(payload), nil
	})
}
