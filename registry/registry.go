// Package registry is the construction service feature setup callbacks use to
// register collaborators and to build the instances their startup tasks need.
package registry

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// Static errors for registry package
var (
	ErrServiceAlreadyRegistered = errors.New("service already registered")
	ErrServiceNotFound          = errors.New("service not found")
	ErrFactoryNil               = errors.New("service factory is nil")
	ErrTargetNotPointer         = errors.New("target must be a non-nil pointer")
	ErrServiceIncompatible      = errors.New("service cannot be assigned to target")
	ErrBuildFailed              = errors.New("service build failed")
)

// Lifetime controls how often a factory is invoked.
type Lifetime int

const (
	// Singleton factories run once; the instance is cached.
	Singleton Lifetime = iota
	// Transient factories run on every resolution.
	Transient
)

func (l Lifetime) String() string {
	switch l {
	case Singleton:
		return "singleton"
	case Transient:
		return "transient"
	default:
		return fmt.Sprintf("lifetime(%d)", int(l))
	}
}

// Factory builds a service instance. It receives the registry so it can
// resolve its own collaborators.
type Factory func(r *Registry) (any, error)

type entry struct {
	name     string
	lifetime Lifetime
	factory  Factory
	instance any
	built    bool
}

// Registry maps service names to instances or factories.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds a ready-made instance under name.
func (r *Registry) Register(name string, instance any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("%w: %s", ErrServiceAlreadyRegistered, name)
	}
	r.entries[name] = &entry{name: name, lifetime: Singleton, instance: instance, built: true}
	r.order = append(r.order, name)
	return nil
}

// RegisterFactory adds a factory under name with the given lifetime.
func (r *Registry) RegisterFactory(name string, lifetime Lifetime, factory Factory) error {
	if factory == nil {
		return fmt.Errorf("%w: %s", ErrFactoryNil, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("%w: %s", ErrServiceAlreadyRegistered, name)
	}
	r.entries[name] = &entry{name: name, lifetime: lifetime, factory: factory}
	r.order = append(r.order, name)
	return nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[name]
	return ok
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Resolve returns the instance registered under name, building it if needed.
// The registry lock is not held while a factory runs so factories may resolve
// other services.
func (r *Registry) Resolve(name string) (any, error) {
	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	if e.built && e.lifetime == Singleton {
		instance := e.instance
		r.mu.Unlock()
		return instance, nil
	}
	factory := e.factory
	r.mu.Unlock()

	instance, err := factory(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBuildFailed, name, err)
	}

	if e.lifetime == Singleton {
		r.mu.Lock()
		if e.built {
			// another caller won the race; keep the first instance
			instance = e.instance
		} else {
			e.instance = instance
			e.built = true
		}
		r.mu.Unlock()
	}
	return instance, nil
}

// Get resolves name and assigns the instance to target, which must be a
// non-nil pointer to an interface the service implements or to a type the
// service is assignable to.
func (r *Registry) Get(name string, target any) error {
	targetValue := reflect.ValueOf(target)
	if targetValue.Kind() != reflect.Ptr || targetValue.IsNil() {
		return ErrTargetNotPointer
	}

	service, err := r.Resolve(name)
	if err != nil {
		return err
	}
	if service == nil {
		return fmt.Errorf("%w: service '%s' is nil", ErrServiceIncompatible, name)
	}

	serviceType := reflect.TypeOf(service)
	targetType := targetValue.Elem().Type()

	switch {
	case targetType.Kind() == reflect.Interface && serviceType.Implements(targetType):
		targetValue.Elem().Set(reflect.ValueOf(service))
	case serviceType.AssignableTo(targetType):
		targetValue.Elem().Set(reflect.ValueOf(service))
	case serviceType.Kind() == reflect.Ptr && serviceType.Elem().AssignableTo(targetType):
		targetValue.Elem().Set(reflect.ValueOf(service).Elem())
	default:
		return fmt.Errorf("%w: service '%s' of type %s cannot be assigned to %s",
			ErrServiceIncompatible, name, serviceType, targetType)
	}
	return nil
}

// Resolve is the typed form of Registry.Resolve.
func Resolve[T any](r *Registry, name string) (T, error) {
	var zero T
	instance, err := r.Resolve(name)
	if err != nil {
		return zero, err
	}
	typed, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("%w: service '%s' of type %T is not %s",
			ErrServiceIncompatible, name, instance, reflect.TypeFor[T]())
	}
	return typed, nil
}
