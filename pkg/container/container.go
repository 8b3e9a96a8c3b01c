// Package container is a small constructor-injection container used by the
// binaries to wire components. Singletons that implement io.Closer are closed
// in reverse build order by Close.
package container

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

type Container struct {
	mu        sync.Mutex
	prov      map[reflect.Type]provider
	instances map[reflect.Type]reflect.Value
	order     []reflect.Value // singletons in build order
}

type provider struct {
	fn        reflect.Value
	singleton bool
}

func New() *Container {
	return &Container{prov: make(map[reflect.Type]provider), instances: make(map[reflect.Type]reflect.Value)}
}

// Provide registers a singleton constructor. The constructor's parameters are
// resolved from the container; it returns T or (T, error).
func (c *Container) Provide(constructor interface{}) error {
	return c.register(constructor, true)
}

// ProvideTransient registers a constructor that runs on every resolve.
func (c *Container) ProvideTransient(constructor interface{}) error {
	return c.register(constructor, false)
}

// Supply registers an already built value.
func (c *Container) Supply(v interface{}) error {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return errors.New("container: cannot supply nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.prov[rv.Type()]; exists {
		return fmt.Errorf("container: provider already exists for %v", rv.Type())
	}
	c.instances[rv.Type()] = rv
	c.prov[rv.Type()] = provider{singleton: true}
	return nil
}

func (c *Container) register(constructor interface{}, singleton bool) error {
	v := reflect.ValueOf(constructor)
	if v.Kind() != reflect.Func {
		return errors.New("container: constructor must be a function")
	}
	ft := v.Type()
	if ft.NumOut() == 0 || ft.NumOut() > 2 {
		return errors.New("container: constructor must return (T) or (T, error)")
	}
	if ft.NumOut() == 2 && ft.Out(1) != errorType {
		return errors.New("container: second return value must be error")
	}
	out := ft.Out(0)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.prov[out]; exists {
		return fmt.Errorf("container: provider already exists for %v", out)
	}
	c.prov[out] = provider{fn: v, singleton: singleton}
	return nil
}

// Resolve populates the given pointer with an instance of the requested type.
// Example: var db *database.DB; c.Resolve(&db)
func (c *Container) Resolve(target interface{}) error {
	ptr := reflect.ValueOf(target)
	if ptr.Kind() != reflect.Ptr || ptr.IsNil() {
		return errors.New("container: target must be a non-nil pointer")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	val, err := c.build(ptr.Elem().Type(), nil)
	if err != nil {
		return err
	}
	ptr.Elem().Set(val)
	return nil
}

// Invoke calls fn with its parameters resolved from the container and returns
// fn's error result, if it has one.
func (c *Container) Invoke(fn interface{}) error {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return errors.New("container: Invoke requires a function")
	}
	ft := v.Type()
	args := make([]reflect.Value, ft.NumIn())

	c.mu.Lock()
	for i := range args {
		val, err := c.build(ft.In(i), nil)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		args[i] = val
	}
	c.mu.Unlock()

	outs := v.Call(args)
	if n := len(outs); n > 0 && ft.Out(n-1) == errorType && !outs[n-1].IsNil() {
		return outs[n-1].Interface().(error)
	}
	return nil
}

// build must be called with c.mu held. path tracks the current resolution chain
// for cycle detection.
func (c *Container) build(t reflect.Type, path []reflect.Type) (reflect.Value, error) {
	if v, ok := c.instances[t]; ok {
		return v, nil
	}
	prov, ok := c.prov[t]
	if !ok && t.Kind() == reflect.Interface {
		for pt, p := range c.prov {
			if pt.Implements(t) {
				if v, built := c.instances[pt]; built {
					return v, nil
				}
				prov, ok, t = p, true, pt
				break
			}
		}
	}
	if !ok {
		return reflect.Value{}, fmt.Errorf("container: no provider for %v", t)
	}
	for _, p := range path {
		if p == t {
			return reflect.Value{}, fmt.Errorf("container: cyclic dependency for %v", t)
		}
	}
	path = append(path, t)

	ft := prov.fn.Type()
	args := make([]reflect.Value, ft.NumIn())
	for i := range args {
		dep, err := c.build(ft.In(i), path)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%v: %w", t, err)
		}
		args[i] = dep
	}
	outs := prov.fn.Call(args)
	if len(outs) == 2 && !outs[1].IsNil() {
		return reflect.Value{}, outs[1].Interface().(error)
	}
	res := outs[0]
	if prov.singleton {
		c.instances[t] = res
		c.order = append(c.order, res)
	}
	return res, nil
}

// Close closes built singletons implementing io.Closer, newest first.
func (c *Container) Close() error {
	c.mu.Lock()
	order := c.order
	c.order = nil
	c.mu.Unlock()

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		v := order[i]
		if (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) && v.IsNil() {
			continue
		}
		if cl, ok := v.Interface().(io.Closer); ok {
			if err := cl.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
