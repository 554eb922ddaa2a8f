package callstack

import (
	"sync"
	"sync/atomic"
)

// CallableFn is a deferred cleanup handler
type CallableFn func() error

// CallStack is a thread-safe stack of cleanup handlers. Handlers register
// in dependency order and Run executes them in reverse, so resources close
// before the resources they depend on.
type CallStack struct {
	calling  atomic.Bool
	handlers []CallableFn
	sync.Mutex
}

// NewCallStack creates an empty stack
func NewCallStack() *CallStack {
	return &CallStack{
		handlers: make([]CallableFn, 0),
	}
}

// Add registers a handler on top of the stack
func (c *CallStack) Add(fn CallableFn) {
	c.Lock()
	defer c.Unlock()
	c.handlers = append(c.handlers, fn)
}

// Len returns the number of registered handlers
func (c *CallStack) Len() int {
	c.Lock()
	defer c.Unlock()
	return len(c.handlers)
}

// Run executes all handlers in reverse registration order. If abortOnError
// is true, execution stops at the first failing handler and its error is
// returned; otherwise errors are discarded and every handler runs.
func (c *CallStack) Run(abortOnError bool) error {
	c.Lock()
	c.calling.Store(true)
	defer c.calling.Store(false)
	defer c.Unlock()
	for i := len(c.handlers) - 1; i >= 0; i-- {
		if err := c.handlers[i](); err != nil && abortOnError {
			return err
		}
	}
	return nil
}

// RunLinear executes all handlers in registration order
func (c *CallStack) RunLinear(abortOnError bool) error {
	c.Lock()
	c.calling.Store(true)
	defer c.calling.Store(false)
	defer c.Unlock()
	for _, fn := range c.handlers {
		if err := fn(); err != nil && abortOnError {
			return err
		}
	}
	return nil
}

// IsCalling returns true while handlers are executing
func (c *CallStack) IsCalling() bool {
	return c.calling.Load()
}
