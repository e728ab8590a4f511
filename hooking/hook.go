// Package hooking lets observers attach to the control components without the
// components knowing who is listening.
package hooking

import (
	"log"
	"sync"
	"sync/atomic"
)

// HookPos names a point where a component invokes its hooks.
type HookPos struct {
	Name string
}

// HookCtx describes one hook invocation. Item is what the position is about,
// such as a frame or a dump. Detail carries extra data, often an error.
type HookCtx struct {
	Domain Hookable
	Pos    *HookPos
	Item   interface{}
	Detail interface{}
}

// Hookable defines an object that accept Hooks.
type Hookable interface {
	AcceptHook(hook Hook)
	NumHooks() int
	Hooks() []Hook
}

// Hook is invoked by a hookable object. Hooks run on the invoking goroutine,
// which may be an interrupt handler, and must not block.
type Hook interface {
	Func(ctx HookCtx)
}

// HookFunc adapts a function to the Hook interface. Since functions are not
// comparable, each HookFunc must be registered through a pointer.
type HookFunc func(ctx HookCtx)

// Func calls f.
func (f *HookFunc) Func(ctx HookCtx) {
	(*f)(ctx)
}

// HookableBase implements Hookable. Invoking reads an immutable snapshot of
// the hook list, so it never takes a lock. Registration copies the list.
type HookableBase struct {
	writeLock sync.Mutex
	hooks     atomic.Pointer[[]Hook]
}

func (h *HookableBase) snapshot() []Hook {
	if p := h.hooks.Load(); p != nil {
		return *p
	}

	return nil
}

// NumHooks returns the number of hooks registered.
func (h *HookableBase) NumHooks() int {
	return len(h.snapshot())
}

// Hooks returns a copy of the registered hooks.
func (h *HookableBase) Hooks() []Hook {
	return append([]Hook(nil), h.snapshot()...)
}

// AcceptHook registers a hook. Registering the same hook twice panics.
func (h *HookableBase) AcceptHook(hook Hook) {
	h.writeLock.Lock()
	defer h.writeLock.Unlock()

	old := h.snapshot()
	for _, existing := range old {
		if existing == hook {
			log.Panicf("hook %v is already registered", hook)
		}
	}

	next := make([]Hook, len(old), len(old)+1)
	copy(next, old)
	next = append(next, hook)

	h.hooks.Store(&next)
}

// RemoveHook unregisters a hook and reports whether it was registered.
func (h *HookableBase) RemoveHook(hook Hook) bool {
	h.writeLock.Lock()
	defer h.writeLock.Unlock()

	old := h.snapshot()
	next := make([]Hook, 0, len(old))

	for _, existing := range old {
		if existing != hook {
			next = append(next, existing)
		}
	}

	if len(next) == len(old) {
		return false
	}

	h.hooks.Store(&next)

	return true
}

// InvokeHook calls every registered hook in registration order.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.snapshot() {
		hook.Func(ctx)
	}
}
