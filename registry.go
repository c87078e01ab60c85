package embedcache

import (
	"sync"
)

// Handle identifies an open store across the call boundary. It packs a
// slot index and a generation counter; a handle from a closed store
// never resolves again, even if the slot is reused.
type Handle int64

const handleGenShift = 32

func makeHandle(slot int, generation uint32) Handle {
	return Handle(int64(generation)<<handleGenShift | int64(slot))
}

func (h Handle) slot() int          { return int(int64(h) & (1<<handleGenShift - 1)) }
func (h Handle) generation() uint32 { return uint32(int64(h) >> handleGenShift) }

type registrySlot struct {
	store      *Store
	generation uint32
}

// Registry maps integer handles to open stores so boundary callers can
// reference a store without holding a native pointer. Slots are a small
// arena; open and close are atomic with respect to concurrent handle
// operations on other slots.
type Registry struct {
	mu    sync.Mutex
	slots []registrySlot
	free  []int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Open opens a store (see Open) and registers it, returning its handle.
func (r *Registry) Open(path string, dimension int, optFns ...Option) (Handle, error) {
	store, err := Open(path, dimension, optFns...)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var slot int
	if n := len(r.free); n > 0 {
		slot = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		r.slots = append(r.slots, registrySlot{})
		slot = len(r.slots) - 1
	}

	r.slots[slot].store = store
	r.slots[slot].generation++
	h := makeHandle(slot, r.slots[slot].generation)

	store.onClose = func() { r.release(h) }

	return h, nil
}

// Get resolves a handle to its open store, or ErrInvalidHandle.
func (r *Registry) Get(h Handle) (*Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot := h.slot()
	if slot < 0 || slot >= len(r.slots) {
		return nil, ErrInvalidHandle
	}
	entry := r.slots[slot]
	if entry.store == nil || entry.generation != h.generation() {
		return nil, ErrInvalidHandle
	}
	return entry.store, nil
}

// Close closes the store behind the handle and invalidates the handle.
// Closing an unknown or already-closed handle returns ErrInvalidHandle.
func (r *Registry) Close(h Handle) error {
	store, err := r.Get(h)
	if err != nil {
		return err
	}
	// Store.Close triggers the onClose hook, which removes the slot.
	return store.Close()
}

// Len returns the number of open stores.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, entry := range r.slots {
		if entry.store != nil {
			n++
		}
	}
	return n
}

// release clears the slot for a closed store. Generation stays bumped so
// stale handles to this slot keep failing.
func (r *Registry) release(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot := h.slot()
	if slot < 0 || slot >= len(r.slots) {
		return
	}
	if r.slots[slot].generation != h.generation() || r.slots[slot].store == nil {
		return
	}
	r.slots[slot].store = nil
	r.free = append(r.free, slot)
}

// DefaultRegistry is the process-wide registry used by the package-level
// handle API and the C boundary.
var DefaultRegistry = NewRegistry()

// OpenHandle opens a store in the DefaultRegistry.
func OpenHandle(path string, dimension int, optFns ...Option) (Handle, error) {
	return DefaultRegistry.Open(path, dimension, optFns...)
}

// CloseHandle closes a store in the DefaultRegistry.
func CloseHandle(h Handle) error {
	return DefaultRegistry.Close(h)
}

// HandleStore resolves a DefaultRegistry handle.
func HandleStore(h Handle) (*Store, error) {
	return DefaultRegistry.Get(h)
}
