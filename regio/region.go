// Package regio provides access to memory-mapped register windows.
package regio

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"

	"github.com/sarchlab/ispcore/memory"
)

// ErrUnmappable is returned by Remap when the window cannot be reacquired.
var ErrUnmappable = errors.New("register window cannot be mapped")

// Accessor is the access interface of a register window. Offsets are byte
// offsets from the start of the window and must be 4-byte aligned.
type Accessor interface {
	Name() string

	// Size returns the window size in bytes.
	Size() uint32

	Read32(offset uint32) uint32
	Write32(offset uint32, value uint32)

	// ReadField and WriteField access a field atomically. WriteField is a
	// read-modify-write that no other access can interleave with.
	ReadField(f Field) uint32
	WriteField(f Field, value uint32)

	ReadBulk(offset uint32, n int) []uint32
	WriteBulk(offset uint32, values []uint32)

	// Remap reacquires the mapping, for example after a block reset.
	Remap() error
}

// WriteHandler implements the device side of a register write.
type WriteHandler func(offset, value uint32)

// A Region is a register window backed by a Storage. It can front a real
// mapping or the register file of a simulated device.
type Region struct {
	name    string
	storage *memory.Storage
	base    uint64
	size    uint32

	lock     sync.Mutex
	handlers map[uint32]WriteHandler
	unmapped atomic.Bool
	accesses atomic.Uint64
}

// NewRegion creates a window of size bytes starting at base in storage.
func NewRegion(
	name string,
	storage *memory.Storage,
	base uint64,
	size uint32,
) *Region {
	if size == 0 || size%4 != 0 {
		log.Panicf("region %s: size %d must be a non-zero multiple of 4",
			name, size)
	}

	if base+uint64(size) > storage.Capacity() {
		log.Panicf("region %s: [%#x, %#x) beyond storage capacity %#x",
			name, base, base+uint64(size), storage.Capacity())
	}

	return &Region{
		name:     name,
		storage:  storage,
		base:     base,
		size:     size,
		handlers: make(map[uint32]WriteHandler),
	}
}

// Name returns the name of the window.
func (r *Region) Name() string {
	return r.name
}

// Size returns the window size in bytes.
func (r *Region) Size() uint32 {
	return r.size
}

// Base returns the address of the window in its storage.
func (r *Region) Base() uint64 {
	return r.base
}

// Accesses returns how many register accesses went through the window.
func (r *Region) Accesses() uint64 {
	return r.accesses.Load()
}

// OnWrite installs a handler for writes to offset. A write to a handled
// offset is not stored; the handler implements the register's semantics
// (plain store, write-1-to-clear, self-clearing trigger). Handlers run after
// the window lock is released, so they may access the window themselves.
func (r *Region) OnWrite(offset uint32, h WriteHandler) {
	r.offsetMustBeValid(offset)

	r.lock.Lock()
	defer r.lock.Unlock()

	r.handlers[offset] = h
}

// SetMappable controls whether Remap succeeds.
func (r *Region) SetMappable(mappable bool) {
	r.unmapped.Store(!mappable)
}

// Remap reacquires the window.
func (r *Region) Remap() error {
	r.accesses.Add(1)

	if r.unmapped.Load() {
		return ErrUnmappable
	}

	return nil
}

func (r *Region) offsetMustBeValid(offset uint32) {
	if offset%4 != 0 {
		log.Panicf("region %s: unaligned offset %#x", r.name, offset)
	}

	if offset >= r.size {
		log.Panicf("region %s: offset %#x beyond size %#x",
			r.name, offset, r.size)
	}
}

func (r *Region) mustNotFail(err error) {
	if err != nil {
		log.Panicf("region %s: %v", r.name, err)
	}
}

// Read32 reads one register.
func (r *Region) Read32(offset uint32) uint32 {
	r.offsetMustBeValid(offset)
	r.accesses.Add(1)

	v, err := r.storage.ReadUint32(r.base + uint64(offset))
	r.mustNotFail(err)

	return v
}

// Write32 writes one register, or passes the write to its handler.
func (r *Region) Write32(offset uint32, value uint32) {
	r.offsetMustBeValid(offset)
	r.accesses.Add(1)

	r.lock.Lock()
	h := r.handlers[offset]
	if h == nil {
		r.mustNotFail(r.storage.WriteUint32(r.base+uint64(offset), value))
	}
	r.lock.Unlock()

	if h != nil {
		h(offset, value)
	}
}

// Poke stores a value without counting an access or running side effects.
// Simulated devices use it to update their own register file.
func (r *Region) Poke(offset uint32, value uint32) {
	r.offsetMustBeValid(offset)

	r.lock.Lock()
	defer r.lock.Unlock()

	r.mustNotFail(r.storage.WriteUint32(r.base+uint64(offset), value))
}

// Peek reads a value without counting an access.
func (r *Region) Peek(offset uint32) uint32 {
	r.offsetMustBeValid(offset)

	v, err := r.storage.ReadUint32(r.base + uint64(offset))
	r.mustNotFail(err)

	return v
}

// Modify atomically updates a register without running side effects and
// returns the new value. Simulated devices use it to set and clear status
// bits.
func (r *Region) Modify(offset uint32, fn func(old uint32) uint32) uint32 {
	r.offsetMustBeValid(offset)

	r.lock.Lock()
	defer r.lock.Unlock()

	_, v, err := r.storage.UpdateUint32(r.base+uint64(offset), fn)
	r.mustNotFail(err)

	return v
}

// ReadField reads a field.
func (r *Region) ReadField(f Field) uint32 {
	return f.Get(r.Read32(f.Reg))
}

// WriteField updates a field without disturbing the rest of the register.
func (r *Region) WriteField(f Field, value uint32) {
	r.offsetMustBeValid(f.Reg)
	r.accesses.Add(1)

	r.lock.Lock()
	h := r.handlers[f.Reg]

	var updated uint32
	if h == nil {
		_, _, err := r.storage.UpdateUint32(r.base+uint64(f.Reg),
			func(old uint32) uint32 { return f.Set(old, value) })
		r.mustNotFail(err)
	} else {
		old, err := r.storage.ReadUint32(r.base + uint64(f.Reg))
		r.mustNotFail(err)
		updated = f.Set(old, value)
	}
	r.lock.Unlock()

	if h != nil {
		h(f.Reg, updated)
	}
}

// ReadBulk reads n consecutive registers.
func (r *Region) ReadBulk(offset uint32, n int) []uint32 {
	values := make([]uint32, n)

	for i := range values {
		values[i] = r.Read32(offset + uint32(i)*4)
	}

	return values
}

// WriteBulk writes consecutive registers.
func (r *Region) WriteBulk(offset uint32, values []uint32) {
	for i, v := range values {
		r.Write32(offset+uint32(i)*4, v)
	}
}
