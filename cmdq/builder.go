package cmdq

import (
	"log"

	"github.com/sarchlab/ispcore/memory"
)

// Builder builds command buffers.
type Builder struct {
	storage  *memory.Storage
	baseAddr uint64
	capacity int
}

// MakeBuilder returns a new Builder.
func MakeBuilder() Builder {
	return Builder{
		capacity: 1024,
	}
}

// WithStorage sets the device memory the buffer lives in.
func (b Builder) WithStorage(storage *memory.Storage) Builder {
	b.storage = storage
	return b
}

// WithBaseAddress sets the device address of the buffer.
func (b Builder) WithBaseAddress(addr uint64) Builder {
	b.baseAddr = addr
	return b
}

// WithCapacity sets the number of pairs the buffer holds. It should be the
// register count of the owning block.
func (b Builder) WithCapacity(capacity int) Builder {
	b.capacity = capacity
	return b
}

func (b Builder) parametersMustBeValid() {
	if b.storage == nil {
		log.Panic("cmdq: storage is not set")
	}

	if b.capacity <= 0 {
		log.Panicf("cmdq: invalid capacity %d", b.capacity)
	}

	if b.baseAddr%HeaderEntrySize != 0 {
		log.Panicf("cmdq: base address %#x is not aligned", b.baseAddr)
	}

	if b.baseAddr+Footprint(b.capacity) > b.storage.Capacity() {
		log.Panicf("cmdq: buffer at %#x does not fit in storage", b.baseAddr)
	}
}

// Build creates the buffer.
func (b Builder) Build(name string) *Buffer {
	b.parametersMustBeValid()

	return &Buffer{
		name:     name,
		storage:  b.storage,
		baseAddr: b.baseAddr,
		capacity: b.capacity,
	}
}
