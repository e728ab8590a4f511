package memory

import (
	"fmt"
	"sync"
)

// A Carveout hands out non-overlapping ranges of a reserved address window.
// It never frees; ranges live as long as the carve-out.
type Carveout struct {
	mu    sync.Mutex
	start uint64
	next  uint64
	end   uint64
}

// NewCarveout creates a carve-out covering [start, start+size).
func NewCarveout(start, size uint64) *Carveout {
	return &Carveout{
		start: start,
		next:  start,
		end:   start + size,
	}
}

// Alloc reserves size bytes aligned to align, which must be a power of two.
func (c *Carveout) Alloc(size, align uint64) (uint64, error) {
	if align == 0 || align&(align-1) != 0 {
		return 0, fmt.Errorf("alignment %d is not a power of two", align)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	addr := (c.next + align - 1) &^ (align - 1)
	if addr+size > c.end {
		return 0, fmt.Errorf("carve-out exhausted: need %d bytes at %#x, end %#x",
			size, addr, c.end)
	}

	c.next = addr + size

	return addr, nil
}

// Used returns the number of bytes handed out, including alignment padding.
func (c *Carveout) Used() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.next - c.start
}
