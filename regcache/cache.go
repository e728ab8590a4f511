// Package regcache mirrors a block's register file so that a frame's
// configuration can be staged without touching hardware and committed in one
// go.
package regcache

import (
	"log"
	"sync"

	"github.com/sarchlab/ispcore/hwerr"
	"github.com/sarchlab/ispcore/regio"
	"github.com/sarchlab/ispcore/regset"
)

// A PairSink receives flushed register writes, normally a command buffer.
type PairSink interface {
	AppendPair(addr, value uint32) error
}

// A Cache is the in-memory mirror of one register file.
//
// Writes are staged until flushed. Only staged values that differ from what
// the mirror believes the hardware holds are emitted. In bypass mode writes go
// straight to the hardware.
type Cache struct {
	lock sync.Mutex

	name   string
	access regio.Accessor

	mirror []uint32
	staged []uint32
	dirty  []bool
	nDirty int

	// known is false until the mirror has been loaded from hardware. While
	// false every staged value counts as a diff.
	known  bool
	bypass bool
}

// New creates a cache for the register window behind access.
func New(name string, access regio.Accessor) *Cache {
	n := access.Size() / 4

	return &Cache{
		name:   name,
		access: access,
		mirror: make([]uint32, n),
		staged: make([]uint32, n),
		dirty:  make([]bool, n),
	}
}

// Name returns the name of the cache.
func (c *Cache) Name() string {
	return c.name
}

// NumRegisters returns the number of registers the cache mirrors.
func (c *Cache) NumRegisters() int {
	return len(c.mirror)
}

func (c *Cache) index(addr uint32) int {
	if addr%4 != 0 || int(addr/4) >= len(c.mirror) {
		log.Panicf("regcache %s: invalid register address %#x", c.name, addr)
	}

	return int(addr / 4)
}

// SetBypass switches bypass mode. Entering bypass drops staged writes, since
// nothing may be committed later behind the caller's back.
func (c *Cache) SetBypass(bypass bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if bypass && !c.bypass {
		c.discard()
	}

	c.bypass = bypass
}

// Bypass reports whether the cache is in bypass mode.
func (c *Cache) Bypass() bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.bypass
}

// Write stages a register value, or writes it through in bypass mode.
func (c *Cache) Write(addr, value uint32) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.write(addr, value)
}

func (c *Cache) write(addr, value uint32) {
	i := c.index(addr)

	if c.bypass {
		c.access.Write32(addr, value)
		c.mirror[i] = value

		return
	}

	if !c.dirty[i] {
		c.dirty[i] = true
		c.nDirty++
	}

	c.staged[i] = value
}

// WriteField stages a field update on top of the current staged-or-mirror
// value of its register.
func (c *Cache) WriteField(f regio.Field, value uint32) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.write(f.Reg, f.Set(c.read(f.Reg), value))
}

// WriteSet stages every pair of a register set.
func (c *Cache) WriteSet(set regset.Set) {
	c.lock.Lock()
	defer c.lock.Unlock()

	for _, p := range set {
		c.write(p.Addr, p.Value)
	}
}

// Read returns the staged value of a register, or the mirror value when
// nothing is staged.
func (c *Cache) Read(addr uint32) uint32 {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.read(addr)
}

func (c *Cache) read(addr uint32) uint32 {
	i := c.index(addr)
	if c.dirty[i] {
		return c.staged[i]
	}

	return c.mirror[i]
}

// Dirty returns the number of staged registers.
func (c *Cache) Dirty() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.nDirty
}

// Discard drops all staged writes.
func (c *Cache) Discard() {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.discard()
}

func (c *Cache) discard() {
	if c.nDirty == 0 {
		return
	}

	clear(c.dirty)
	c.nDirty = 0
}

// pendingDiffs walks staged writes in ascending address order and calls fn for
// each one that changes the hardware value. fn returning an error stops the
// walk.
func (c *Cache) pendingDiffs(fn func(i int, addr, value uint32) error) error {
	if c.nDirty == 0 {
		return nil
	}

	for i, d := range c.dirty {
		if !d {
			continue
		}

		if c.known && c.staged[i] == c.mirror[i] {
			continue
		}

		if err := fn(i, uint32(i)*4, c.staged[i]); err != nil {
			return err
		}
	}

	return nil
}

func (c *Cache) commit() {
	for i, d := range c.dirty {
		if d {
			c.mirror[i] = c.staged[i]
		}
	}

	c.discard()
}

// FlushDirect writes every staged diff to the hardware.
func (c *Cache) FlushDirect() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	n := 0
	_ = c.pendingDiffs(func(_ int, addr, value uint32) error {
		c.access.Write32(addr, value)
		n++

		return nil
	})

	c.commit()

	return n
}

// FlushTo serializes staged diffs into sink in ascending address order, so
// consecutive registers form runs. On error nothing is committed and the
// staged writes are kept for the caller to Discard.
func (c *Cache) FlushTo(sink PairSink) (int, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	n := 0
	err := c.pendingDiffs(func(_ int, addr, value uint32) error {
		if err := sink.AppendPair(addr, value); err != nil {
			return err
		}
		n++

		return nil
	})
	if err != nil {
		return n, err
	}

	c.commit()

	return n, nil
}

// Reinit reacquires the register window and reloads the mirror from it. It is
// used after a block reset. On failure the caller must switch to bypass mode.
func (c *Cache) Reinit() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.discard()

	if err := c.access.Remap(); err != nil {
		c.known = false
		return hwerr.Wrap(hwerr.KindCacheReinitFailed, c.name, "reinit", err)
	}

	copy(c.mirror, c.access.ReadBulk(0, len(c.mirror)))
	c.known = true

	return nil
}

// Snapshot returns the non-zero registers of the mirror.
func (c *Cache) Snapshot() regset.Set {
	c.lock.Lock()
	defer c.lock.Unlock()

	set := make(regset.Set, 0)
	for i, v := range c.mirror {
		if v != 0 {
			set = append(set, regset.Pair{Addr: uint32(i) * 4, Value: v})
		}
	}

	return set
}
