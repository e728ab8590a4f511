// Package cmdq implements the command loader buffer: a header+payload region
// of device-visible memory that carries one frame's register writes.
//
// The header region holds Capacity entries of {startOffset, pairCount}. Each
// entry describes a run of formatter pairs with consecutive register
// addresses. The payload region that follows holds Capacity pairs of
// {addr, value}. All words are little endian. startOffset is the byte offset of
// the run's first pair from the buffer base.
package cmdq

import (
	"fmt"
	"log"

	"github.com/sarchlab/ispcore/hwerr"
	"github.com/sarchlab/ispcore/memory"
)

const (
	// HeaderEntrySize is the size in bytes of one header entry.
	HeaderEntrySize = 8

	// PairSize is the size in bytes of one formatter pair.
	PairSize = 8
)

// Footprint returns the number of bytes a buffer of the given capacity
// occupies in device memory.
func Footprint(capacity int) uint64 {
	return uint64(capacity) * (HeaderEntrySize + PairSize)
}

// A Handle is what the device needs to consume a finalized buffer.
type Handle struct {
	BaseAddr   uint64
	NumHeaders int
	NumPairs   int
}

func (h Handle) String() string {
	return fmt.Sprintf("cmdq@%#x[%d headers, %d pairs]",
		h.BaseAddr, h.NumHeaders, h.NumPairs)
}

// A Buffer stages formatter pairs for one frame. It is owned by a single
// submission path and is not safe for concurrent use.
type Buffer struct {
	name     string
	storage  *memory.Storage
	baseAddr uint64
	capacity int

	numPairs   int
	numHeaders int
	runStart   int
	runLen     int
	lastAddr   uint32
	finalized  bool
	dispatched bool
}

// Name returns the name of the buffer.
func (b *Buffer) Name() string {
	return b.name
}

// Capacity returns the maximum number of pairs per frame.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// BaseAddr returns the device address of the buffer.
func (b *Buffer) BaseAddr() uint64 {
	return b.baseAddr
}

// NumPairs returns the number of pairs appended since the last reset.
func (b *Buffer) NumPairs() int {
	return b.numPairs
}

// NumHeaders returns the number of closed header entries.
func (b *Buffer) NumHeaders() int {
	return b.numHeaders
}

// Finalized reports whether Finalize was called since the last reset.
func (b *Buffer) Finalized() bool {
	return b.finalized
}

func (b *Buffer) payloadBase() uint64 {
	return b.baseAddr + uint64(b.capacity)*HeaderEntrySize
}

// Reset empties the buffer. It must be called before staging every frame.
func (b *Buffer) Reset() {
	b.numPairs = 0
	b.numHeaders = 0
	b.runStart = 0
	b.runLen = 0
	b.lastAddr = 0
	b.finalized = false
	b.dispatched = false
}

// AppendPair adds one register write. A pair whose address does not follow
// the previous one opens a new header entry.
func (b *Buffer) AppendPair(addr, value uint32) error {
	if b.finalized {
		log.Panicf("cmdq %s: append after finalize without reset", b.name)
	}

	if b.numPairs >= b.capacity {
		return hwerr.Wrap(hwerr.KindBufferFull, b.name, "append",
			fmt.Errorf("capacity %d pairs", b.capacity))
	}

	if b.runLen > 0 && addr != b.lastAddr+4 {
		b.closeRun()
	}

	if b.runLen == 0 {
		b.runStart = b.numPairs
	}

	pairAddr := b.payloadBase() + uint64(b.numPairs)*PairSize
	b.mustWrite(pairAddr, addr)
	b.mustWrite(pairAddr+4, value)

	b.numPairs++
	b.runLen++
	b.lastAddr = addr

	return nil
}

func (b *Buffer) closeRun() {
	entryAddr := b.baseAddr + uint64(b.numHeaders)*HeaderEntrySize
	startOffset := b.payloadBase() - b.baseAddr + uint64(b.runStart)*PairSize

	b.mustWrite(entryAddr, uint32(startOffset))
	b.mustWrite(entryAddr+4, uint32(b.runLen))

	b.numHeaders++
	b.runLen = 0
}

func (b *Buffer) mustWrite(addr uint64, v uint32) {
	err := b.storage.WriteUint32(addr, v)
	if err != nil {
		log.Panicf("cmdq %s: write %#x: %v", b.name, addr, err)
	}
}

// Finalize closes the open header entry, if any, and returns the handle to
// pass to the device. Finalize on a finalized buffer returns the same handle.
func (b *Buffer) Finalize() Handle {
	if !b.finalized && b.runLen > 0 {
		b.closeRun()
	}

	b.finalized = true

	return Handle{
		BaseAddr:   b.baseAddr,
		NumHeaders: b.numHeaders,
		NumPairs:   b.numPairs,
	}
}

// MarkDispatched records that the buffer was handed to the device. A buffer
// is handed over at most once between resets.
func (b *Buffer) MarkDispatched() {
	if !b.finalized {
		log.Panicf("cmdq %s: dispatch before finalize", b.name)
	}

	if b.dispatched {
		log.Panicf("cmdq %s: dispatched twice without reset", b.name)
	}

	b.dispatched = true
}
