// Package dma keeps the per-channel DMA descriptors of a hardware block and
// turns them into channel register writes.
package dma

import (
	"errors"
	"fmt"
	"log"
	"sync"
)

const (
	// MaxBatch is the largest number of buffers a channel can cycle through
	// in one batch.
	MaxBatch = 8

	// MaxPlanes is the largest number of planes a format can have.
	MaxPlanes = 2

	// ChannelStride is the size of one channel's register block.
	ChannelStride = 0x40

	// AddrAlign is the required alignment of plane addresses and strides.
	AddrAlign = 16

	blockWidth  = 32
	blockHeight = 4
)

// Offsets inside a channel's register block.
const (
	RegEnable      = 0x00
	RegFormat      = 0x04
	RegSize        = 0x08
	RegStride0     = 0x0c
	RegStride1     = 0x10
	RegComp        = 0x14
	RegHeaderSize  = 0x18
	RegPayloadSize = 0x1c
	RegAddr0Lo     = 0x20
	RegAddr0Hi     = 0x24
	RegAddr1Lo     = 0x28
	RegAddr1Hi     = 0x2c
	RegHdrAddrLo   = 0x30
	RegHdrAddrHi   = 0x34
	RegBatch       = 0x38
)

// ErrInvalidDescriptor is returned when a channel configuration cannot be
// programmed.
var ErrInvalidDescriptor = errors.New("invalid dma descriptor")

// RegWriter receives register writes. A register cache satisfies it.
type RegWriter interface {
	Write(addr, value uint32)
}

// ChannelSpec is the static description of a channel, fixed by hardware.
type ChannelSpec struct {
	Name         string
	Dir          Direction
	Compressible bool
}

// Config is the per-frame configuration of a channel.
type Config struct {
	Format      Format
	Width       uint32
	Height      uint32
	Compression Compression

	// Buffers holds the plane addresses of each buffer in the batch.
	Buffers [][]uint64
}

// A Channel is the descriptor of one DMA channel.
type Channel struct {
	Spec    ChannelSpec
	Enabled bool
	Config  Config

	Strides     [MaxPlanes]uint32
	PayloadSize uint32
	HeaderSize  uint32
	Index       int
}

// ChannelSummary is the dump view of a channel.
type ChannelSummary struct {
	Name        string
	Dir         string
	Enabled     bool
	Format      string
	Width       uint32
	Height      uint32
	Compression string
	Batch       int
	Index       int
	Addr        uint64
	Stride      uint32
}

// A Set is the descriptor array of one block. Its size is fixed when it is
// created from the block's capability.
type Set struct {
	lock sync.Mutex

	name     string
	base     uint32
	channels []Channel
}

// NewSet creates descriptors for the given channels. Channel i's registers
// start at base + i*ChannelStride.
func NewSet(name string, base uint32, specs []ChannelSpec) *Set {
	if base%4 != 0 {
		log.Panicf("dma %s: unaligned channel base %#x", name, base)
	}

	s := &Set{
		name:     name,
		base:     base,
		channels: make([]Channel, len(specs)),
	}

	for i, spec := range specs {
		s.channels[i].Spec = spec
	}

	return s
}

// Name returns the name of the set.
func (s *Set) Name() string {
	return s.name
}

// Len returns the number of channels.
func (s *Set) Len() int {
	return len(s.channels)
}

// RegisterSpan returns the number of register bytes the channels occupy.
func (s *Set) RegisterSpan() uint32 {
	return uint32(len(s.channels)) * ChannelStride
}

// Lookup returns the index of the channel with the given name.
func (s *Set) Lookup(name string) (int, bool) {
	for i, ch := range s.channels {
		if ch.Spec.Name == name {
			return i, true
		}
	}

	return 0, false
}

func (s *Set) indexMustBeValid(idx int) {
	if idx < 0 || idx >= len(s.channels) {
		log.Panicf("dma %s: channel %d out of range", s.name, idx)
	}
}

// Channel returns a copy of channel idx.
func (s *Set) Channel(idx int) Channel {
	s.indexMustBeValid(idx)

	s.lock.Lock()
	defer s.lock.Unlock()

	return s.channels[idx]
}

// Enabled returns the indices of the enabled channels.
func (s *Set) Enabled() []int {
	s.lock.Lock()
	defer s.lock.Unlock()

	var enabled []int
	for i, ch := range s.channels {
		if ch.Enabled {
			enabled = append(enabled, i)
		}
	}

	return enabled
}

// Configure validates cfg and enables channel idx with it. On error the
// channel is left unchanged.
func (s *Set) Configure(idx int, cfg Config) error {
	s.indexMustBeValid(idx)

	s.lock.Lock()
	defer s.lock.Unlock()

	ch := &s.channels[idx]
	if err := validate(ch.Spec, cfg); err != nil {
		return fmt.Errorf("dma %s channel %s: %w", s.name, ch.Spec.Name, err)
	}

	ch.Config = cfg
	ch.Enabled = true
	ch.Strides = [MaxPlanes]uint32{}
	ch.PayloadSize = 0
	ch.HeaderSize = 0

	info := formats[cfg.Format]
	for p, bits := range info.bits {
		ch.Strides[p] = stride(cfg.Width, bits)
	}

	if cfg.Compression != CompNone {
		ch.PayloadSize, ch.HeaderSize = compressedSizes(cfg, info)
	}

	if ch.Index >= len(cfg.Buffers) {
		ch.Index = 0
	}

	return nil
}

func validate(spec ChannelSpec, cfg Config) error {
	if !cfg.Format.Valid() {
		return fmt.Errorf("%w: unknown format %s", ErrInvalidDescriptor, cfg.Format)
	}

	if cfg.Width == 0 || cfg.Height == 0 || cfg.Width > 0xffff || cfg.Height > 0xffff {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidDescriptor,
			cfg.Width, cfg.Height)
	}

	if cfg.Compression != CompNone && !spec.Compressible {
		return fmt.Errorf("%w: compression %s on uncompressible channel",
			ErrInvalidDescriptor, cfg.Compression)
	}

	if len(cfg.Buffers) == 0 || len(cfg.Buffers) > MaxBatch {
		return fmt.Errorf("%w: batch of %d buffers", ErrInvalidDescriptor,
			len(cfg.Buffers))
	}

	planes := cfg.Format.Planes()
	for b, addrs := range cfg.Buffers {
		if len(addrs) != planes {
			return fmt.Errorf("%w: buffer %d has %d planes, %s needs %d",
				ErrInvalidDescriptor, b, len(addrs), cfg.Format, planes)
		}

		for p, a := range addrs {
			if a == 0 || a%AddrAlign != 0 {
				return fmt.Errorf("%w: buffer %d plane %d address %#x",
					ErrInvalidDescriptor, b, p, a)
			}
		}
	}

	return nil
}

func alignUp(v, align uint32) uint32 {
	return (v + align - 1) / align * align
}

func stride(width uint32, bits int) uint32 {
	return alignUp((width*uint32(bits)+7)/8, AddrAlign)
}

func compressedSizes(cfg Config, info formatInfo) (payload, header uint32) {
	for p, bits := range info.bits {
		h := cfg.Height / uint32(info.vdiv[p])
		blocks := alignUp(cfg.Width, blockWidth) / blockWidth *
			(alignUp(h, blockHeight) / blockHeight)

		blockBytes := uint32(blockWidth*blockHeight*bits) / 8
		if cfg.Compression == CompLossy {
			blockBytes /= 2
		}

		payload += alignUp(blocks*blockBytes, 32)
		header += alignUp((blocks+1)/2, 32)
	}

	return payload, header
}

// Disable turns channel idx off. Its batch index is kept.
func (s *Set) Disable(idx int) {
	s.indexMustBeValid(idx)

	s.lock.Lock()
	defer s.lock.Unlock()

	s.channels[idx].Enabled = false
}

// DisableAll turns every channel off.
func (s *Set) DisableAll() {
	s.lock.Lock()
	defer s.lock.Unlock()

	for i := range s.channels {
		s.channels[i].Enabled = false
	}
}

func (s *Set) reg(idx int, off uint32) uint32 {
	return s.base + uint32(idx)*ChannelStride + off
}

// Build writes channel idx's registers for its current batch buffer.
func (s *Set) Build(idx int, w RegWriter) {
	s.indexMustBeValid(idx)

	s.lock.Lock()
	defer s.lock.Unlock()

	ch := &s.channels[idx]
	if !ch.Enabled {
		w.Write(s.reg(idx, RegEnable), 0)
		return
	}

	cfg := ch.Config
	addrs := cfg.Buffers[ch.Index]

	w.Write(s.reg(idx, RegEnable), 1)
	w.Write(s.reg(idx, RegFormat), uint32(cfg.Format))
	w.Write(s.reg(idx, RegSize), cfg.Width|cfg.Height<<16)
	w.Write(s.reg(idx, RegStride0), ch.Strides[0])
	w.Write(s.reg(idx, RegStride1), ch.Strides[1])
	w.Write(s.reg(idx, RegComp), uint32(cfg.Compression))
	w.Write(s.reg(idx, RegHeaderSize), ch.HeaderSize)
	w.Write(s.reg(idx, RegPayloadSize), ch.PayloadSize)

	w.Write(s.reg(idx, RegAddr0Lo), uint32(addrs[0]))
	w.Write(s.reg(idx, RegAddr0Hi), uint32(addrs[0]>>32))

	if len(addrs) > 1 {
		w.Write(s.reg(idx, RegAddr1Lo), uint32(addrs[1]))
		w.Write(s.reg(idx, RegAddr1Hi), uint32(addrs[1]>>32))
	}

	if cfg.Compression != CompNone {
		hdr := addrs[0] + uint64(ch.PayloadSize)
		w.Write(s.reg(idx, RegHdrAddrLo), uint32(hdr))
		w.Write(s.reg(idx, RegHdrAddrHi), uint32(hdr>>32))
	}

	w.Write(s.reg(idx, RegBatch),
		uint32(ch.Index)|uint32(len(cfg.Buffers))<<8)
}

// SaveTo copies the descriptors into dst, reusing its capacity, and returns
// it. Restore puts them back.
func (s *Set) SaveTo(dst []Channel) []Channel {
	s.lock.Lock()
	defer s.lock.Unlock()

	return append(dst[:0], s.channels...)
}

// Restore replaces the descriptors with a copy made by SaveTo.
func (s *Set) Restore(saved []Channel) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if len(saved) != len(s.channels) {
		log.Panicf("dma %s: restoring %d channels into %d",
			s.name, len(saved), len(s.channels))
	}

	copy(s.channels, saved)
}

// Advance moves channel idx to the next buffer of its batch.
func (s *Set) Advance(idx int) {
	s.indexMustBeValid(idx)

	s.lock.Lock()
	defer s.lock.Unlock()

	ch := &s.channels[idx]
	if n := len(ch.Config.Buffers); n > 0 {
		ch.Index = (ch.Index + 1) % n
	}
}

// Summary describes every channel for diagnostics.
func (s *Set) Summary() []ChannelSummary {
	s.lock.Lock()
	defer s.lock.Unlock()

	sum := make([]ChannelSummary, len(s.channels))
	for i, ch := range s.channels {
		sum[i] = ChannelSummary{
			Name:        ch.Spec.Name,
			Dir:         ch.Spec.Dir.String(),
			Enabled:     ch.Enabled,
			Format:      ch.Config.Format.String(),
			Width:       ch.Config.Width,
			Height:      ch.Config.Height,
			Compression: ch.Config.Compression.String(),
			Batch:       len(ch.Config.Buffers),
			Index:       ch.Index,
			Stride:      ch.Strides[0],
		}

		if ch.Enabled {
			sum[i].Addr = ch.Config.Buffers[ch.Index][0]
		}
	}

	return sum
}
