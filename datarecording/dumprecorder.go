package datarecording

import (
	"context"

	"github.com/rs/xid"

	"github.com/sarchlab/ispcore/hwblock"
)

// Tables written by DumpRecorder.
const (
	TableDumps     = "dumps"
	TableRegisters = "dump_registers"
	TableChannels  = "dump_channels"
)

// DumpEntry is one row of the dumps table.
type DumpEntry struct {
	ID     string
	Block  string
	Type   string
	Mode   string
	Reason string
	Time   int64

	State    string
	Event    string
	Overflow bool
	Bypass   bool

	Shots      uint64
	FrameStart uint64
	FrameEnd   uint64
	Anomalies  uint64
	Discarded  uint64
	Errors     uint64
	Overflows  uint64
	Drops      uint64
	Timeouts   uint64
	Resets     uint64
}

// RegisterEntry is one register of a dump. Control marks the common control
// registers.
type RegisterEntry struct {
	DumpID  string
	Control bool
	Addr    uint32
	Value   uint32
}

// ChannelEntry is one DMA channel of a dump.
type ChannelEntry struct {
	DumpID      string
	Name        string
	Dir         string
	Enabled     bool
	Format      string
	Width       uint32
	Height      uint32
	Compression string
	Batch       int
	BufIndex    int
	Addr        uint64
	Stride      uint32
}

// DumpRecorder stores block dumps.
type DumpRecorder struct {
	rec DataRecorder
}

// NewDumpRecorder creates the dump tables in rec.
func NewDumpRecorder(rec DataRecorder) *DumpRecorder {
	rec.CreateTable(TableDumps, DumpEntry{})
	rec.CreateTable(TableRegisters, RegisterEntry{})
	rec.CreateTable(TableChannels, ChannelEntry{})

	return &DumpRecorder{rec: rec}
}

// RecordDump stores a dump under a fresh ID.
func (r *DumpRecorder) RecordDump(d *hwblock.Dump) {
	id := xid.New().String()
	c := d.Counters

	r.rec.InsertData(TableDumps, DumpEntry{
		ID:         id,
		Block:      d.Block,
		Type:       d.Type,
		Mode:       d.Mode.String(),
		Reason:     d.Reason,
		Time:       d.Time.UnixNano(),
		State:      d.State.String(),
		Event:      d.Event.String(),
		Overflow:   d.Overflow,
		Bypass:     d.Bypass,
		Shots:      c.Shots,
		FrameStart: c.FrameStart,
		FrameEnd:   c.FrameEnd,
		Anomalies:  c.Anomalies,
		Discarded:  c.Discarded,
		Errors:     c.Errors,
		Overflows:  c.Overflows,
		Drops:      c.Drops,
		Timeouts:   c.Timeouts,
		Resets:     c.Resets,
	})

	for _, p := range d.Control {
		r.rec.InsertData(TableRegisters, RegisterEntry{
			DumpID: id, Control: true, Addr: p.Addr, Value: p.Value,
		})
	}

	for _, p := range d.Registers {
		r.rec.InsertData(TableRegisters, RegisterEntry{
			DumpID: id, Addr: p.Addr, Value: p.Value,
		})
	}

	for _, ch := range d.DMA {
		r.rec.InsertData(TableChannels, ChannelEntry{
			DumpID:      id,
			Name:        ch.Name,
			Dir:         ch.Dir,
			Enabled:     ch.Enabled,
			Format:      ch.Format,
			Width:       ch.Width,
			Height:      ch.Height,
			Compression: ch.Compression,
			Batch:       ch.Batch,
			BufIndex:    ch.Index,
			Addr:        ch.Addr,
			Stride:      ch.Stride,
		})
	}

	r.rec.Flush()
}

// ReadDumps returns the newest dumps, of one block or of all blocks when
// block is empty.
func ReadDumps(
	ctx context.Context,
	reader DataReader,
	block string,
	limit int,
) ([]*DumpEntry, error) {
	params := QueryParams{OrderBy: "Time DESC", Limit: limit}
	if block != "" {
		params.Where = "Block = ?"
		params.Args = []any{block}
	}

	dumps, _, err := QueryAs[DumpEntry](ctx, reader, TableDumps, params)

	return dumps, err
}

// ReadRegisters returns the registers of a dump, control registers first,
// each group in address order.
func ReadRegisters(
	ctx context.Context,
	reader DataReader,
	dumpID string,
) ([]*RegisterEntry, error) {
	regs, _, err := QueryAs[RegisterEntry](ctx, reader, TableRegisters,
		QueryParams{
			Where:   "DumpID = ?",
			Args:    []any{dumpID},
			OrderBy: "Control DESC, Addr",
		})

	return regs, err
}
