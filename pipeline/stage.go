package pipeline

import (
	"github.com/sarchlab/ispcore/blocks/byrp"
	"github.com/sarchlab/ispcore/blocks/mcsc"
	"github.com/sarchlab/ispcore/blocks/mlsc"
	"github.com/sarchlab/ispcore/blocks/mtnr"
	"github.com/sarchlab/ispcore/blocks/yuvp"
	"github.com/sarchlab/ispcore/dma"
	"github.com/sarchlab/ispcore/hwblock"
	"github.com/sarchlab/ispcore/memory"
	"github.com/sarchlab/ispcore/simhw"
)

// batchSize is the number of buffers each channel rotates through.
const batchSize = 2

// A profile is what a block type is fed every frame.
type profile struct {
	format   dma.Format
	strength uint32
	outputs  func(w, h uint32) []hwblock.Output
	planes   map[string]int
}

var profiles = map[string]profile{
	byrp.Type: {
		format:   dma.FormatBayer10,
		strength: byrp.DefaultStrength,
		planes:   map[string]int{byrp.ChanIn: 1, byrp.ChanOut: 1, byrp.ChanHDR: 1},
	},
	mlsc.Type: {
		format:   dma.FormatBayer10,
		strength: mlsc.DefaultGain,
		planes:   map[string]int{mlsc.ChanIn: 1, mlsc.ChanOut: 1, mlsc.ChanStat: 1},
	},
	yuvp.Type: {
		format:   dma.FormatYUV420SP,
		strength: 8,
		planes: map[string]int{
			yuvp.ChanInY: 1, yuvp.ChanInC: 1, yuvp.ChanOutY: 1, yuvp.ChanOutC: 1,
		},
	},
	mtnr.Type: {
		format:   dma.FormatYUV420SP,
		strength: mtnr.DefaultStrength,
		planes: map[string]int{
			mtnr.ChanCur: 2, mtnr.ChanPrev: 2, mtnr.ChanOut: 2, mtnr.ChanMotion: 1,
		},
	},
	mcsc.Type: {
		format: dma.FormatYUV420SP,
		outputs: func(w, h uint32) []hwblock.Output {
			return []hwblock.Output{
				{Width: w, Height: h, Format: dma.FormatYUV420SP},
				{Width: w / 2, Height: h / 2, Format: dma.FormatYUV420SP},
			}
		},
		planes: map[string]int{
			mcsc.ChanIn: 2, mcsc.ChanOut(0): 2, mcsc.ChanOut(1): 2,
		},
	},
}

// A stage is one block of the pipeline together with its simulated
// hardware and its frame buffers.
type stage struct {
	dev     *simhw.Device
	ctrl    *hwblock.Controller
	profile profile
	buffers map[string][][]uint64
	shots   int

	// resets is the reset count of the block when it was last fed. A reset
	// clears the block registers, so the next frame carries everything.
	resets uint64
}

// allocBuffers reserves a batch of buffers for every channel the profile
// feeds. Each plane gets room for a full frame at three bytes per pixel.
func (s *stage) allocBuffers(c *memory.Carveout, w, h uint32) error {
	planeSize := uint64(w) * uint64(h) * 3

	s.buffers = make(map[string][][]uint64)

	for name, planes := range s.profile.planes {
		batch := make([][]uint64, batchSize)

		for b := range batch {
			batch[b] = make([]uint64, planes)

			for p := range planes {
				addr, err := c.Alloc(planeSize, 4096)
				if err != nil {
					return err
				}

				batch[b][p] = addr
			}
		}

		s.buffers[name] = batch
	}

	return nil
}

// frame builds the next submission of the stage. Every parameter is sent
// with the first frame and after a reset, and none otherwise.
func (s *stage) frame(fcount, w, h uint32) *hwblock.Frame {
	resets := s.ctrl.Counters().Resets
	full := s.shots == 0 || resets != s.resets
	s.resets = resets

	f := &hwblock.Frame{
		Fcount:   fcount,
		Width:    w,
		Height:   h,
		Format:   s.profile.format,
		Strength: s.profile.strength,
		Buffers:  make(map[string][][]uint64, len(s.buffers)),
	}

	if s.profile.outputs != nil {
		f.Outputs = s.profile.outputs(w, h)
	}

	if full {
		f.Changed = hwblock.ParamAll
	}

	for name, bufs := range s.buffers {
		if name == mtnr.ChanPrev && s.shots == 0 {
			continue
		}

		f.Buffers[name] = bufs
	}

	return f
}
