// Package config reads the settings of a pipeline run from a dotenv file
// and the process environment.
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sarchlab/ispcore/blocks"
)

// Environment variables.
const (
	EnvBlocks         = "ISP_BLOCKS"
	EnvWidth          = "ISP_WIDTH"
	EnvHeight         = "ISP_HEIGHT"
	EnvFrames         = "ISP_FRAMES"
	EnvFramePeriod    = "ISP_FRAME_PERIOD"
	EnvDisableTimeout = "ISP_DISABLE_TIMEOUT"
	EnvDirect         = "ISP_DIRECT"
	EnvRecordDB       = "ISP_RECORD_DB"
	EnvMonitorPort    = "ISP_MONITOR_PORT"
)

// Config holds the settings of a pipeline run.
type Config struct {
	// Blocks lists the block types of the pipeline in processing order.
	Blocks []string

	Width  uint32
	Height uint32

	// Frames is the number of frames to run.
	Frames int

	// FramePeriod is how long the simulated hardware takes per frame.
	FramePeriod time.Duration

	DisableTimeout time.Duration

	// Direct makes the blocks write registers directly instead of through
	// command buffers.
	Direct bool

	// RecordDB names the SQLite file dumps and traces go to. Empty disables
	// recording.
	RecordDB string

	// MonitorPort is the port of the monitoring server. Zero disables it,
	// -1 picks a free port.
	MonitorPort int
}

// Default returns the configuration used for unset variables.
func Default() Config {
	return Config{
		Blocks:         blocks.Types(),
		Width:          1920,
		Height:         1080,
		Frames:         30,
		FramePeriod:    time.Millisecond,
		DisableTimeout: 100 * time.Millisecond,
	}
}

// Load builds a configuration from the defaults, the dotenv file at path if
// it exists, and the process environment. The environment wins over the file.
func Load(path string) (Config, error) {
	vars := map[string]string{}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			vars, err = godotenv.Read(path)
			if err != nil {
				return Config{}, err
			}
		}
	}

	for _, name := range []string{
		EnvBlocks, EnvWidth, EnvHeight, EnvFrames, EnvFramePeriod,
		EnvDisableTimeout, EnvDirect, EnvRecordDB, EnvMonitorPort,
	} {
		if v, ok := os.LookupEnv(name); ok {
			vars[name] = v
		}
	}

	return Parse(vars)
}

// Parse builds a configuration from the defaults and a set of variables.
func Parse(vars map[string]string) (Config, error) {
	c := Default()
	p := parser{vars: vars}

	if s, ok := vars[EnvBlocks]; ok {
		c.Blocks = splitList(s)
	}

	p.uint32(EnvWidth, &c.Width)
	p.uint32(EnvHeight, &c.Height)
	p.int(EnvFrames, &c.Frames)
	p.duration(EnvFramePeriod, &c.FramePeriod)
	p.duration(EnvDisableTimeout, &c.DisableTimeout)
	p.bool(EnvDirect, &c.Direct)
	p.int(EnvMonitorPort, &c.MonitorPort)

	if s, ok := vars[EnvRecordDB]; ok {
		c.RecordDB = s
	}

	if p.err != nil {
		return Config{}, p.err
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

// Validate checks that the configuration can be run.
func (c Config) Validate() error {
	if len(c.Blocks) == 0 {
		return fmt.Errorf("%s: no blocks", EnvBlocks)
	}

	known := blocks.Types()
	for _, b := range c.Blocks {
		if !slices.Contains(known, b) {
			return fmt.Errorf("%s: unknown block %q, known blocks are %s",
				EnvBlocks, b, strings.Join(known, ","))
		}
	}

	if c.Width == 0 || c.Height == 0 || c.Width > 0xffff || c.Height > 0xffff {
		return fmt.Errorf("frame size %dx%d out of range", c.Width, c.Height)
	}

	if c.Frames < 0 {
		return fmt.Errorf("%s: negative frame count %d", EnvFrames, c.Frames)
	}

	if c.MonitorPort < -1 || c.MonitorPort > 65535 {
		return fmt.Errorf("%s: invalid port %d", EnvMonitorPort, c.MonitorPort)
	}

	return nil
}

func splitList(s string) []string {
	var list []string

	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			list = append(list, item)
		}
	}

	return list
}

// parser keeps the first error so that settings can be read in a row.
type parser struct {
	vars map[string]string
	err  error
}

func (p *parser) lookup(name string) (string, bool) {
	if p.err != nil {
		return "", false
	}

	s, ok := p.vars[name]

	return s, ok && s != ""
}

func (p *parser) fail(name string, err error) {
	p.err = fmt.Errorf("%s: %w", name, err)
}

func (p *parser) uint32(name string, dst *uint32) {
	s, ok := p.lookup(name)
	if !ok {
		return
	}

	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		p.fail(name, err)
		return
	}

	*dst = uint32(n)
}

func (p *parser) int(name string, dst *int) {
	s, ok := p.lookup(name)
	if !ok {
		return
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		p.fail(name, err)
		return
	}

	*dst = n
}

func (p *parser) duration(name string, dst *time.Duration) {
	s, ok := p.lookup(name)
	if !ok {
		return
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		p.fail(name, err)
		return
	}

	*dst = d
}

func (p *parser) bool(name string, dst *bool) {
	s, ok := p.lookup(name)
	if !ok {
		return
	}

	b, err := strconv.ParseBool(s)
	if err != nil {
		p.fail(name, err)
		return
	}

	*dst = b
}
