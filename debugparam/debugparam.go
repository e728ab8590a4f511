// Package debugparam holds the process-wide debug flags of the hardware
// blocks. The flags are set once at startup with Init and are read-only to
// the controllers.
package debugparam

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/joho/godotenv"
)

// Flag is one debug bit.
type Flag uint32

// The debug flags.
const (
	// ForceBypass writes registers straight to hardware instead of staging
	// them in command buffers.
	ForceBypass Flag = 1 << iota

	// DumpOnce takes one full dump at the next frame submission.
	DumpOnce

	// PatternGen makes blocks read from their pattern generator instead of
	// their input DMA.
	PatternGen

	// DumpOnError takes a dump when an error interrupt arrives.
	DumpOnError

	// ResetOnError soft-resets a block after an error interrupt.
	ResetOnError

	// TraceFrames logs every frame end.
	TraceFrames
)

var flagNames = map[Flag]string{
	ForceBypass:  "force-bypass",
	DumpOnce:     "dump-once",
	PatternGen:   "pattern-gen",
	DumpOnError:  "dump-on-error",
	ResetOnError: "reset-on-error",
	TraceFrames:  "trace-frames",
}

// Environment variables read by Load.
const (
	EnvFlags   = "ISP_DEBUG_FLAGS"
	EnvPattern = "ISP_DEBUG_PATTERN"
)

// Params is a snapshot of the debug flags.
type Params struct {
	Flags Flag

	// Pattern selects the generated test pattern when PatternGen is set.
	Pattern uint32
}

// Has reports whether every bit of f is set.
func (p Params) Has(f Flag) bool {
	return p.Flags&f == f
}

// Names returns the names of the set flags in a stable order.
func (p Params) Names() []string {
	var names []string

	for f, name := range flagNames {
		if p.Flags&f != 0 {
			names = append(names, name)
		}
	}

	sort.Strings(names)

	return names
}

func (p Params) String() string {
	return fmt.Sprintf("[%s] pattern=%d", strings.Join(p.Names(), ","), p.Pattern)
}

// ParseFlags turns a comma-separated list of flag names or a number into
// flags.
func ParseFlags(s string) (Flag, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	if n, err := strconv.ParseUint(s, 0, 32); err == nil {
		return Flag(n), nil
	}

	var flags Flag

	for _, item := range strings.Split(s, ",") {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" {
			continue
		}

		f, ok := lookup(item)
		if !ok {
			return 0, fmt.Errorf("unknown debug flag %q", item)
		}

		flags |= f
	}

	return flags, nil
}

func lookup(name string) (Flag, bool) {
	for f, n := range flagNames {
		if n == name {
			return f, true
		}
	}

	return 0, false
}

// Load reads the debug parameters from a dotenv file, if it exists, and the
// process environment. Variables already in the environment win.
func Load(path string) (Params, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				return Params{}, err
			}
		}
	}

	var p Params

	flags, err := ParseFlags(os.Getenv(EnvFlags))
	if err != nil {
		return Params{}, err
	}
	p.Flags = flags

	if s, ok := os.LookupEnv(EnvPattern); ok {
		n, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return Params{}, fmt.Errorf("%s: %w", EnvPattern, err)
		}
		p.Pattern = uint32(n)
	}

	return p, nil
}

var current atomic.Pointer[Params]

// Init publishes the debug parameters for the whole process. Calling Init
// twice without Teardown is a programming error.
func Init(p Params) {
	if !current.CompareAndSwap(nil, &p) {
		log.Panic("debug parameters already initialized")
	}
}

// Teardown forgets the published parameters.
func Teardown() {
	current.Store(nil)
}

// Initialized reports whether Init was called.
func Initialized() bool {
	return current.Load() != nil
}

// Get returns the published parameters. Before Init every flag is clear.
func Get() Params {
	p := current.Load()
	if p == nil {
		return Params{}
	}

	return *p
}
