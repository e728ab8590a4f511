package hwblock

import (
	"fmt"
	"log"
)

// State is the lifecycle state of a block.
type State int32

// The lifecycle states, in the order a session goes through them.
const (
	StateClosed State = iota
	StateOpen
	StateInit
	StateRun
	StateConfig
)

var stateNames = [...]string{"closed", "open", "init", "run", "config"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}

	return stateNames[s]
}

// Includes reports whether a block in state s has gone through state o in
// its current session.
func (s State) Includes(o State) bool {
	return s >= o && o != StateClosed
}

var transitions = map[State][]State{
	StateClosed: {StateOpen},
	StateOpen:   {StateInit, StateClosed},
	StateInit:   {StateRun, StateClosed},
	StateRun:    {StateConfig, StateInit, StateClosed},
	StateConfig: {StateConfig, StateRun, StateInit, StateClosed},
}

func transitionMustBeLegal(name string, from, to State) {
	for _, s := range transitions[from] {
		if s == to {
			return
		}
	}

	log.Panicf("%s: illegal transition %s -> %s", name, from, to)
}

// EventState tracks where the hardware is within a frame, as seen through
// its interrupts.
type EventState int

// The event states.
const (
	EventNone EventState = iota
	EventFrameStart
	EventFrameEnd
)

func (e EventState) String() string {
	switch e {
	case EventNone:
		return "none"
	case EventFrameStart:
		return "fs"
	case EventFrameEnd:
		return "fe"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}
