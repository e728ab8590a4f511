// Package irq names the interrupt lines of a hardware block and defines how
// handlers are attached to them.
package irq

import "fmt"

// Line identifies one interrupt line of a block.
type Line int

// Every block has a general line carrying frame events and an error line.
const (
	LineGeneral Line = iota
	LineError

	NumLines
)

func (l Line) String() string {
	switch l {
	case LineGeneral:
		return "general"
	case LineError:
		return "error"
	default:
		return fmt.Sprintf("line(%d)", int(l))
	}
}

// Handler services one interrupt. Handlers of different lines may run
// concurrently with each other and with frame submission.
type Handler func()

// A Controller delivers a block's interrupts to attached handlers.
type Controller interface {
	Attach(line Line, h Handler)
	Detach(line Line)
}
