// Package tracing turns the hooks of block controllers into frame tasks and
// block events, and hands them to tracers.
package tracing

import "time"

// A TimeTeller tells the time tasks start and end at.
type TimeTeller interface {
	CurrentTime() time.Time
}

// WallClock tells the wall-clock time.
type WallClock struct{}

// CurrentTime returns time.Now.
func (WallClock) CurrentTime() time.Time {
	return time.Now()
}

// A Task is the processing of one frame by one block, from frame start to
// frame end.
type Task struct {
	ID       string
	Kind     string
	What     string
	Location string
	Fcount   uint32

	StartTime time.Time
	EndTime   time.Time
}

// An Event is something that happened to a block outside the normal frame
// flow, such as an anomaly, an error, a drop or a dump.
type Event struct {
	Kind     string
	Location string
	Detail   string
	Time     time.Time
}

// A Tracer collects frame tasks and block events.
type Tracer interface {
	StartTask(task Task)
	EndTask(task Task)
	RecordEvent(event Event)
}
