package tracing

import (
	"github.com/sarchlab/ispcore/datarecording"
)

// Tables written by DBTracer.
const (
	TableTasks  = "frame_tasks"
	TableEvents = "block_events"
)

// TaskEntry is one row of the task table. Times are Unix nanoseconds.
type TaskEntry struct {
	ID        string
	Kind      string
	What      string
	Location  string
	Fcount    uint32
	StartTime int64
	EndTime   int64
}

// EventEntry is one row of the event table.
type EventEntry struct {
	Kind     string
	Location string
	Detail   string
	Time     int64
}

// DBTracer stores finished frame tasks and block events through a data
// recorder.
type DBTracer struct {
	backend datarecording.DataRecorder
}

// NewDBTracer creates the trace tables in the recorder.
func NewDBTracer(backend datarecording.DataRecorder) *DBTracer {
	backend.CreateTable(TableTasks, TaskEntry{})
	backend.CreateTable(TableEvents, EventEntry{})

	return &DBTracer{backend: backend}
}

// StartTask does nothing. Tasks are written when they end.
func (t *DBTracer) StartTask(_ Task) {}

// EndTask writes a finished task.
func (t *DBTracer) EndTask(task Task) {
	t.backend.InsertData(TableTasks, TaskEntry{
		ID:        task.ID,
		Kind:      task.Kind,
		What:      task.What,
		Location:  task.Location,
		Fcount:    task.Fcount,
		StartTime: task.StartTime.UnixNano(),
		EndTime:   task.EndTime.UnixNano(),
	})
}

// RecordEvent writes an event.
func (t *DBTracer) RecordEvent(e Event) {
	t.backend.InsertData(TableEvents, EventEntry{
		Kind:     e.Kind,
		Location: e.Location,
		Detail:   e.Detail,
		Time:     e.Time.UnixNano(),
	})
}

// Terminate flushes what is buffered.
func (t *DBTracer) Terminate() {
	t.backend.Flush()
}
