package tracing

import (
	"sync"
	"time"
)

// BlockStats summarizes the frames and events of one block.
type BlockStats struct {
	Frames      uint64
	AverageTime time.Duration
	MaxTime     time.Duration
	Events      map[string]uint64
}

// AverageTimeTracer keeps the average frame time and event counts of every
// block in memory.
type AverageTimeTracer struct {
	lock  sync.Mutex
	stats map[string]*BlockStats
}

// NewAverageTimeTracer creates an empty AverageTimeTracer.
func NewAverageTimeTracer() *AverageTimeTracer {
	return &AverageTimeTracer{
		stats: make(map[string]*BlockStats),
	}
}

func (t *AverageTimeTracer) block(name string) *BlockStats {
	s, ok := t.stats[name]
	if !ok {
		s = &BlockStats{Events: make(map[string]uint64)}
		t.stats[name] = s
	}

	return s
}

// StartTask does nothing.
func (t *AverageTimeTracer) StartTask(_ Task) {}

// EndTask adds the task time to the average of its block.
func (t *AverageTimeTracer) EndTask(task Task) {
	d := task.EndTime.Sub(task.StartTime)

	t.lock.Lock()
	defer t.lock.Unlock()

	s := t.block(task.Location)
	s.AverageTime = time.Duration(
		(float64(s.AverageTime)*float64(s.Frames) + float64(d)) /
			float64(s.Frames+1))
	s.MaxTime = max(s.MaxTime, d)
	s.Frames++
}

// RecordEvent counts an event.
func (t *AverageTimeTracer) RecordEvent(e Event) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.block(e.Location).Events[e.Kind]++
}

// Stats returns a copy of the statistics of a block.
func (t *AverageTimeTracer) Stats(block string) BlockStats {
	t.lock.Lock()
	defer t.lock.Unlock()

	s, ok := t.stats[block]
	if !ok {
		return BlockStats{Events: map[string]uint64{}}
	}

	c := *s
	c.Events = make(map[string]uint64, len(s.Events))
	for k, v := range s.Events {
		c.Events[k] = v
	}

	return c
}
