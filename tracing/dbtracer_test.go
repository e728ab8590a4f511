package tracing

import (
	"context"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ispcore/datarecording"
)

var _ = Describe("DBTracer", func() {
	It("should store finished tasks and events", func() {
		path := filepath.Join(GinkgoT().TempDir(), "trace")
		rec := datarecording.New(path)
		tracer := NewDBTracer(rec)
		t0 := time.Unix(10, 0)

		tracer.StartTask(Task{ID: "A.1"})
		tracer.EndTask(Task{
			ID:        "A.1",
			Kind:      "frame",
			What:      "A",
			Location:  "A",
			Fcount:    4,
			StartTime: t0,
			EndTime:   t0.Add(time.Millisecond),
		})
		tracer.RecordEvent(Event{Kind: "FrameAnomaly", Location: "A", Time: t0})
		tracer.Terminate()
		Expect(rec.Close()).To(Succeed())

		reader, err := datarecording.NewReader(path + ".sqlite3")
		Expect(err).NotTo(HaveOccurred())
		defer reader.Close()

		reader.MapTable(TableTasks, TaskEntry{})
		rows, total, err := reader.Query(context.Background(), TableTasks,
			datarecording.QueryParams{})
		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(Equal(1))

		task := rows[0].(*TaskEntry)
		Expect(task.Fcount).To(Equal(uint32(4)))
		Expect(task.EndTime - task.StartTime).
			To(Equal(int64(time.Millisecond)))

		reader.MapTable(TableEvents, EventEntry{})
		_, total, err = reader.Query(context.Background(), TableEvents,
			datarecording.QueryParams{})
		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(Equal(1))
	})
})
