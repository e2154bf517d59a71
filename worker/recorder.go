package worker

import (
	"github.com/pulseline-io/pulseline/log"
	"github.com/pulseline-io/pulseline/metrics"
	"github.com/pulseline-io/pulseline/results"
	"github.com/pulseline-io/pulseline/types"
)

// Recorder is the sole writer of a run's sink. It consumes the record
// queue in FIFO order on its own goroutine so hook code never touches
// the filesystem directly; one record in, one block appended.
//
// A write fault is counted and logged but does not stop the run: rows
// after a transient sink error are still attempted.
type Recorder struct {
	queue     <-chan types.Record
	results   *results.Results
	logger    *log.Logger
	collector *metrics.Collector
	done      chan struct{}
}

func newRecorder(queue <-chan types.Record, r *results.Results, logger *log.Logger, collector *metrics.Collector) *Recorder {
	return &Recorder{
		queue:     queue,
		results:   r,
		logger:    logger,
		collector: collector,
		done:      make(chan struct{}),
	}
}

// Start launches the consumer goroutine. The recorder exits once the
// queue is closed and fully drained; rows enqueued before closure are
// never discarded.
func (r *Recorder) Start() {
	go r.consume()
}

// Wait blocks until the recorder has drained its queue and exited.
func (r *Recorder) Wait() { <-r.done }

func (r *Recorder) consume() {
	defer close(r.done)
	for rec := range r.queue {
		before := r.results.RowCount()
		if err := r.results.Append(rec); err != nil {
			r.collector.IncSinkWriteErrors()
			r.logger.Error("record write failed", map[string]any{
				"error": err.Error(),
				"keys":  len(rec),
			})
			continue
		}
		r.collector.IncRowsWritten(int64(r.results.RowCount() - before))
	}
}
