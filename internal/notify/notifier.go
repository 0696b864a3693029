// Package notify decouples terminal-failure alerting from the worker's
// critical path. Alerts are best-effort: a slow or dead sink never
// blocks or fails job processing.
package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Event is one terminal job failure.
type Event struct {
	JobID    string
	PackID   string
	DocID    string
	Code     string
	Message  string
	Attempts int
}

// Sink receives events off the dispatcher goroutine.
type Sink interface {
	Notify(ctx context.Context, e Event)
}

// LogSink is the default sink: a structured log line per event.
type LogSink struct {
	Log *logrus.Logger
}

func (s *LogSink) Notify(_ context.Context, e Event) {
	s.Log.WithFields(logrus.Fields{
		"job_id":   e.JobID,
		"pack_id":  e.PackID,
		"doc_id":   e.DocID,
		"code":     e.Code,
		"attempts": e.Attempts,
	}).Error("render job failed terminally: " + e.Message)
}

// Dispatcher hands events to the sink through a bounded channel.
// TerminalFailure never blocks; events are dropped when the buffer is
// full.
type Dispatcher struct {
	ch   chan Event
	sink Sink
	log  *logrus.Logger
}

func NewDispatcher(sink Sink, buffer int, log *logrus.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	return &Dispatcher{
		ch:   make(chan Event, buffer),
		sink: sink,
		log:  log,
	}
}

// Run drains the channel until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-d.ch:
			d.sink.Notify(ctx, e)
		}
	}
}

func (d *Dispatcher) TerminalFailure(e Event) {
	select {
	case d.ch <- e:
	default:
		d.log.WithField("job_id", e.JobID).Warn("notifier buffer full, alert dropped")
	}
}
