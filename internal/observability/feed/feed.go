// Package feed ships director progress events to observers through a
// bounded non-blocking queue. Emission never blocks the pipeline and a full
// queue drops rather than stalls; progress is advisory by contract.
//
// Feeds are owned instances injected where needed. There is no process
// default.
package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KBLLR/Avatars-Lab-sub000/api/progress"
)

// Sink exports progress events.
type Sink interface {
	Export(context.Context, progress.Event) error
}

// Options controls queue and export behavior.
type Options struct {
	QueueCapacity int
	ExportTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueCapacity < 1 {
		o.QueueCapacity = 256
	}
	if o.ExportTimeout <= 0 {
		o.ExportTimeout = 200 * time.Millisecond
	}
	return o
}

// Stats captures current feed counters.
type Stats struct {
	Enqueued       uint64
	Dropped        uint64
	Exported       uint64
	ExportFailures uint64
	QueueDepth     int
}

// Feed is a bounded non-blocking progress event pipeline.
type Feed struct {
	sink Sink
	opts Options

	queue chan progress.Event
	stop  chan struct{}

	closeOnce sync.Once
	wg        sync.WaitGroup

	enqueued       atomic.Uint64
	dropped        atomic.Uint64
	exported       atomic.Uint64
	exportFailures atomic.Uint64
}

type discardSink struct{}

func (discardSink) Export(context.Context, progress.Event) error { return nil }

// New constructs and starts a feed. A nil sink discards events.
func New(sink Sink, opts Options) *Feed {
	opts = opts.withDefaults()
	if sink == nil {
		sink = discardSink{}
	}
	f := &Feed{
		sink:  sink,
		opts:  opts,
		queue: make(chan progress.Event, opts.QueueCapacity),
		stop:  make(chan struct{}),
	}
	f.wg.Add(1)
	go f.run()
	return f
}

// Emit enqueues one event without blocking. Events that do not fit are
// dropped and counted.
func (f *Feed) Emit(ev progress.Event) {
	select {
	case f.queue <- ev:
		f.enqueued.Add(1)
	default:
		f.dropped.Add(1)
	}
}

// Close drains pending events and stops background export.
func (f *Feed) Close() error {
	f.closeOnce.Do(func() {
		close(f.stop)
		f.wg.Wait()
	})
	return nil
}

// Stats returns current counter snapshots.
func (f *Feed) Stats() Stats {
	return Stats{
		Enqueued:       f.enqueued.Load(),
		Dropped:        f.dropped.Load(),
		Exported:       f.exported.Load(),
		ExportFailures: f.exportFailures.Load(),
		QueueDepth:     len(f.queue),
	}
}

func (f *Feed) run() {
	defer f.wg.Done()

	for {
		select {
		case <-f.stop:
			for {
				select {
				case ev := <-f.queue:
					f.export(ev)
				default:
					return
				}
			}
		case ev := <-f.queue:
			f.export(ev)
		}
	}
}

func (f *Feed) export(ev progress.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), f.opts.ExportTimeout)
	defer cancel()
	if err := f.sink.Export(ctx, ev); err != nil {
		f.exportFailures.Add(1)
		return
	}
	f.exported.Add(1)
}
