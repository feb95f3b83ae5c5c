// Package router executes G-code jobs on the machine.
package router

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mastercactapus/sled/gcode"
	"github.com/mastercactapus/sled/machine"
	"github.com/pkg/errors"
)

// ErrJobRunning is returned when the job cannot be changed or started
// because one is already running.
var ErrJobRunning = errors.New("job is running")

// Router holds the loaded job and runs it on a Machine.
type Router struct {
	m   *machine.Machine
	log *slog.Logger
	now func() time.Time

	mx        sync.Mutex
	job       []gcode.Block
	running   bool
	listeners []func([]gcode.Block)
	segments  []func(Segment)
}

func New(m *machine.Machine, log *slog.Logger) *Router {
	return &Router{
		m:   m,
		log: log.With("component", "router"),
		now: time.Now,
	}
}

// LoadJobFromStream parses r and replaces the current job with it.
// Listeners are notified before it returns.
func (r *Router) LoadJobFromStream(rd io.Reader) error {
	blocks, err := gcode.Parse(rd)
	if err != nil {
		return errors.Wrap(err, "parse job")
	}

	r.mx.Lock()
	if r.running {
		r.mx.Unlock()
		return ErrJobRunning
	}
	r.job = blocks
	r.mx.Unlock()

	r.log.Info("job loaded", "blocks", len(blocks))
	r.notify(blocks)
	return nil
}

// DeleteJob clears the current job.
func (r *Router) DeleteJob() error {
	r.mx.Lock()
	if r.running {
		r.mx.Unlock()
		return ErrJobRunning
	}
	r.job = nil
	r.mx.Unlock()

	r.log.Info("job deleted")
	r.notify(nil)
	return nil
}

// Job returns the loaded job.
func (r *Router) Job() []gcode.Block {
	r.mx.Lock()
	defer r.mx.Unlock()
	return append([]gcode.Block(nil), r.job...)
}

// JobText returns the loaded job as G-code text.
func (r *Router) JobText() io.Reader {
	job := gcode.Blocks(r.Job())
	return gcode.NewBuffer(&job)
}

// Running reports whether a job is executing.
func (r *Router) Running() bool {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.running
}

// OnJobChanged registers fn to be called with the new job whenever it is
// loaded or deleted.
func (r *Router) OnJobChanged(fn func([]gcode.Block)) {
	r.mx.Lock()
	r.listeners = append(r.listeners, fn)
	r.mx.Unlock()
}

// OnSegment registers fn to be called as each segment starts.
func (r *Router) OnSegment(fn func(Segment)) {
	r.mx.Lock()
	r.segments = append(r.segments, fn)
	r.mx.Unlock()
}

func (r *Router) notify(job []gcode.Block) {
	r.mx.Lock()
	listeners := append([]func([]gcode.Block){}, r.listeners...)
	r.mx.Unlock()

	for _, fn := range listeners {
		fn(append([]gcode.Block(nil), job...))
	}
}

func (r *Router) segmentStarted(s Segment) {
	r.mx.Lock()
	listeners := append([]func(Segment){}, r.segments...)
	r.mx.Unlock()

	for _, fn := range listeners {
		fn(s)
	}
}

// InterruptJob asks the running job to stop.
func (r *Router) InterruptJob() {
	r.m.InterruptCurrentJob()
}

// RunJob executes the loaded job and blocks until it ends. An interrupted
// job returns nil.
func (r *Router) RunJob(ctx context.Context) error {
	blocks, err := r.begin()
	if err != nil {
		return err
	}
	return r.run(ctx, blocks)
}

// Start begins executing the loaded job in the background.
func (r *Router) Start(ctx context.Context) error {
	blocks, err := r.begin()
	if err != nil {
		return err
	}
	go func() {
		err := r.run(ctx, blocks)
		if err != nil {
			r.log.Error("job failed", "err", err)
		}
	}()
	return nil
}

func (r *Router) begin() ([]gcode.Block, error) {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.running {
		return nil, ErrJobRunning
	}
	if len(r.job) == 0 {
		return nil, errors.New("no job loaded")
	}
	if r.m.State().Mode != machine.ModeStandby {
		return nil, machine.ErrNotStandby
	}
	r.running = true
	return append([]gcode.Block(nil), r.job...), nil
}

func (r *Router) run(ctx context.Context, blocks []gcode.Block) error {
	defer func() {
		r.mx.Lock()
		r.running = false
		r.mx.Unlock()
	}()

	err := r.m.RunJob(ctx, func(ctx context.Context, j *machine.Job) error {
		e, err := newExecutor(r, j)
		if err != nil {
			return err
		}
		return e.execute(ctx, blocks)
	})
	if errors.Cause(err) == machine.ErrInterrupted {
		return nil
	}
	return err
}
