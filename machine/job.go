package machine

import (
	"context"

	"github.com/mastercactapus/sled/coord"
	"github.com/pkg/errors"
)

var (
	// ErrNotStandby is returned when an operation requires STANDBY mode.
	ErrNotStandby = errors.New("machine not in standby")

	// ErrInterrupted is returned from Job.Sync once the job has been asked
	// to stop. It signals a clean stop rather than a failure.
	ErrInterrupted = errors.New("job interrupted")
)

type syncResult struct {
	model Model
	err   error
}

// Job is the handle given to a function run by RunJob.
type Job struct {
	m *Machine
}

// RunJob switches to JOB mode and runs fn. Whatever fn returns, the chain
// and Z duties are zeroed, the target is cleared and the machine returns
// to STANDBY before RunJob returns.
func (m *Machine) RunJob(ctx context.Context, fn func(context.Context, *Job) error) (err error) {
	m.mx.Lock()
	if m.model.Mode != ModeStandby || m.job {
		m.mx.Unlock()
		return ErrNotStandby
	}
	for group := range m.jogs {
		m.stopJog(group)
	}
	m.model.Mode = ModeJob
	m.job = true
	m.mx.Unlock()

	m.log.Info("job started")
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("job panic: %v", r)
		}

		m.mx.Lock()
		for _, name := range motorNames {
			m.model.Motors[name].Duty = 0
		}
		m.model.Target = nil
		m.model.JobInterrupt = false
		m.model.Mode = ModeStandby
		m.job = false
		m.claimed = false
		m.mx.Unlock()

		switch {
		case err == nil:
			m.log.Info("job finished")
		case errors.Cause(err) == ErrInterrupted:
			m.log.Info("job interrupted")
		default:
			m.log.Error("job failed", "err", err)
		}
	}()

	return fn(ctx, &Job{m: m})
}

// InterruptCurrentJob asks the running job to stop at the next tick. It
// does nothing when no job is running.
func (m *Machine) InterruptCurrentJob() {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.model.Mode == ModeJob {
		m.model.JobInterrupt = true
	}
}

// Sync waits for the next tick and returns the Model as of that tick, or
// ErrInterrupted if the job has been asked to stop.
func (j *Job) Sync(ctx context.Context) (Model, error) {
	ch := make(chan syncResult, 1)
	j.m.mx.Lock()
	j.m.waiters = append(j.m.waiters, ch)
	j.m.mx.Unlock()

	select {
	case <-ctx.Done():
		return Model{}, ctx.Err()
	case res := <-ch:
		return res.model, res.err
	}
}

// resolve releases every task blocked in Sync.
func (m *Machine) resolve() {
	waiters := m.waiters
	m.waiters = nil
	for _, ch := range waiters {
		if m.model.JobInterrupt {
			ch <- syncResult{err: ErrInterrupted}
			continue
		}
		ch <- syncResult{model: m.model.Clone()}
	}
}

// active reports whether the job may still change the Model.
func (j *Job) active() bool {
	return j.m.job && j.m.model.Mode == ModeJob && !j.m.model.JobInterrupt
}

// ClaimDuties stops the control loop from overwriting motor duties for the
// rest of the job; the job becomes responsible for them.
func (j *Job) ClaimDuties() {
	j.m.mx.Lock()
	defer j.m.mx.Unlock()
	if j.active() {
		j.m.claimed = true
	}
}

// SetTarget sets the position the machine should track.
func (j *Job) SetTarget(p coord.Point) {
	j.m.mx.Lock()
	defer j.m.mx.Unlock()
	if j.active() {
		j.m.model.Target = &p
	}
}

// SetDuty sets the duty of a motor, clamped to [-1, 1].
func (j *Job) SetDuty(name string, duty float64) {
	j.m.mx.Lock()
	defer j.m.mx.Unlock()
	mo, ok := j.m.model.Motors[name]
	if ok && j.active() {
		mo.Duty = clampDuty(duty)
	}
}

// Waiting reports whether a job is blocked in Sync.
func (m *Machine) Waiting() bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	return len(m.waiters) > 0
}
