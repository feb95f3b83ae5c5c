package router

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mastercactapus/sled/config"
	"github.com/mastercactapus/sled/driver"
	"github.com/mastercactapus/sled/gcode"
	"github.com/mastercactapus/sled/machine"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct {
	mx sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.t
}

func (c *fakeClock) Add(d time.Duration) {
	c.mx.Lock()
	c.t = c.t.Add(d)
	c.mx.Unlock()
}

type rig struct {
	clock *fakeClock
	m     *machine.Machine
	r     *Router
}

// newRig builds a calibrated machine on the virtual driver with one step
// per millimeter on every axis.
func newRig(t *testing.T, kp, kd float64) *rig {
	t.Helper()
	cfg := config.Defaults()
	for name, mc := range cfg.Motors {
		mc.StepsPerMm = 1
		mc.MaxRPM = 60
		cfg.Motors[name] = mc
	}
	cfg.Router.KP = kp
	cfg.Router.KD = kd

	clock := &fakeClock{t: time.Unix(1000, 0)}
	m, err := machine.New(cfg, config.NewStore(cfg, "", testLogger()), driver.NewVirtual(clock.Now), testLogger())
	require.NoError(t, err)

	m.Tick()
	require.NoError(t, m.CalibrateSled(0, 0))
	require.NoError(t, m.SetSpindleReference(0))
	m.Tick()
	_, ok := m.State().Position()
	require.True(t, ok)

	r := New(m, testLogger())
	r.now = clock.Now
	return &rig{clock: clock, m: m, r: r}
}

// drive ticks the machine every time the job waits, until RunJob returns.
func (rg *rig) drive(t *testing.T, step time.Duration, fn func(machine.Model)) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- rg.r.RunJob(context.Background()) }()

	deadline := time.After(10 * time.Second)
	for {
		select {
		case err := <-done:
			return err
		case <-deadline:
			t.Fatal("job did not finish")
		default:
		}

		if !rg.m.Waiting() {
			time.Sleep(time.Millisecond)
			continue
		}
		if fn != nil {
			fn(rg.m.State())
		}
		rg.clock.Add(step)
		rg.m.Tick()
	}
}

func TestRouter_RunJob(t *testing.T) {
	rg := newRig(t, 0, 0)

	var mx sync.Mutex
	var segs []Segment
	rg.r.OnSegment(func(s Segment) {
		mx.Lock()
		segs = append(segs, s)
		mx.Unlock()
	})

	require.NoError(t, rg.r.LoadJobFromStream(strings.NewReader("G21\nG90\nG0 X0 Y0 F1000\nG1 X100 Y0 F600\n")))

	var xs []float64
	err := rg.drive(t, 100*time.Millisecond, func(md machine.Model) {
		if md.Target != nil {
			xs = append(xs, md.Target.X)
		}
	})
	require.NoError(t, err)

	mx.Lock()
	defer mx.Unlock()
	require.Len(t, segs, 2)
	assert.Equal(t, time.Duration(0), segs[0].Duration)
	assert.InDelta(t, 10000, float64(segs[1].Duration)/float64(time.Millisecond), 0.001)
	assert.Equal(t, 600.0, segs[1].FeedMmPerMin)

	require.Len(t, xs, 100)
	assert.InDelta(t, 0, xs[0], 0.001)
	for i := 1; i < len(xs); i++ {
		assert.Greater(t, xs[i], xs[i-1], "target %d", i)
		assert.LessOrEqual(t, xs[i], 100.0)
	}
	assert.InDelta(t, 99, xs[len(xs)-1], 0.001)

	st := rg.m.State()
	assert.Equal(t, machine.ModeStandby, st.Mode)
	assert.Nil(t, st.Target)
	assert.False(t, rg.r.Running())
}

func TestRouter_RunJobPD(t *testing.T) {
	rg := newRig(t, 0.02, 0.05)
	require.NoError(t, rg.r.LoadJobFromStream(strings.NewReader("G1 X10 F600")))

	var moved bool
	err := rg.drive(t, 100*time.Millisecond, func(md machine.Model) {
		if md.Motors["a"].Duty != 0 {
			moved = true
		}
	})
	require.NoError(t, err)
	assert.True(t, moved)
	for name, mo := range rg.m.State().Motors {
		assert.Equal(t, 0.0, mo.Duty, name)
	}
}

func TestRouter_Interrupt(t *testing.T) {
	rg := newRig(t, 0, 0)
	require.NoError(t, rg.r.LoadJobFromStream(strings.NewReader("G1 X100 F60")))

	var n int
	err := rg.drive(t, 100*time.Millisecond, func(md machine.Model) {
		n++
		if n == 5 {
			assert.Equal(t, machine.ModeJob, md.Mode)
			assert.Equal(t, ErrJobRunning, rg.r.LoadJobFromStream(strings.NewReader("M2")))
			assert.Equal(t, ErrJobRunning, rg.r.DeleteJob())
			rg.r.InterruptJob()
		}
	})
	assert.NoError(t, err)
	assert.Equal(t, 5, n)

	st := rg.m.State()
	assert.Equal(t, machine.ModeStandby, st.Mode)
	assert.False(t, st.JobInterrupt)
	assert.Len(t, rg.r.Job(), 1)
}

func TestRouter_Unsupported(t *testing.T) {
	for code, job := range map[string]string{
		"G2":     "G1 X1 F600\nG2 X5 Y5 I1 J1\nG1 X2",
		"T1":     "G1 X1 F600\nT1\nG1 X2",
		"S12000": "G1 X1 F600\nS12000\nG1 X2",
	} {
		t.Run(code, func(t *testing.T) {
			rg := newRig(t, 0, 0)
			require.NoError(t, rg.r.LoadJobFromStream(strings.NewReader(job)))

			var segs int
			rg.r.OnSegment(func(Segment) { segs++ })
			err := rg.drive(t, time.Second, nil)

			var uerr gcode.UnsupportedCodeError
			require.True(t, errors.As(err, &uerr))
			assert.Equal(t, code, uerr.Code.String())
			assert.Equal(t, 1, segs)
			assert.Equal(t, machine.ModeStandby, rg.m.State().Mode)
		})
	}
}

func TestRouter_InvalidFeed(t *testing.T) {
	rg := newRig(t, 0, 0)
	require.NoError(t, rg.r.LoadJobFromStream(strings.NewReader("G1 X10 F0")))

	err := rg.drive(t, time.Second, nil)
	assert.ErrorContains(t, err, "invalid feed rate")
}

func TestRouter_Begin(t *testing.T) {
	rg := newRig(t, 0, 0)
	assert.EqualError(t, rg.r.RunJob(context.Background()), "no job loaded")

	require.NoError(t, rg.r.LoadJobFromStream(strings.NewReader("G1 X10 F600")))
	done := make(chan error, 1)
	err := rg.m.RunJob(context.Background(), func(ctx context.Context, j *machine.Job) error {
		done <- rg.r.RunJob(ctx)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, machine.ErrNotStandby, <-done)
}

func TestRouter_Job(t *testing.T) {
	rg := newRig(t, 0, 0)

	var mx sync.Mutex
	var seen [][]gcode.Block
	rg.r.OnJobChanged(func(b []gcode.Block) {
		mx.Lock()
		seen = append(seen, b)
		mx.Unlock()
	})

	err := rg.r.LoadJobFromStream(strings.NewReader("N10 g0 x1 ; rapid\n%\nG1 Y2 (feed) F300\n"))
	require.NoError(t, err)
	assert.Len(t, rg.r.Job(), 2)

	text, err := io.ReadAll(rg.r.JobText())
	require.NoError(t, err)
	assert.Equal(t, "G0X1\nG1Y2F300\n", string(text))

	assert.Error(t, rg.r.LoadJobFromStream(strings.NewReader("G1 X1 X2 ?")))
	assert.Len(t, rg.r.Job(), 2)

	require.NoError(t, rg.r.DeleteJob())
	assert.Empty(t, rg.r.Job())

	mx.Lock()
	defer mx.Unlock()
	require.Len(t, seen, 2)
	assert.Len(t, seen[0], 2)
	assert.Empty(t, seen[1])
}

func TestExecutor_Correct(t *testing.T) {
	rg := newRig(t, 0.5, 2)
	e, err := newExecutor(rg.r, nil)
	require.NoError(t, err)
	assert.True(t, e.claim)

	// no derivative on the first step
	c := e.correct([3]float64{1, -2, 0})
	assert.InDeltaSlice(t, []float64{0.5, -1, 0}, c[:], 1e-9)

	c = e.correct([3]float64{1.5, -2, 0.25})
	assert.InDeltaSlice(t, []float64{0.75 + 2*0.5, -1, 0.125 + 2*0.25}, c[:], 1e-9)

	e, err = newExecutor(newRig(t, 0, 0).r, nil)
	require.NoError(t, err)
	assert.False(t, e.claim)
}

func TestRouter_UserOrigin(t *testing.T) {
	rg := newRig(t, 0, 0)
	require.NoError(t, rg.m.CalibrateSled(50, 20))
	rg.m.Tick()
	require.NoError(t, rg.m.ResetUserOrigin())

	var mx sync.Mutex
	var segs []Segment
	rg.r.OnSegment(func(s Segment) {
		mx.Lock()
		segs = append(segs, s)
		mx.Unlock()
	})
	require.NoError(t, rg.r.LoadJobFromStream(strings.NewReader("G1 X10 F600")))
	require.NoError(t, rg.drive(t, time.Second, nil))

	mx.Lock()
	defer mx.Unlock()
	require.Len(t, segs, 1)
	assert.InDelta(t, 50, segs[0].From.X, 0.001)
	assert.InDelta(t, 60, segs[0].To.X, 0.001)
	assert.InDelta(t, 20, segs[0].To.Y, 0.001)
}
