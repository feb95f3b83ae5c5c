package router

import (
	"context"
	"time"

	"github.com/felixge/pidctrl"
	"github.com/mastercactapus/sled/coord"
	"github.com/mastercactapus/sled/gcode"
	"github.com/mastercactapus/sled/kinematics"
	"github.com/mastercactapus/sled/machine"
	"github.com/mastercactapus/sled/meshlevel"
	"github.com/pkg/errors"
)

// Segment is a straight move between two waypoints.
type Segment struct {
	Index        int           `json:"index"`
	From         coord.Point   `json:"from"`
	To           coord.Point   `json:"to"`
	FeedMmPerMin float64       `json:"feedMmPerMin"`
	Duration     time.Duration `json:"duration"`
}

var motorNames = [3]string{"a", "b", "z"}

// executor runs one job inside machine.RunJob.
type executor struct {
	r       *Router
	j       *machine.Job
	geo     kinematics.Geometry
	surface *meshlevel.Surface
	feed    float64

	// pids correct the duties of a, b and z; with kp and kd both zero the
	// machine's own duty law tracks the target instead
	pids  [3]*pidctrl.PIDController
	claim bool

	// origin is the user origin at job start; job coordinates are
	// relative to it
	origin coord.Point

	md       machine.Model
	tracking bool
	n        int
}

func newExecutor(r *Router, j *machine.Job) (*executor, error) {
	cfg := r.m.Config()
	surface, err := meshlevel.New(cfg.Surface)
	if err != nil {
		return nil, errors.Wrap(err, "surface mesh")
	}

	e := &executor{
		r:       r,
		j:       j,
		geo:     cfg.Geometry(),
		surface: surface,
		feed:    cfg.Router.DefaultFeedMmPerMin,
		claim:   cfg.Router.KP != 0 || cfg.Router.KD != 0,
	}
	for i := range e.pids {
		e.pids[i] = pidctrl.NewPIDController(cfg.Router.KP, 0, cfg.Router.KD)
		e.pids[i].Set(0)
	}
	return e, nil
}

func (e *executor) execute(ctx context.Context, blocks []gcode.Block) error {
	md, err := e.j.Sync(ctx)
	if err != nil {
		return err
	}
	e.md = md

	start, ok := md.Position()
	if !ok {
		return errors.Wrap(machine.ErrPositionUnknown, "start job")
	}
	if e.claim {
		e.j.ClaimDuties()
	}
	e.origin = md.UserOrigin

	vm := gcode.NewVM(start.Sub(e.origin), e.feed)
	queue := []gcode.Waypoint{{Point: start, FeedMmPerMin: vm.Feed()}}
	for _, b := range blocks {
		wp, ok, err := vm.Run(b)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		wp.Point = wp.Point.Add(e.origin)
		queue = append(queue, wp)
		for len(queue) >= 2 {
			err = e.segment(ctx, queue[0].Point, queue[1])
			if err != nil {
				return err
			}
			queue = queue[1:]
		}
	}

	return nil
}

// segment moves from one waypoint to the next, setting a new interpolated
// target every tick until the segment's time is up.
func (e *executor) segment(ctx context.Context, from coord.Point, to gcode.Waypoint) error {
	s := Segment{
		Index:        e.n,
		From:         from,
		To:           to.Point,
		FeedMmPerMin: to.FeedMmPerMin,
	}
	e.n++

	dist := from.TravelTo(to.Point)
	if dist == 0 {
		e.r.segmentStarted(s)
		return nil
	}
	if to.FeedMmPerMin <= 0 {
		return errors.Errorf("invalid feed rate: %g", to.FeedMmPerMin)
	}

	s.Duration = time.Duration(60000 * dist / to.FeedMmPerMin * float64(time.Millisecond))
	e.r.log.Debug("segment", "index", s.Index, "from", from, "to", to.Point, "duration", s.Duration)
	e.r.segmentStarted(s)

	start := e.r.now()
	for {
		elapsed := e.r.now().Sub(start)
		if elapsed >= s.Duration {
			return nil
		}

		target := from.Lerp(to.Point, float64(elapsed)/float64(s.Duration))
		target = e.surface.Apply(target)
		e.j.SetTarget(target)

		err := e.track(target)
		if err != nil {
			return err
		}

		e.md, err = e.j.Sync(ctx)
		if err != nil {
			return err
		}
	}
}

// track applies the PD correction toward target using the last snapshot.
func (e *executor) track(target coord.Point) error {
	pos, ok := e.md.Position()
	if !ok {
		return errors.Wrap(machine.ErrPositionUnknown, "track target")
	}
	if !e.claim {
		return nil
	}

	ta, tb := e.geo.ChainLengths(target)
	ca, cb := e.geo.ChainLengths(pos)
	corr := e.correct([3]float64{ta - ca, tb - cb, pos.Z - target.Z})
	for i, name := range motorNames {
		e.j.SetDuty(name, e.md.Motors[name].Duty+corr[i])
	}
	return nil
}

// correct returns the duty corrections for the a, b and z errors. Errors
// are fed as measurements against a zero setpoint, one step per tick.
func (e *executor) correct(errs [3]float64) (corr [3]float64) {
	// the first update of a job has no elapsed time, so no derivative kick
	dt := time.Second
	if !e.tracking {
		dt = 0
		e.tracking = true
	}
	for i, pid := range e.pids {
		corr[i] = pid.UpdateDuration(-errs[i], dt)
	}
	return corr
}
