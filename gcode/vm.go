package gcode

import (
	"github.com/mastercactapus/sled/coord"
	"github.com/pkg/errors"
)

// UnsupportedCodeError is returned for G or M codes the machine cannot run.
type UnsupportedCodeError struct {
	Code Word
}

func (e UnsupportedCodeError) Error() string {
	return "unsupported code: " + e.Code.String()
}

// Waypoint is a position to move to and the feed rate to use.
type Waypoint struct {
	coord.Point
	FeedMmPerMin float64
}

// VM will track state and interpret gcode.
//
// Positions are absolute millimeters; any omitted axis or feed keeps its
// last value.
type VM struct {
	pos  coord.Point
	feed float64

	// motion is the active motion code, or -1 before the first one
	motion float64
}

// NewVM constructs a VM starting at pos with a default feed rate.
func NewVM(pos coord.Point, feed float64) *VM {
	return &VM{pos: pos, feed: feed, motion: -1}
}

func (vm VM) Position() coord.Point { return vm.pos }
func (vm VM) Feed() float64         { return vm.feed }

func isSupported(g Word) bool {
	switch g.W {
	case 'G':
		switch g.Arg {
		case 0, 1, 21, 90:
			return true
		}
	case 'M':
		switch g.Arg {
		case 2, 6, 30:
			return true
		}
	}
	return false
}

func applyBlock(p coord.Point, b Block) coord.Point {
	for _, g := range b {
		switch g.W {
		case 'X':
			p.X = g.Arg
		case 'Y':
			p.Y = g.Arg
		case 'Z':
			p.Z = g.Arg
		}
	}

	return p
}

// Run executes a block. For motion blocks it returns the resulting
// waypoint and true.
func (vm *VM) Run(b Block) (Waypoint, bool, error) {
	err := b.Validate()
	if err != nil {
		return Waypoint{}, false, err
	}

	codes := b.Codes()
	if len(codes) == 0 && len(b) > 0 {
		// lines without a command may only continue a move or set the feed
		switch b[0].W {
		case 'X', 'Y', 'Z', 'F':
		default:
			return Waypoint{}, false, UnsupportedCodeError{Code: b[0]}
		}
	}

	var motion bool
	for _, g := range codes {
		if !isSupported(g) {
			return Waypoint{}, false, UnsupportedCodeError{Code: g}
		}
		if g.W == 'G' && (g.Arg == 0 || g.Arg == 1) {
			vm.motion = g.Arg
			motion = true
		}
	}

	if ok, f := b.Arg('F'); ok {
		vm.feed = f
	}

	if b.HasAxis() {
		if vm.motion < 0 {
			return Waypoint{}, false, errors.New("axis words without a motion code")
		}
		motion = true
	}
	if !motion {
		return Waypoint{}, false, nil
	}

	vm.pos = applyBlock(vm.pos, b)
	return Waypoint{Point: vm.pos, FeedMmPerMin: vm.feed}, true, nil
}
