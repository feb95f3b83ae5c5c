package machine

import (
	"math"

	"github.com/mastercactapus/sled/config"
)

// DutyLaw converts a tracking error into a motor duty.
//
// The constants are empirical and come from configuration.
type DutyLaw struct {
	// Exponent compresses large errors while keeping small errors
	// responsive.
	Exponent float64

	// Damping is the fraction of the previous offset subtracted from the
	// current one.
	Damping float64

	// ChatterDelta is the largest duty change allowed when reversing.
	ChatterDelta float64

	// DeadbandMm disables drive for errors at or below it. Zero disables
	// the deadband.
	DeadbandMm float64
}

func NewDutyLaw(cfg config.DutyLaw) DutyLaw {
	return DutyLaw{
		Exponent:     cfg.Exponent,
		Damping:      cfg.Damping,
		ChatterDelta: cfg.ChatterDelta,
		DeadbandMm:   cfg.DeadbandMm,
	}
}

// Duty returns the new duty for offset. The result is always in [-1, 1].
func (l DutyLaw) Duty(offset, prevOffset, prevDuty, offsetToDuty float64) float64 {
	if l.DeadbandMm > 0 && math.Abs(offset) <= l.DeadbandMm {
		return 0
	}

	speed := (offset - prevOffset*l.Damping) * offsetToDuty
	duty := math.Copysign(math.Min(math.Abs(speed), 1), speed)
	duty = math.Copysign(math.Pow(math.Abs(duty), l.Exponent), duty)

	if math.Abs(duty-prevDuty) > l.ChatterDelta && sign(duty) == -sign(prevDuty) {
		duty = 0
	}
	if math.IsNaN(duty) {
		return 0
	}
	return clampDuty(duty)
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func clampDuty(d float64) float64 {
	if math.IsNaN(d) {
		return 0
	}
	return math.Max(-1, math.Min(1, d))
}
