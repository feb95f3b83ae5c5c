package config

import (
	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/pkg/errors"
)

// schema constrains configuration files and patches. All fields are
// optional since documents are merged over the defaults.
const schema = `
#Motor: {
	address?:      int & >=0 & <128
	encoderPpr?:   number & >0
	gearRatio?:    number & >0
	mmPerRev?:     number & >0
	stepsPerMm?:   number & >=0
	offsetToDuty?: number & >=0
	maxRpm?:       number & >=0
	virtual?: {
		steps?:           int
		motorPolarity?:   -1 | 1
		encoderPolarity?: -1 | 1
	}
}

#Point: {
	xMm: number
	yMm: number
	zMm: number
}

driver?: "virtual" | "i2c"
bus?: {
	kind?:          "periph" | "serial"
	name?:          string
	port?:          string
	baud?:          int & >0
	resetPin?:      string
	resetSettleMs?: int & >=0
	retries?:       int & >=0
}
tickMs?: int & >0
beam?: {
	motorsDistanceMm?:    number & >0
	motorsToWorkspaceMm?: number & >=0
}
workspace?: {
	widthMm?:  number & >0
	heightMm?: number & >0
}
motors?: [string]: #Motor
relays?: [string]: {
	address?: int & >=0 & <128
}
dutyLaw?: {
	exponent?:     number & >0
	damping?:      number & >=0
	chatterDelta?: number & >=0
	deadbandMm?:   number & >=0
}
router?: {
	kp?:                  number
	kd?:                  number
	defaultFeedMmPerMin?: number & >0
}
manual?: {
	jog?: [string]: {
		min?:        number & >=0 & <=1
		max?:        number & >=0 & <=1
		cuttingMax?: number & >=0 & <=1
		step?:       number & >=0 & <=1
	}
}
surface?: [...#Point]
lastPosition?: {
	xMm?: number | null
	yMm?: number | null
	zMm?: number | null
}
`

// Validate checks a JSON configuration document against the schema.
func Validate(data []byte) error {
	ctx := cuecontext.New()
	s := ctx.CompileString("close({"+schema+"})", cue.Filename("schema.cue"))
	if err := s.Err(); err != nil {
		return errors.Wrap(err, "compile schema")
	}

	v := ctx.CompileBytes(data, cue.Filename("config.json"))
	if err := v.Err(); err != nil {
		return errors.Wrap(err, "parse config")
	}

	err := s.Unify(v).Validate(cue.Concrete(true))
	if err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}
