package gcode

import (
	"strconv"
	"strings"
)

// Word is a single letter/number pair such as G1 or X10.5.
type Word struct {
	W   byte
	Arg float64
}

// IsAxis reports whether w positions the tool.
func (w Word) IsAxis() bool { return w.W == 'X' || w.W == 'Y' || w.W == 'Z' }

// IsCode reports whether w is a command (G or M) rather than an argument.
func (w Word) IsCode() bool { return w.W == 'G' || w.W == 'M' }

// String formats w with micron resolution and no trailing zeros.
func (w Word) String() string {
	s := strconv.FormatFloat(w.Arg, 'f', 3, 64)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	return string(w.W) + s
}
