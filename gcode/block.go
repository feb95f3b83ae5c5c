package gcode

import (
	"strings"

	"github.com/pkg/errors"
)

// Block is one line of G-code.
type Block []Word

func (b Block) Arg(w byte) (bool, float64) {
	for _, g := range b {
		if g.W == w {
			return true, g.Arg
		}
	}
	return false, 0
}

// Codes returns the G and M words of the block in order.
func (b Block) Codes() []Word {
	var res []Word
	for _, g := range b {
		if g.IsCode() {
			res = append(res, g)
		}
	}
	return res
}

func (b Block) HasAxis() bool {
	for _, g := range b {
		if g.IsAxis() {
			return true
		}
	}
	return false
}

func (b Block) Clone() Block {
	c := make(Block, len(b))
	copy(c, b)
	return c
}

func (b Block) Validate() error {
	var seen [256]bool
	for _, g := range b {
		if g.W < 'A' || g.W > 'Z' {
			return errors.Errorf("invalid word letter %q", g.W)
		}
		if !g.IsCode() && seen[g.W] {
			return errors.Errorf("word %c was repeated in a block", g.W)
		}
		seen[g.W] = true
	}
	return nil
}

func (b Block) String() string {
	var sb strings.Builder
	for _, g := range b {
		sb.WriteString(g.String())
	}
	return sb.String()
}
