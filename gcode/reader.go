package gcode

import "io"

// Reader yields blocks one at a time until io.EOF.
type Reader interface {
	Read() (Block, error)
}

var _ Reader = (*Parser)(nil)

// Blocks reads from an in-memory job, consuming it.
type Blocks []Block

func (b *Blocks) Read() (Block, error) {
	if len(*b) == 0 {
		return nil, io.EOF
	}

	bl := (*b)[0]
	*b = (*b)[1:]
	return bl, nil
}
