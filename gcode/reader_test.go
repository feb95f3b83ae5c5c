package gcode

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlocks_Read(t *testing.T) {
	job := Blocks(MustParse("G1 X1\nM2"))
	gr := &job

	b, err := gr.Read()
	assert.NoError(t, err)
	assert.Equal(t, Block{{W: 'G', Arg: 1}, {W: 'X', Arg: 1}}, b)

	b, err = gr.Read()
	assert.NoError(t, err)
	assert.Equal(t, Block{{W: 'M', Arg: 2}}, b)

	b, err = gr.Read()
	assert.Equal(t, io.EOF, err)
	assert.Nil(t, b)
}
