package gcode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_Read(t *testing.T) {
	blocks, err := Parse(strings.NewReader(`%
; header comment
N10 G21 (metric)
g90

G0 X0 Y0 F1000 ; rapid
G1X100.5Y-.5
n20 M30
%`))
	require.NoError(t, err)

	require.Len(t, blocks, 5)
	assert.Equal(t, Block{{W: 'G', Arg: 21}}, blocks[0])
	assert.Equal(t, Block{{W: 'G', Arg: 90}}, blocks[1])
	assert.Equal(t, Block{{W: 'G', Arg: 0}, {W: 'X', Arg: 0}, {W: 'Y', Arg: 0}, {W: 'F', Arg: 1000}}, blocks[2])
	assert.Equal(t, Block{{W: 'G', Arg: 1}, {W: 'X', Arg: 100.5}, {W: 'Y', Arg: -0.5}}, blocks[3])
	assert.Equal(t, "M30", blocks[4].String())
}

func TestParser_Invalid(t *testing.T) {
	_, err := Parse(strings.NewReader("G1 X10\nG1 X#1\n"))
	assert.EqualError(t, err, "line 2: invalid or unhandled line: G1X#1")

	_, err = Parse(strings.NewReader("G1 X1.2.3"))
	assert.Error(t, err)
}

func TestBlock_Validate(t *testing.T) {
	assert.NoError(t, MustParse("G0 G90 X1")[0].Validate())
	assert.Error(t, MustParse("G0 X1 X2")[0].Validate())
	assert.Error(t, Block{{W: '#', Arg: 1}}.Validate())
}

func TestWord_String(t *testing.T) {
	assert.Equal(t, "X1.25", Word{W: 'X', Arg: 1.25}.String())
	assert.Equal(t, "G1", Word{W: 'G', Arg: 1}.String())
	assert.Equal(t, "Y-0.001", Word{W: 'Y', Arg: -0.0012}.String())
}
