package coord

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTriangle_Z(t *testing.T) {
	tri := Triangle{
		A: Point{X: 0, Y: 0, Z: 0},
		B: Point{X: 10, Y: 0, Z: 0},
		C: Point{X: 5, Y: 5, Z: 5},
	}

	assert.Equal(t, 0.0, tri.Z(0, 0))
	assert.Equal(t, 0.0, tri.Z(5, 0))
	assert.Equal(t, 5.0, tri.Z(5, 5))
	assert.Equal(t, 2.5, tri.Z(2.5, 2.5))
}

func TestTriangle_Contains(t *testing.T) {
	tri := Triangle{
		A: Point{X: 0, Y: 0},
		B: Point{X: 0, Y: 10},
		C: Point{X: 10, Y: 0},
	}

	assert.True(t, tri.Contains(Point{X: 1, Y: 1}))
	assert.True(t, tri.Contains(Point{X: 5, Y: 5}), "edge")
	assert.True(t, tri.Contains(Point{X: 0, Y: 0}), "vertex")
	assert.False(t, tri.Contains(Point{X: 6, Y: 6}))
	assert.False(t, tri.Contains(Point{X: -1, Y: 1}))
}

func TestTriangle_ContainsWinding(t *testing.T) {
	tri := Triangle{
		A: Point{X: 0, Y: 0},
		B: Point{X: 10, Y: 0},
		C: Point{X: 0, Y: 10},
	}
	assert.True(t, tri.Contains(Point{X: 2, Y: 3}))
	assert.False(t, tri.Contains(Point{X: 9, Y: 9}))
}
