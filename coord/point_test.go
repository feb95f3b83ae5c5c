package coord

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoint_Add(t *testing.T) {
	a := Point{X: 1, Y: 2, Z: 3}
	b := Point{X: 4, Y: 5, Z: 6}

	assert.Equal(t, Point{X: 5, Y: 7, Z: 9}, a.Add(b))
	assert.Equal(t, Point{X: -3, Y: -3, Z: -3}, a.Sub(b))
}

func TestPoint_DistanceXY(t *testing.T) {
	dist := Point{X: 1, Y: 2, Z: 3}.DistanceXY(Point{X: 4, Y: 5})
	assert.InEpsilon(t, 4.24264, dist, .01)
}

func TestPoint_TravelTo(t *testing.T) {
	a := Point{X: 10, Y: 10, Z: 5}

	assert.Equal(t, 5.0, a.TravelTo(Point{X: 10, Y: 10, Z: -0}))
	assert.Equal(t, 0.0, a.TravelTo(a))
	assert.Equal(t, 5.0, a.TravelTo(Point{X: 13, Y: 14, Z: 100}))
}

func TestPoint_Lerp(t *testing.T) {
	var a Point //zero
	b := Point{X: 10, Y: 10, Z: 10}

	assert.Equal(t, Point{X: 5, Y: 5, Z: 5}, a.Lerp(b, 0.5))
	assert.Equal(t, b, a.Lerp(b, 1))

	a = Point{X: 10, Y: 10, Z: 10}
	b = Point{X: 20, Y: 20, Z: 20}
	assert.Equal(t, Point{X: 12.5, Y: 12.5, Z: 12.5}, a.Lerp(b, 0.25))
	assert.Equal(t, a, a.Lerp(b, 0))
}

func TestPoint_IsFinite(t *testing.T) {
	assert.True(t, Point{X: 1}.IsFinite())
	assert.False(t, Point{Y: math.NaN()}.IsFinite())
	assert.False(t, Point{Z: math.Inf(-1)}.IsFinite())
}
