// Package meshlevel compensates tool heights for an uneven stock surface.
package meshlevel

import (
	"github.com/fogleman/delaunay"
	"github.com/mastercactapus/sled/coord"
	"github.com/pkg/errors"
)

// Surface holds the probed stock surface as triangular patches. Heights are
// relative to the first probe, so a job zeroed on that spot cuts at the
// programmed depth there. A nil Surface is flat.
type Surface struct {
	patches []coord.Triangle
}

// New triangulates probed surface points. Fewer than 3 probes cannot
// describe a plane and give a flat (nil) surface.
func New(probes []coord.Point) (*Surface, error) {
	if len(probes) < 3 {
		return nil, nil
	}

	ref := probes[0].Z
	verts := make([]delaunay.Point, len(probes))
	heights := make(map[delaunay.Point]float64, len(probes))
	for i, p := range probes {
		verts[i] = delaunay.Point{X: p.X, Y: p.Y}
		heights[verts[i]] = p.Z - ref
	}

	tri, err := delaunay.Triangulate(verts)
	if err != nil {
		return nil, errors.Wrap(err, "triangulate surface")
	}
	if len(tri.Triangles) == 0 {
		return nil, errors.New("surface points are collinear")
	}

	vertex := func(i int) coord.Point {
		v := tri.Points[tri.Triangles[i]]
		return coord.Point{X: v.X, Y: v.Y, Z: heights[v]}
	}
	s := &Surface{patches: make([]coord.Triangle, 0, len(tri.Triangles)/3)}
	for i := 0; i+2 < len(tri.Triangles); i += 3 {
		s.patches = append(s.patches, coord.Triangle{A: vertex(i), B: vertex(i + 1), C: vertex(i + 2)})
	}

	return s, nil
}

// Height returns the stock height below (x, y). ok is false outside the
// probed area.
func (s *Surface) Height(x, y float64) (z float64, ok bool) {
	if s == nil {
		return 0, false
	}
	p := coord.Point{X: x, Y: y}
	for _, t := range s.patches {
		if t.Contains(p) {
			return t.Z(x, y), true
		}
	}
	return 0, false
}

// Apply lifts p by the surface height below it. Points outside the probed
// area are unchanged.
func (s *Surface) Apply(p coord.Point) coord.Point {
	if z, ok := s.Height(p.X, p.Y); ok {
		p.Z += z
	}
	return p
}
