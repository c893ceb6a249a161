// Package kaleido draws the six-way kaleidoscope and runs the throttled
// render loop that feeds it.
package kaleido

import (
	"image"
	"math"

	"golang.org/x/image/math/f64"

	"github.com/ayusman/kaleido/internal/detector"
)

// Slices is the number of mirrored wedges per frame.
const Slices = 6

// SliceAngle is the angular width of one wedge in radians.
const SliceAngle = 2 * math.Pi / Slices

// Point is a position in pixels.
type Point struct {
	X, Y float64
}

// Radius returns the wedge radius for a canvas of w x h at the given zoom.
func Radius(w, h int, zoom float64) float64 {
	return float64(min(w, h)) / 2 * zoom
}

// MapLandmark maps a normalized landmark to pixel space centered on the
// canvas: (0.5, 0.5) lands on the origin. The image and canvas aspect ratios
// are assumed equal; no correction is applied.
func MapLandmark(l detector.Landmark, w, h int) Point {
	return Point{
		X: (l.X - 0.5) * float64(w),
		Y: (l.Y - 0.5) * float64(h),
	}
}

// Wedge returns the clip triangle of one slice in slice-local coordinates:
// the origin and the two points at +-SliceAngle/2 on the circle of radius r.
func Wedge(r float64) [3]Point {
	half := SliceAngle / 2
	return [3]Point{
		{0, 0},
		{r * math.Cos(half), r * math.Sin(half)},
		{r * math.Cos(-half), r * math.Sin(-half)},
	}
}

// Transform is a 2D affine transform stored row-major as
// | A B C |
// | D E F |
type Transform struct {
	A, B, C float64
	D, E, F float64
}

// Identity is the identity transform.
var Identity = Transform{A: 1, E: 1}

// Translate returns t followed by a translation of (dx, dy).
func (t Transform) Translate(dx, dy float64) Transform {
	t.C += dx
	t.F += dy
	return t
}

// Apply transforms p.
func (t Transform) Apply(p Point) Point {
	return Point{
		X: t.A*p.X + t.B*p.Y + t.C,
		Y: t.D*p.X + t.E*p.Y + t.F,
	}
}

// Then returns the transform that applies t first and u second.
func (t Transform) Then(u Transform) Transform {
	return Transform{
		A: u.A*t.A + u.B*t.D,
		B: u.A*t.B + u.B*t.E,
		C: u.A*t.C + u.B*t.F + u.C,
		D: u.D*t.A + u.E*t.D,
		E: u.D*t.B + u.E*t.E,
		F: u.D*t.C + u.E*t.F + u.F,
	}
}

// Aff3 converts t to the matrix type used by golang.org/x/image/draw.
func (t Transform) Aff3() f64.Aff3 {
	return f64.Aff3{t.A, t.B, t.C, t.D, t.E, t.F}
}

// SliceTransform maps slice-local coordinates of slice i to canvas pixels:
// rotate by i*SliceAngle, then move the origin to the canvas center.
func SliceTransform(i, w, h int) Transform {
	theta := float64(i) * SliceAngle
	sin, cos := math.Sincos(theta)
	return Transform{
		A: cos, B: -sin, C: float64(w) / 2,
		D: sin, E: cos, F: float64(h) / 2,
	}
}

// bounds returns the smallest integer rectangle containing pts.
func bounds(pts []Point) image.Rectangle {
	if len(pts) == 0 {
		return image.Rectangle{}
	}
	minX, minY := pts[0].X, pts[0].Y
	maxX, maxY := minX, minY
	for _, p := range pts[1:] {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return image.Rect(
		int(math.Floor(minX)), int(math.Floor(minY)),
		int(math.Ceil(maxX)), int(math.Ceil(maxY)),
	)
}
