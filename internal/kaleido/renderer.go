package kaleido

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/vector"

	"github.com/ayusman/kaleido/internal/detector"
)

// overlayAlpha is 0.7 opacity.
var overlayAlpha = uint8(math.Round(0.7 * 255))

// Overlay fill colors.
var (
	FaceFill  = color.NRGBA{R: 255, G: 20, B: 147, A: overlayAlpha}
	EyeFill   = color.NRGBA{R: 255, G: 165, B: 0, A: overlayAlpha}
	HandFills = [2]color.NRGBA{
		{R: 0, G: 255, B: 255, A: overlayAlpha},
		{R: 50, G: 205, B: 50, A: overlayAlpha},
	}
)

// HandFill returns the fill color for the hand at index i. Colors alternate
// by index, not by hand identity.
func HandFill(i int) color.NRGBA {
	return HandFills[i%len(HandFills)]
}

// Scene is everything one redraw reads. Nil results draw nothing for that
// category.
type Scene struct {
	Frame *image.RGBA
	Faces *detector.FaceResult
	Hands *detector.HandResult
	Zoom  float64
}

// polygon is a closed, filled shape in canvas-centered coordinates.
type polygon struct {
	points []Point
	fill   color.NRGBA
}

// Renderer draws scenes onto a canvas. It keeps scratch buffers between
// calls and must not be used from more than one goroutine at a time.
type Renderer struct {
	raster  vector.Rasterizer
	layer   []uint8
	mask    []uint8
	scratch []polygon
}

// NewRenderer creates a Renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render draws scene onto dst, whose bounds are the canvas:
//  1. clear to opaque black
//  2. for each of the Slices wedges, rotate by i*SliceAngle about the canvas
//     center, clip to the wedge, draw the frame centered at native size, then
//     the face outline, eyes and hands
//
// Landmarks map to the canvas with MapLandmark before the slice rotation.
func (r *Renderer) Render(dst *image.RGBA, scene Scene) {
	canvas := dst.Bounds()
	draw.Draw(dst, canvas, image.Black, image.Point{}, draw.Src)

	w, h := canvas.Dx(), canvas.Dy()
	radius := Radius(w, h, scene.Zoom)
	if w == 0 || h == 0 || !(radius > 0) {
		return
	}

	polys := r.overlays(scene, w, h)
	wedge := Wedge(radius)

	for i := 0; i < Slices; i++ {
		t := SliceTransform(i, w, h).Translate(float64(canvas.Min.X), float64(canvas.Min.Y))
		r.drawSlice(dst, t, wedge, scene.Frame, polys)
	}
}

// overlays collects the polygons of every face and hand in draw order.
func (r *Renderer) overlays(scene Scene, w, h int) []polygon {
	polys := r.scratch[:0]

	if scene.Faces != nil {
		for _, face := range scene.Faces.Faces {
			for _, part := range []struct {
				indices []int
				fill    color.NRGBA
			}{
				{detector.FaceOutline, FaceFill},
				{detector.LeftEye, EyeFill},
				{detector.RightEye, EyeFill},
			} {
				// A malformed mesh skips the shape rather than the frame
				pts, ok := face.Select(part.indices)
				if !ok {
					continue
				}
				polys = append(polys, polygon{points: mapAll(pts, w, h), fill: part.fill})
			}
		}
	}

	if scene.Hands != nil {
		for i, hand := range scene.Hands.Hands {
			if len(hand) < 3 {
				continue
			}
			polys = append(polys, polygon{points: mapAll(hand, w, h), fill: HandFill(i)})
		}
	}

	r.scratch = polys
	return polys
}

func mapAll(set detector.LandmarkSet, w, h int) []Point {
	pts := make([]Point, len(set))
	for i, l := range set {
		pts[i] = MapLandmark(l, w, h)
	}
	return pts
}

// drawSlice renders one wedge. Work happens in a layer covering only the
// wedge's bounding box, which is then composited through the wedge mask.
func (r *Renderer) drawSlice(dst *image.RGBA, t Transform, wedge [3]Point, frame *image.RGBA, polys []polygon) {
	var clip [3]Point
	for i, p := range wedge {
		clip[i] = t.Apply(p)
	}
	rect := bounds(clip[:]).Intersect(dst.Bounds())
	if rect.Empty() {
		return
	}

	// Layer space is canvas space shifted so rect.Min is the origin
	toLayer := t.Translate(-float64(rect.Min.X), -float64(rect.Min.Y))
	offset := Point{X: float64(rect.Min.X), Y: float64(rect.Min.Y)}

	mask := r.alphaBuffer(rect.Dx(), rect.Dy())
	r.fillPath(mask, clip[:], offset, image.Opaque)

	layer := r.rgbaBuffer(rect.Dx(), rect.Dy())
	if frame != nil {
		fb := frame.Bounds()
		// The frame's center sits on the slice origin
		s2d := Transform{A: 1, E: 1, C: -float64(fb.Min.X) - float64(fb.Dx())/2, F: -float64(fb.Min.Y) - float64(fb.Dy())/2}.Then(toLayer)
		draw.ApproxBiLinear.Transform(layer, s2d.Aff3(), frame, fb, draw.Src, nil)
	}

	for _, p := range polys {
		pts := make([]Point, len(p.points))
		for i, q := range p.points {
			pts[i] = toLayer.Apply(q)
		}
		r.fillPath(layer, pts, Point{}, image.NewUniform(p.fill))
	}

	draw.DrawMask(dst, rect, layer, image.Point{}, mask, image.Point{}, draw.Over)
}

// fillPath fills the closed path pts, shifted by -offset, into img using the
// nonzero winding rule.
func (r *Renderer) fillPath(img draw.Image, pts []Point, offset Point, src image.Image) {
	if len(pts) < 3 {
		return
	}
	b := img.Bounds()
	r.raster.Reset(b.Dx(), b.Dy())
	r.raster.DrawOp = draw.Over

	r.raster.MoveTo(float32(pts[0].X-offset.X), float32(pts[0].Y-offset.Y))
	for _, p := range pts[1:] {
		r.raster.LineTo(float32(p.X-offset.X), float32(p.Y-offset.Y))
	}
	r.raster.ClosePath()
	r.raster.Draw(img, b, src, image.Point{})
}

// rgbaBuffer returns a transparent w x h image backed by reused memory.
func (r *Renderer) rgbaBuffer(w, h int) *image.RGBA {
	n := 4 * w * h
	if cap(r.layer) < n {
		r.layer = make([]uint8, n)
	}
	pix := r.layer[:n]
	clear(pix)
	return &image.RGBA{Pix: pix, Stride: 4 * w, Rect: image.Rect(0, 0, w, h)}
}

// alphaBuffer returns a cleared w x h mask backed by reused memory.
func (r *Renderer) alphaBuffer(w, h int) *image.Alpha {
	n := w * h
	if cap(r.mask) < n {
		r.mask = make([]uint8, n)
	}
	pix := r.mask[:n]
	clear(pix)
	return &image.Alpha{Pix: pix, Stride: w, Rect: image.Rect(0, 0, w, h)}
}
