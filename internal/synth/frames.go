// Package synth generates synthetic camera frames for tests and the
// snapshot command.
package synth

import (
	"fmt"
	"image"
	"image/color"
	"sort"
)

// generators builds each named frame at the requested size.
var generators = map[string]func(w, h int) *image.RGBA{
	"gradient":  Gradient,
	"checker":   func(w, h int) *image.RGBA { return Checker(w, h, 40) },
	"solid-red": func(w, h int) *image.RGBA { return Solid(w, h, color.RGBA{R: 255, A: 255}) },
}

// Names lists the frames LoadFrame can build.
func Names() []string {
	names := make([]string, 0, len(generators))
	for name := range generators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadFrame builds the named frame at w x h.
func LoadFrame(name string, w, h int) (*image.RGBA, error) {
	gen, ok := generators[name]
	if !ok {
		return nil, fmt.Errorf("load frame %s: unknown frame", name)
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("load frame %s: invalid size %dx%d", name, w, h)
	}
	return gen(w, h), nil
}

// LoadSequence returns n gradient frames whose hue shifts a little each
// frame, for exercising playback.
func LoadSequence(n, w, h int) []*image.RGBA {
	frames := make([]*image.RGBA, n)
	for i := range frames {
		frames[i] = shifted(w, h, i*8)
	}
	return frames
}

// Gradient is red left to right, green top to bottom and a constant blue.
func Gradient(w, h int) *image.RGBA {
	return shifted(w, h, 0)
}

func shifted(w, h, offset int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8((x*255/max(1, w-1) + offset) % 256),
				G: uint8(y * 255 / max(1, h-1)),
				B: 128,
				A: 255,
			})
		}
	}
	return img
}

// Checker alternates black and white squares of side cell.
func Checker(w, h, cell int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{A: 255}
			if (x/cell+y/cell)%2 == 0 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// Solid fills the frame with c.
func Solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}
