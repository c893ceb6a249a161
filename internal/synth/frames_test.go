package synth

import (
	"image"
	"image/color"
	"testing"
)

func TestLoadFrame(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			img, err := LoadFrame(name, 64, 48)
			if err != nil {
				t.Fatalf("LoadFrame() error = %v", err)
			}
			if img.Bounds() != image.Rect(0, 0, 64, 48) {
				t.Errorf("bounds = %v", img.Bounds())
			}
		})
	}

	t.Run("unknown", func(t *testing.T) {
		if _, err := LoadFrame("sunset", 10, 10); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("invalid size", func(t *testing.T) {
		if _, err := LoadFrame("gradient", 0, 10); err == nil {
			t.Error("expected error")
		}
	})
}

func TestGenerators(t *testing.T) {
	g := Gradient(256, 256)
	if c := g.RGBAAt(0, 0); c != (color.RGBA{R: 0, G: 0, B: 128, A: 255}) {
		t.Errorf("gradient top left = %v", c)
	}
	if c := g.RGBAAt(255, 255); c.R != 255 || c.G != 255 {
		t.Errorf("gradient bottom right = %v", c)
	}

	ch := Checker(20, 20, 10)
	if ch.RGBAAt(0, 0).R != 255 || ch.RGBAAt(10, 0).R != 0 {
		t.Error("checker cells do not alternate")
	}

	red := color.RGBA{R: 255, A: 255}
	if Solid(3, 3, red).RGBAAt(2, 2) != red {
		t.Error("solid frame not filled")
	}

	seq := LoadSequence(3, 16, 16)
	if len(seq) != 3 || seq[0].RGBAAt(0, 0) == seq[1].RGBAAt(0, 0) {
		t.Error("sequence frames should differ")
	}
}
