package pipeline

import (
	"testing"

	"github.com/segvista/seg-overlay-service/models"
	"github.com/segvista/seg-overlay-service/palette"
)

func TestDecodeRowCenterToCorner(t *testing.T) {
	// One selected row with numClasses=2 and unit ratios: the centered box
	// (100, 100, 50, 50) becomes corner form (75, 75, 50, 50), no clipping.
	row := []float32{100, 100, 50, 50, 0.9, 0.1}
	scale := models.ScaleFactors{XRatio: 1.0, YRatio: 1.0}

	det, err := decodeRow(row, 2, scale, 640, palette.New(), []string{"cat", "dog"})
	if err != nil {
		t.Fatalf("decodeRow failed: %v", err)
	}

	if det.Label != "cat" || det.ClassID != 0 {
		t.Errorf("label = %q (class %d), want cat (class 0)", det.Label, det.ClassID)
	}
	if det.Probability != 0.9 {
		t.Errorf("probability = %v, want 0.9", det.Probability)
	}
	want := models.BoundingBox{X: 75, Y: 75, Width: 50, Height: 50}
	if det.Box != want {
		t.Errorf("box = %+v, want %+v", det.Box, want)
	}
}

func TestDecodeRowUpscalesAndClips(t *testing.T) {
	// Box hangs past the right edge after upscaling; the second clip pulls
	// it back inside the square.
	row := []float32{600, 320, 120, 100, 0.2, 0.8}
	scale := models.ScaleFactors{XRatio: 1.0, YRatio: 1.0}

	det, err := decodeRow(row, 2, scale, 640, palette.New(), []string{"cat", "dog"})
	if err != nil {
		t.Fatalf("decodeRow failed: %v", err)
	}

	if det.ClassID != 1 || det.Label != "dog" {
		t.Errorf("class = %d (%q), want 1 (dog)", det.ClassID, det.Label)
	}
	box := det.Box
	if box.X+box.Width > 640 || box.Y+box.Height > 640 || box.X < 0 || box.Y < 0 {
		t.Errorf("box %+v escapes the 640 square", box)
	}
	if box.X != 540 || box.Width != 100 {
		t.Errorf("box = %+v, want x=540 width=100 after clipping", box)
	}
}

func TestDecodeRowAppliesRatios(t *testing.T) {
	row := []float32{100, 100, 50, 50, 1.0}
	scale := models.ScaleFactors{XRatio: 1.5, YRatio: 2.0}

	det, err := decodeRow(row, 1, scale, 640, palette.New(), []string{"cat"})
	if err != nil {
		t.Fatalf("decodeRow failed: %v", err)
	}

	// floor(75*1.5)=112, floor(75*2)=150, floor(50*1.5)=75, floor(50*2)=100.
	want := models.BoundingBox{X: 112, Y: 150, Width: 75, Height: 100}
	if det.Box != want {
		t.Errorf("box = %+v, want %+v", det.Box, want)
	}
}

func TestDecodeRowTiesPickFirstClass(t *testing.T) {
	row := []float32{10, 10, 4, 4, 0.5, 0.5, 0.5}
	det, err := decodeRow(row, 3, models.ScaleFactors{XRatio: 1, YRatio: 1}, 640, palette.New(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("decodeRow failed: %v", err)
	}
	if det.ClassID != 0 {
		t.Errorf("tie broke to class %d, want first index 0", det.ClassID)
	}
}

func TestDecodeRowRejectsShortRow(t *testing.T) {
	row := []float32{10, 10, 4, 4, 0.9}
	if _, err := decodeRow(row, 2, models.ScaleFactors{XRatio: 1, YRatio: 1}, 640, palette.New(), []string{"a", "b"}); err == nil {
		t.Error("decodeRow should reject a row shorter than 4+numClasses")
	}
}

func TestDecodeRowColorsAreStable(t *testing.T) {
	pal := palette.New()
	row := []float32{10, 10, 4, 4, 0.1, 0.9}
	first, err := decodeRow(row, 2, models.ScaleFactors{XRatio: 1, YRatio: 1}, 640, pal, []string{"a", "b"})
	if err != nil {
		t.Fatalf("decodeRow failed: %v", err)
	}
	second, _ := decodeRow(row, 2, models.ScaleFactors{XRatio: 1, YRatio: 1}, 640, pal, []string{"a", "b"})
	if first.Color != second.Color {
		t.Errorf("same class decoded to different colors: %v vs %v", first.Color, second.Color)
	}
}
