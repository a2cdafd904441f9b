package preprocess

import (
	"image"
	"image/color"
	"testing"
)

// solidImage returns a uniformly colored NRGBA image.
func solidImage(t *testing.T, width, height int, c color.NRGBA) *image.NRGBA {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestLetterboxShapeAndRatiosSquare(t *testing.T) {
	img := solidImage(t, 640, 640, color.NRGBA{A: 255})

	tensor, scale, err := Letterbox(img, 640, 640, DefaultStride)
	if err != nil {
		t.Fatalf("Letterbox failed: %v", err)
	}

	wantShape := []int64{1, 3, 640, 640}
	for i, d := range wantShape {
		if tensor.Shape[i] != d {
			t.Fatalf("tensor shape = %v, want %v", tensor.Shape, wantShape)
		}
	}
	if scale.XRatio != 1.0 || scale.YRatio != 1.0 {
		t.Errorf("square input ratios = (%v, %v), want (1, 1)", scale.XRatio, scale.YRatio)
	}

	// Black input stays black after normalization.
	for i, v := range tensor.Data {
		if v != 0 {
			t.Fatalf("tensor[%d] = %v for an all-black image", i, v)
		}
	}
}

func TestLetterboxRatiosForWideInput(t *testing.T) {
	// 640x480 is already stride-aligned: no rounding, square side 640.
	img := solidImage(t, 640, 480, color.NRGBA{R: 255, G: 255, B: 255, A: 255})

	_, scale, err := Letterbox(img, 640, 640, DefaultStride)
	if err != nil {
		t.Fatalf("Letterbox failed: %v", err)
	}

	if scale.XRatio != 1.0 {
		t.Errorf("xRatio = %v, want 1.0", scale.XRatio)
	}
	if want := float32(640) / float32(480); scale.YRatio != want {
		t.Errorf("yRatio = %v, want %v", scale.YRatio, want)
	}
}

func TestLetterboxPadsBottom(t *testing.T) {
	// 320x160 halves vertically: after padding to a 320 square and
	// resizing to 64, white content fills the top quarter rows only.
	img := solidImage(t, 320, 160, color.NRGBA{R: 255, G: 255, B: 255, A: 255})

	tensor, scale, err := Letterbox(img, 64, 64, DefaultStride)
	if err != nil {
		t.Fatalf("Letterbox failed: %v", err)
	}
	if scale.XRatio != 1.0 || scale.YRatio != 2.0 {
		t.Fatalf("ratios = (%v, %v), want (1, 2)", scale.XRatio, scale.YRatio)
	}

	// Row 5 sits inside the image content, row 60 inside the padding.
	const width = 64
	if v := tensor.Data[5*width+10]; v < 0.9 {
		t.Errorf("content pixel = %v, want near 1.0", v)
	}
	if v := tensor.Data[60*width+10]; v > 0.1 {
		t.Errorf("padded pixel = %v, want near 0", v)
	}
}

func TestLetterboxStrideRounding(t *testing.T) {
	// 650 rounds down to 640, 670 rounds up to 672.
	img := solidImage(t, 650, 670, color.NRGBA{R: 128, G: 128, B: 128, A: 255})

	_, scale, err := Letterbox(img, 640, 640, DefaultStride)
	if err != nil {
		t.Fatalf("Letterbox failed: %v", err)
	}

	// Square side is 672; ratios map back to the 640x672 resized frame.
	if want := float32(672) / float32(640); scale.XRatio != want {
		t.Errorf("xRatio = %v, want %v", scale.XRatio, want)
	}
	if scale.YRatio != 1.0 {
		t.Errorf("yRatio = %v, want 1.0", scale.YRatio)
	}
}

func TestLetterboxRejectsEmptyImage(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 0, 0))
	if _, _, err := Letterbox(img, 640, 640, DefaultStride); err != ErrEmptyImage {
		t.Errorf("Letterbox on empty image = %v, want ErrEmptyImage", err)
	}
}
