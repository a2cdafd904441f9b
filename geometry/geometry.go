// Package geometry holds the pure coordinate helpers shared by the
// preprocessor and the detection decoder.
package geometry

import "github.com/segvista/seg-overlay-service/models"

// DivStride rounds both dimensions to the nearest multiple of stride: a
// remainder of at least stride/2 rounds up, anything smaller rounds down.
// The model's feature maps only divide evenly when the input is
// stride-aligned.
func DivStride(width, height, stride int) (int, int) {
	return roundStride(width, stride), roundStride(height, stride)
}

func roundStride(v, stride int) int {
	if rem := v % stride; rem >= stride/2 {
		return (v/stride + 1) * stride
	}
	return v / stride * stride
}

// ClipBox clamps a box into the square [0, maxSize]². Origin is clamped to
// zero first, then width and height are shrunk so the far edges stay inside
// the bound. Idempotent: clipping a clipped box changes nothing.
func ClipBox(box models.BoundingBox, maxSize int) models.BoundingBox {
	box.X = clamp(box.X, 0, maxSize)
	box.Y = clamp(box.Y, 0, maxSize)
	if box.Width < 0 {
		box.Width = 0
	}
	if box.Height < 0 {
		box.Height = 0
	}
	if box.X+box.Width > maxSize {
		box.Width = maxSize - box.X
		if box.Width < 0 {
			box.Width = 0
		}
	}
	if box.Y+box.Height > maxSize {
		box.Height = maxSize - box.Y
		if box.Height < 0 {
			box.Height = 0
		}
	}
	return box
}

// ClipBoxF is ClipBox for the float32 model-output space, applied before
// boxes are upscaled.
func ClipBoxF(x, y, w, h, maxSize float32) (float32, float32, float32, float32) {
	x = clampf(x, 0, maxSize)
	y = clampf(y, 0, maxSize)
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	if x+w > maxSize {
		w = maxSize - x
	}
	if y+h > maxSize {
		h = maxSize - y
	}
	return x, y, w, h
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
