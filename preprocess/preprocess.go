// Package preprocess turns an arbitrary-resolution image into the
// fixed-size, stride-aligned, letterboxed tensor the detector expects, plus
// the ratios needed to map model-space boxes back to the padded square.
package preprocess

import (
	"errors"
	"image"
	"image/color"
	"runtime"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/segvista/seg-overlay-service/geometry"
	"github.com/segvista/seg-overlay-service/models"
)

// DefaultStride matches the reference model's downsampling factor.
const DefaultStride = 32

var ErrEmptyImage = errors.New("image has zero width or height")

// Letterbox resizes img to stride-aligned dimensions, pads the shorter side
// with black on the bottom/right to a square, resizes the square to
// (modelW, modelH) and emits a normalized CHW float32 tensor.
//
// The returned ratios recover padded-square coordinates from model-space
// coordinates. The square's side is the stride-rounded long side, not the
// original image size; callers that need original-image coordinates must
// also undo the stride rounding.
func Letterbox(img image.Image, modelW, modelH, stride int) (*models.Tensor[float32], models.ScaleFactors, error) {
	bounds := img.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()
	if origW <= 0 || origH <= 0 {
		return nil, models.ScaleFactors{}, ErrEmptyImage
	}
	if stride <= 0 {
		stride = DefaultStride
	}

	w, h := geometry.DivStride(origW, origH, stride)
	// Inputs narrower than half a stride would round to zero.
	if w < stride {
		w = stride
	}
	if h < stride {
		h = stride
	}

	resized := imaging.Resize(img, w, h, imaging.Linear)

	maxSize := w
	if h > maxSize {
		maxSize = h
	}
	scale := models.ScaleFactors{
		XRatio: float32(maxSize) / float32(w),
		YRatio: float32(maxSize) / float32(h),
	}

	// Pad bottom/right only, so the image keeps its origin.
	square := imaging.New(maxSize, maxSize, color.Black)
	square = imaging.Paste(square, resized, image.Pt(0, 0))

	final := imaging.Resize(square, modelW, modelH, imaging.Linear)

	tensor := models.NewTensor[float32](1, 3, int64(modelH), int64(modelW))
	fillCHW(final, tensor.Data, modelW, modelH)

	return tensor, scale, nil
}

// fillCHW writes normalized planar RGB into dst, splitting rows across
// workers.
func fillCHW(img *image.NRGBA, dst []float32, width, height int) {
	channelSize := width * height

	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > height {
		numWorkers = height
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	rowsPerWorker := height / numWorkers

	var wg sync.WaitGroup
	wg.Add(numWorkers)

	for w := 0; w < numWorkers; w++ {
		startY := w * rowsPerWorker
		endY := startY + rowsPerWorker
		if w == numWorkers-1 {
			endY = height
		}

		go func(startY, endY int) {
			defer wg.Done()
			for y := startY; y < endY; y++ {
				rowOff := y * img.Stride
				dstOff := y * width
				for x := 0; x < width; x++ {
					px := rowOff + x*4
					i := dstOff + x
					dst[i] = float32(img.Pix[px]) / 255.0
					dst[channelSize+i] = float32(img.Pix[px+1]) / 255.0
					dst[channelSize*2+i] = float32(img.Pix[px+2]) / 255.0
				}
			}
		}(startY, endY)
	}

	wg.Wait()
}
