// Package render turns pipeline output into viewable images: the overlay
// tensor as an image, the overlay composited onto the letterboxed frame,
// and labeled boxes drawn on top. The pipeline core never depends on this
// package.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/anthonynsimon/bild/blend"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/segvista/seg-overlay-service/models"
)

// OverlayImage wraps the pipeline's overlay tensor [h, w, 4] as a
// non-premultiplied RGBA image.
func OverlayImage(overlay *models.Tensor[uint8]) (*image.NRGBA, error) {
	if overlay == nil || overlay.Rank() != 3 || overlay.Dim(2) != 4 {
		return nil, fmt.Errorf("overlay must be shaped [h, w, 4]")
	}
	h, w := overlay.Dim(0), overlay.Dim(1)
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	copy(img.Pix, overlay.Data)
	return img, nil
}

// Composite blends the overlay over the base frame. The base should be the
// letterboxed square resized to model resolution, since that is the space
// overlay pixels live in.
func Composite(base image.Image, overlay *models.Tensor[uint8]) (*image.RGBA, error) {
	fg, err := OverlayImage(overlay)
	if err != nil {
		return nil, err
	}
	return blend.Normal(base, fg), nil
}

// DrawDetections draws each detection's box outline and "label score" tag
// in the detection's color.
func DrawDetections(dst draw.Image, detections []models.Detection) {
	for _, det := range detections {
		drawRect(dst, det.Box, det.Color, 2)
		tag := fmt.Sprintf("%s %.2f", det.Label, det.Probability)
		drawLabel(dst, det.Box.X+3, det.Box.Y+13, tag, det.Color)
	}
}

func drawRect(dst draw.Image, box models.BoundingBox, c color.RGBA, thickness int) {
	for t := 0; t < thickness; t++ {
		x1, y1 := box.X+t, box.Y+t
		x2, y2 := box.X+box.Width-1-t, box.Y+box.Height-1-t
		if x2 <= x1 || y2 <= y1 {
			return
		}
		for x := x1; x <= x2; x++ {
			dst.Set(x, y1, c)
			dst.Set(x, y2, c)
		}
		for y := y1; y <= y2; y++ {
			dst.Set(x1, y, c)
			dst.Set(x2, y, c)
		}
	}
}

func drawLabel(dst draw.Image, x, y int, text string, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
