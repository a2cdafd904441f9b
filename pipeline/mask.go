package pipeline

import (
	"context"
	"fmt"
	"math"

	"github.com/segvista/seg-overlay-service/models"
)

// ProtoMaskPainter is an in-process MaskGenerator: it combines a row's
// trailing mask coefficients with the detector's prototype tensor
// [1, c, ph, pw], thresholds the sigmoid response, and paints the
// detection's color into the overlay inside its box. Pixels written here
// overwrite whatever earlier detections painted.
type ProtoMaskPainter struct {
	// Threshold binarizes the mask response; zero means 0.5.
	Threshold float32
}

func (m ProtoMaskPainter) Paint(ctx context.Context, row []float32, basis *models.Tensor[float32], cfg MaskConfig, overlay *models.Tensor[uint8]) (*models.Tensor[uint8], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	thresh := m.Threshold
	if thresh == 0 {
		thresh = 0.5
	}

	if basis.Rank() != 4 || basis.Dim(0) != 1 {
		return nil, fmt.Errorf("mask basis must be shaped [1, c, h, w], got %v", basis.Shape)
	}
	protoC, protoH, protoW := basis.Dim(1), basis.Dim(2), basis.Dim(3)
	if len(row) < 4+protoC {
		return nil, fmt.Errorf("row has %d elements, need %d mask coefficients past the box", len(row), protoC)
	}
	if overlay.Rank() != 3 || overlay.Dim(2) != 4 {
		return nil, fmt.Errorf("overlay must be shaped [h, w, 4], got %v", overlay.Shape)
	}
	if cfg.MaxSize <= 0 {
		return nil, fmt.Errorf("mask config max size must be positive, got %d", cfg.MaxSize)
	}

	coeffs := row[len(row)-protoC:]
	overlayH, overlayW := overlay.Dim(0), overlay.Dim(1)
	planeSize := protoH * protoW

	box := cfg.Box
	for y := box.Y; y < box.Y+box.Height && y < overlayH; y++ {
		my := y * protoH / cfg.MaxSize
		if my < 0 || my >= protoH {
			continue
		}
		for x := box.X; x < box.X+box.Width && x < overlayW; x++ {
			mx := x * protoW / cfg.MaxSize
			if mx < 0 || mx >= protoW {
				continue
			}

			sum := float32(0)
			for k := 0; k < protoC; k++ {
				sum += coeffs[k] * basis.Data[k*planeSize+my*protoW+mx]
			}
			if sigmoid(sum) <= thresh {
				continue
			}

			off := (y*overlayW + x) * 4
			overlay.Data[off] = cfg.Color.R
			overlay.Data[off+1] = cfg.Color.G
			overlay.Data[off+2] = cfg.Color.B
			overlay.Data[off+3] = cfg.Color.A
		}
	}

	return overlay, nil
}

func sigmoid(x float32) float32 {
	return 1.0 / (1.0 + float32(math.Exp(float64(-x))))
}
