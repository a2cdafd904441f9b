// Package pipeline sequences the three inference stages — detector,
// selector, mask generator — and owns the overlay state that accumulates
// across detections. Stage implementations are collaborators behind the
// interfaces below: the onnx package backs them with model sessions, and
// NMSSelector/ProtoMaskPainter provide in-process equivalents.
package pipeline

import (
	"context"
	"image/color"

	"github.com/segvista/seg-overlay-service/models"
)

// Detector runs the segmentation model on a preprocessed image tensor and
// returns the raw detection tensor [1, rawCount, 4+classes+coeffs] (or its
// channel-major transpose) together with the per-pixel mask basis tensor.
type Detector interface {
	Detect(ctx context.Context, input *models.Tensor[float32]) (raw, maskBasis *models.Tensor[float32], err error)
}

// SelectConfig parameterizes the selection (NMS) stage.
type SelectConfig struct {
	NumClasses     int
	TopK           int
	IOUThreshold   float32
	ScoreThreshold float32
}

// Selector filters raw detections down to at most TopK per class, emitting
// [1, selectedCount, rowWidth] rows of the form
// [cx, cy, w, h, score_0..score_n, coeff_0..coeff_m].
type Selector interface {
	Select(ctx context.Context, raw *models.Tensor[float32], cfg SelectConfig) (*models.Tensor[float32], error)
}

// MaskConfig parameterizes one mask-painting call.
type MaskConfig struct {
	// MaxSize is the letterboxed square side in model-space units; the
	// painted region never leaves [0, MaxSize)².
	MaxSize int
	// Box is the detection's upscaled, clipped bounding box.
	Box models.BoundingBox
	// Color tints the mask, alpha included.
	Color color.RGBA
}

// MaskGenerator paints one detection's segmentation mask into the overlay.
// It takes ownership of overlayIn and returns its successor; the caller
// must not touch overlayIn afterwards.
type MaskGenerator interface {
	Paint(ctx context.Context, row []float32, maskBasis *models.Tensor[float32], cfg MaskConfig, overlayIn *models.Tensor[uint8]) (*models.Tensor[uint8], error)
}
