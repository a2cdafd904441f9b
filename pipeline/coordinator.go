package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/segvista/seg-overlay-service/models"
	"github.com/segvista/seg-overlay-service/palette"
)

// DefaultMaskAlpha is the overlay tint alpha used when Config.MaskAlpha is
// unset.
const DefaultMaskAlpha = 120

// Config is validated once in New; a Pipeline never runs with bad
// thresholds.
type Config struct {
	ModelWidth  int
	ModelHeight int

	TopK           int
	IOUThreshold   float32
	ScoreThreshold float32

	// Classes maps class indices to labels; its length is the class count.
	Classes []string

	// MaskAlpha tints painted masks; zero means DefaultMaskAlpha.
	MaskAlpha uint8

	// Palette assigns per-class colors; nil means the default palette.
	Palette *palette.Palette
}

func (c *Config) validate() error {
	if c.ModelWidth <= 0 || c.ModelHeight <= 0 {
		return fmt.Errorf("model dimensions must be positive, got %dx%d", c.ModelWidth, c.ModelHeight)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("topk must be positive, got %d", c.TopK)
	}
	if c.IOUThreshold <= 0 || c.IOUThreshold >= 1 {
		return fmt.Errorf("iou threshold must be in (0, 1), got %v", c.IOUThreshold)
	}
	if c.ScoreThreshold <= 0 || c.ScoreThreshold >= 1 {
		return fmt.Errorf("score threshold must be in (0, 1), got %v", c.ScoreThreshold)
	}
	if len(c.Classes) == 0 {
		return fmt.Errorf("class label list must not be empty")
	}
	return nil
}

// Pipeline coordinates one detection pass. Safe for concurrent passes as
// long as each pass uses its own tensors; the palette is the only shared
// state and handles its own locking.
type Pipeline struct {
	cfg      Config
	detector Detector
	selector Selector
	masks    MaskGenerator
	palette  *palette.Palette
}

// New validates cfg and wires the three stages.
func New(cfg Config, detector Detector, selector Selector, masks MaskGenerator) (*Pipeline, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if detector == nil || selector == nil || masks == nil {
		return nil, fmt.Errorf("all three stages must be provided")
	}
	pal := cfg.Palette
	if pal == nil {
		pal = palette.New()
	}
	if cfg.MaskAlpha == 0 {
		cfg.MaskAlpha = DefaultMaskAlpha
	}
	return &Pipeline{
		cfg:      cfg,
		detector: detector,
		selector: selector,
		masks:    masks,
		palette:  pal,
	}, nil
}

// Result is a completed pass: the decoded detections in selector row order
// and the final overlay, shaped [modelHeight, modelWidth, 4].
type Result struct {
	Detections []models.Detection
	Overlay    *models.Tensor[uint8]
}

// Run executes one pass: detect, select, then decode and paint each
// selected row in ascending order. Each stage's output is a strict input to
// the next, so the stages run one at a time; ctx is checked between them
// and between mask iterations. Any stage failure aborts the pass with a
// *Failure and no partial results. timings may be nil.
func (p *Pipeline) Run(ctx context.Context, input *models.Tensor[float32], scale models.ScaleFactors, timings *models.ProcessingTimings) (*Result, error) {
	if timings == nil {
		timings = &models.ProcessingTimings{}
	}
	if input == nil || input.Rank() != 4 || input.Dim(0) != 1 || input.Dim(1) != 3 {
		return nil, failf(StagePreprocess, ErrPreprocess,
			"input tensor must be shaped [1, 3, h, w], got %v", shapeOf(input))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	detectStart := time.Now()
	raw, basis, err := p.detector.Detect(ctx, input)
	timings.Detect = time.Since(detectStart)
	if err != nil {
		return nil, fail(StageDetect, ErrInference, err)
	}
	if raw == nil || raw.Rank() != 3 || raw.Dim(0) != 1 {
		return nil, failf(StageDetect, ErrInference,
			"raw detections must be shaped [1, c, n], got %v", shapeOf(raw))
	}
	if basis == nil || basis.Rank() != 4 || basis.Dim(0) != 1 {
		return nil, failf(StageDetect, ErrInference,
			"mask basis must be shaped [1, c, h, w], got %v", shapeOf(basis))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	numClasses := len(p.cfg.Classes)
	selectStart := time.Now()
	selected, err := p.selector.Select(ctx, raw, SelectConfig{
		NumClasses:     numClasses,
		TopK:           p.cfg.TopK,
		IOUThreshold:   p.cfg.IOUThreshold,
		ScoreThreshold: p.cfg.ScoreThreshold,
	})
	timings.Select = time.Since(selectStart)
	if err != nil {
		return nil, fail(StageSelect, ErrInference, err)
	}
	if selected == nil || selected.Rank() != 3 || selected.Dim(0) != 1 {
		return nil, failf(StageSelect, ErrInference,
			"selected detections must be shaped [1, n, w], got %v", shapeOf(selected))
	}

	count := selected.Dim(1)
	rowWidth := selected.Dim(2)
	if count > 0 && rowWidth < 4+numClasses {
		return nil, failf(StageSelect, ErrInference,
			"selected row width %d is shorter than 4+%d classes", rowWidth, numClasses)
	}

	maxSize := p.cfg.ModelWidth
	if p.cfg.ModelHeight > maxSize {
		maxSize = p.cfg.ModelHeight
	}

	// Exactly one overlay is live at any point; ownership moves through
	// the loop one mask call at a time. Row order is significant: later
	// masks paint over earlier ones where boxes overlap.
	overlay := models.NewTensor[uint8](int64(p.cfg.ModelHeight), int64(p.cfg.ModelWidth), 4)
	detections := make([]models.Detection, 0, count)

	maskStart := time.Now()
	defer func() { timings.Mask = time.Since(maskStart) }()

	for idx := 0; idx < count; idx++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row := selected.Data[idx*rowWidth : (idx+1)*rowWidth]
		det, err := decodeRow(row, numClasses, scale, maxSize, p.palette, p.cfg.Classes)
		if err != nil {
			return nil, fail(StageDecode, ErrDecode, err)
		}

		tint := det.Color
		tint.A = p.cfg.MaskAlpha
		overlay, err = p.masks.Paint(ctx, row, basis, MaskConfig{
			MaxSize: maxSize,
			Box:     det.Box,
			Color:   tint,
		}, overlay)
		if err != nil {
			return nil, fail(StageMask, ErrInference, err)
		}
		if overlay == nil {
			return nil, failf(StageMask, ErrInference, "mask stage returned no overlay")
		}

		detections = append(detections, det)
	}

	return &Result{Detections: detections, Overlay: overlay}, nil
}

func shapeOf[T models.Element](t *models.Tensor[T]) []int64 {
	if t == nil {
		return nil
	}
	return t.Shape
}
