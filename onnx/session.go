package onnx

import (
	"context"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/segvista/seg-overlay-service/models"
	"github.com/segvista/seg-overlay-service/pipeline"
)

// SessionConfig names the model artifacts for one pipeline session. The
// selector and mask paths may be empty: the caller then substitutes the
// in-process pipeline.NMSSelector / pipeline.ProtoMaskPainter instead.
type SessionConfig struct {
	DetectorModelPath string
	SelectorModelPath string
	MaskModelPath     string
	NumThreads        int
}

// PipelineSession owns up to three ONNX sessions, one per stage. A session
// serves one pass at a time; the pool hands out whole sessions.
type PipelineSession struct {
	detector *ort.DynamicAdvancedSession
	selector *ort.DynamicAdvancedSession
	masks    *ort.DynamicAdvancedSession
}

// NewPipelineSession creates sessions for every configured model path.
func NewPipelineSession(cfg SessionConfig) (*PipelineSession, error) {
	if cfg.DetectorModelPath == "" {
		return nil, fmt.Errorf("detector model path is required")
	}

	options, err := newSessionOptions(cfg.NumThreads)
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	s := &PipelineSession{}

	s.detector, err = ort.NewDynamicAdvancedSession(cfg.DetectorModelPath,
		[]string{"images"}, []string{"output0", "output1"}, options)
	if err != nil {
		return nil, fmt.Errorf("create detector session: %w", err)
	}

	if cfg.SelectorModelPath != "" {
		s.selector, err = ort.NewDynamicAdvancedSession(cfg.SelectorModelPath,
			[]string{"detection", "config"}, []string{"selected"}, options)
		if err != nil {
			s.Destroy()
			return nil, fmt.Errorf("create selector session: %w", err)
		}
	}

	if cfg.MaskModelPath != "" {
		s.masks, err = ort.NewDynamicAdvancedSession(cfg.MaskModelPath,
			[]string{"detection", "mask", "config", "overlay"}, []string{"mask_filter"}, options)
		if err != nil {
			s.Destroy()
			return nil, fmt.Errorf("create mask session: %w", err)
		}
	}

	return s, nil
}

// Destroy releases every session. Idempotent.
func (s *PipelineSession) Destroy() {
	if s.detector != nil {
		s.detector.Destroy()
		s.detector = nil
	}
	if s.selector != nil {
		s.selector.Destroy()
		s.selector = nil
	}
	if s.masks != nil {
		s.masks.Destroy()
		s.masks = nil
	}
}

// Detector returns the model-backed detector stage.
func (s *PipelineSession) Detector() pipeline.Detector {
	return &modelDetector{session: s.detector}
}

// Selector returns the model-backed selector stage, or the in-process NMS
// selector when no NMS model was configured.
func (s *PipelineSession) Selector() pipeline.Selector {
	if s.selector == nil {
		return pipeline.NMSSelector{}
	}
	return &modelSelector{session: s.selector}
}

// MaskGenerator returns the model-backed mask stage, or the in-process
// prototype painter when no mask model was configured.
func (s *PipelineSession) MaskGenerator() pipeline.MaskGenerator {
	if s.masks == nil {
		return pipeline.ProtoMaskPainter{}
	}
	return &modelMask{session: s.masks}
}

type modelDetector struct {
	session *ort.DynamicAdvancedSession
}

func (d *modelDetector) Detect(ctx context.Context, input *models.Tensor[float32]) (*models.Tensor[float32], *models.Tensor[float32], error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	in, err := ort.NewTensor(ort.NewShape(input.Shape...), input.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("create input tensor: %w", err)
	}
	defer in.Destroy()

	outputs := make([]ort.Value, 2)
	if err := d.session.Run([]ort.Value{in}, outputs); err != nil {
		return nil, nil, fmt.Errorf("detector inference: %w", err)
	}
	defer destroyAll(outputs)

	raw, err := copyFloatTensor(outputs[0])
	if err != nil {
		return nil, nil, fmt.Errorf("detector output0: %w", err)
	}
	basis, err := copyFloatTensor(outputs[1])
	if err != nil {
		return nil, nil, fmt.Errorf("detector output1: %w", err)
	}
	return raw, basis, nil
}

type modelSelector struct {
	session *ort.DynamicAdvancedSession
}

func (s *modelSelector) Select(ctx context.Context, raw *models.Tensor[float32], cfg pipeline.SelectConfig) (*models.Tensor[float32], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rawT, err := ort.NewTensor(ort.NewShape(raw.Shape...), raw.Data)
	if err != nil {
		return nil, fmt.Errorf("create detection tensor: %w", err)
	}
	defer rawT.Destroy()

	confT, err := ort.NewTensor(ort.NewShape(4), []float32{
		float32(cfg.NumClasses),
		float32(cfg.TopK),
		cfg.IOUThreshold,
		cfg.ScoreThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("create nms config tensor: %w", err)
	}
	defer confT.Destroy()

	outputs := make([]ort.Value, 1)
	if err := s.session.Run([]ort.Value{rawT, confT}, outputs); err != nil {
		return nil, fmt.Errorf("selector inference: %w", err)
	}
	defer destroyAll(outputs)

	return copyFloatTensor(outputs[0])
}

type modelMask struct {
	session *ort.DynamicAdvancedSession
}

func (m *modelMask) Paint(ctx context.Context, row []float32, basis *models.Tensor[float32], cfg pipeline.MaskConfig, overlay *models.Tensor[uint8]) (*models.Tensor[uint8], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rowData := make([]float32, len(row))
	copy(rowData, row)
	rowT, err := ort.NewTensor(ort.NewShape(1, int64(len(row))), rowData)
	if err != nil {
		return nil, fmt.Errorf("create detection tensor: %w", err)
	}
	defer rowT.Destroy()

	basisT, err := ort.NewTensor(ort.NewShape(basis.Shape...), basis.Data)
	if err != nil {
		return nil, fmt.Errorf("create mask basis tensor: %w", err)
	}
	defer basisT.Destroy()

	// Wire format: [maxSize, x, y, w, h, r, g, b, a].
	confT, err := ort.NewTensor(ort.NewShape(9), []float32{
		float32(cfg.MaxSize),
		float32(cfg.Box.X),
		float32(cfg.Box.Y),
		float32(cfg.Box.Width),
		float32(cfg.Box.Height),
		float32(cfg.Color.R),
		float32(cfg.Color.G),
		float32(cfg.Color.B),
		float32(cfg.Color.A),
	})
	if err != nil {
		return nil, fmt.Errorf("create mask config tensor: %w", err)
	}
	defer confT.Destroy()

	overlayT, err := ort.NewTensor(ort.NewShape(overlay.Shape...), overlay.Data)
	if err != nil {
		return nil, fmt.Errorf("create overlay tensor: %w", err)
	}
	defer overlayT.Destroy()

	outputs := make([]ort.Value, 1)
	if err := m.session.Run([]ort.Value{rowT, basisT, confT, overlayT}, outputs); err != nil {
		return nil, fmt.Errorf("mask inference: %w", err)
	}
	defer destroyAll(outputs)

	return copyByteTensor(outputs[0])
}

func destroyAll(values []ort.Value) {
	for _, v := range values {
		if v != nil {
			v.Destroy()
		}
	}
}

// copyFloatTensor copies an ORT value into an owned tensor so the ORT
// buffer can be destroyed before the next stage runs.
func copyFloatTensor(v ort.Value) (*models.Tensor[float32], error) {
	t, ok := v.(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("output is not a float32 tensor")
	}
	shape := t.GetShape()
	data := make([]float32, len(t.GetData()))
	copy(data, t.GetData())
	return models.TensorOf(data, append([]int64(nil), shape...)...)
}

func copyByteTensor(v ort.Value) (*models.Tensor[uint8], error) {
	t, ok := v.(*ort.Tensor[uint8])
	if !ok {
		return nil, fmt.Errorf("output is not a uint8 tensor")
	}
	shape := t.GetShape()
	data := make([]uint8, len(t.GetData()))
	copy(data, t.GetData())
	return models.TensorOf(data, append([]int64(nil), shape...)...)
}
