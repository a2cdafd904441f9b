package pipeline

import (
	"errors"
	"fmt"
)

// Stage names carried by Failure.
const (
	StagePreprocess = "preprocess"
	StageDetect     = "detect"
	StageSelect     = "select"
	StageDecode     = "decode"
	StageMask       = "mask"
)

// Error kinds. Match with errors.Is.
var (
	// ErrPreprocess covers unreadable or malformed pipeline input.
	ErrPreprocess = errors.New("preprocess error")
	// ErrInference covers a stage rejecting its input shape, producing a
	// malformed output shape, or the runtime being unavailable.
	ErrInference = errors.New("inference error")
	// ErrDecode covers selected-detection rows of unexpected width.
	ErrDecode = errors.New("decode error")
)

// Failure wraps a stage error with the stage name where it occurred. Every
// failure is fatal to the current pass: no partial detections, no partial
// overlay.
type Failure struct {
	Stage string
	Kind  error
	Cause error
}

func (f *Failure) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("pipeline failed at %s stage: %v: %v", f.Stage, f.Kind, f.Cause)
	}
	return fmt.Sprintf("pipeline failed at %s stage: %v", f.Stage, f.Kind)
}

func (f *Failure) Unwrap() []error {
	if f.Cause != nil {
		return []error{f.Kind, f.Cause}
	}
	return []error{f.Kind}
}

func failf(stage string, kind error, format string, args ...interface{}) error {
	return &Failure{
		Stage: stage,
		Kind:  kind,
		Cause: fmt.Errorf(format, args...),
	}
}

func fail(stage string, kind error, cause error) error {
	return &Failure{Stage: stage, Kind: kind, Cause: cause}
}
