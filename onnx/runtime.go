// Package onnx backs the pipeline's three stages with ONNX Runtime
// sessions: the segmentation model, the NMS helper model and the mask
// compositing helper model the original tooling exports alongside it.
package onnx

import (
	"fmt"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	initOnce sync.Once
	initErr  error
)

// Initialize loads the ONNX Runtime shared library and sets up the
// environment. Safe to call more than once; only the first call's library
// path is used.
func Initialize(libraryPath string) error {
	if libraryPath == "" {
		libraryPath = DefaultLibraryPath()
	}
	initOnce.Do(func() {
		ort.SetSharedLibraryPath(libraryPath)
		initErr = ort.InitializeEnvironment()
	})
	if initErr != nil {
		return fmt.Errorf("initialize onnxruntime environment: %w", initErr)
	}
	return nil
}

// Shutdown tears the environment down. Call once at process exit.
func Shutdown() {
	ort.DestroyEnvironment()
}

// DefaultLibraryPath picks the ONNX Runtime library name for the current
// platform, relative to a ./lib directory next to the binary.
func DefaultLibraryPath() string {
	switch runtime.GOOS {
	case "windows":
		return "./lib/onnxruntime.dll"
	case "darwin":
		return fmt.Sprintf("./lib/libonnxruntime_%s.dylib", runtime.GOARCH)
	default:
		return fmt.Sprintf("./lib/libonnxruntime_%s.so", runtime.GOARCH)
	}
}

func newSessionOptions(numThreads int) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}
	if err := options.SetIntraOpNumThreads(numThreads); err != nil {
		options.Destroy()
		return nil, err
	}
	if err := options.SetInterOpNumThreads(numThreads); err != nil {
		options.Destroy()
		return nil, err
	}
	return options, nil
}
