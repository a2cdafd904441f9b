package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/segvista/seg-overlay-service/models"
	"github.com/segvista/seg-overlay-service/onnx"
	"github.com/segvista/seg-overlay-service/palette"
	"github.com/segvista/seg-overlay-service/pipeline"
	"github.com/segvista/seg-overlay-service/preprocess"
	"github.com/segvista/seg-overlay-service/render"
)

const (
	RetryAttempts = 3
	RetryDelayMs  = 100
)

var (
	debugMode bool
)

func init() {
	debugMode = os.Getenv("DEBUG") == "true"
}

func logTimings(t *models.ProcessingTimings) {
	if debugMode {
		log.Printf("[DEBUG] RequestID: %s - Processing times:\n"+
			"\tImage Decode: %v\n"+
			"\tPreprocess:  %v\n"+
			"\tDetect:      %v\n"+
			"\tSelect:      %v\n"+
			"\tMask:        %v\n"+
			"\tTotal:       %v",
			t.RequestID,
			t.ImageDecode,
			t.Preprocess,
			t.Detect,
			t.Select,
			t.Mask,
			t.Total)
	}
}

type AppState struct {
	Config       *Config
	Pool         *PipelineSessionPool
	PipelineConf pipeline.Config
}

type detectionPayload struct {
	Label       string            `json:"label"`
	Probability float32           `json:"probability"`
	Color       string            `json:"color"`
	Box         models.BoundingBox `json:"box"`
}

type SegmentResponse struct {
	Detections []detectionPayload `json:"detections"`
	Overlay    string             `json:"overlay_png_base64"`
	Width      int                `json:"width"`
	Height     int                `json:"height"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := LoadConfig()

	if err := onnx.Initialize(cfg.OrtLibraryPath); err != nil {
		log.Fatalf("Failed to initialize ONNX environment: %v", err)
	}
	defer onnx.Shutdown()

	pool, err := NewPipelineSessionPool(onnx.SessionConfig{
		DetectorModelPath: cfg.DetectorModelPath,
		SelectorModelPath: cfg.SelectorModelPath,
		MaskModelPath:     cfg.MaskModelPath,
		NumThreads:        cfg.NumThreads,
	}, cfg.PoolSize)
	if err != nil {
		log.Fatalf("Failed to create pipeline session pool: %v", err)
	}
	defer pool.Destroy()

	pal := palette.New()
	state := &AppState{
		Config: cfg,
		Pool:   pool,
		PipelineConf: pipeline.Config{
			ModelWidth:     cfg.ModelWidth,
			ModelHeight:    cfg.ModelHeight,
			TopK:           cfg.TopK,
			IOUThreshold:   float32(cfg.IOUThreshold),
			ScoreThreshold: float32(cfg.ScoreThreshold),
			Classes:        models.CocoClasses,
			MaskAlpha:      uint8(cfg.MaskAlpha),
			Palette:        pal,
		},
	}

	r := mux.NewRouter()
	r.HandleFunc("/segment", handleSegment(state)).Methods("POST")
	state.addMonitoringRoutes(r)

	srv := &http.Server{
		Handler:      r,
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		WriteTimeout: 60 * time.Second,
		ReadTimeout:  60 * time.Second,
	}

	log.Printf("Starting server on %s", srv.Addr)
	log.Fatal(srv.ListenAndServe())
}

func handleSegment(state *AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTotal := time.Now()
		requestID := fmt.Sprintf("%d", time.Now().UnixNano())
		timings := &models.ProcessingTimings{RequestID: requestID}

		ctx := r.Context()
		contentType := r.Header.Get("Content-Type")

		var imgBytes []byte
		var err error

		switch {
		case strings.HasPrefix(contentType, "application/json"):
			imgBytes, err = handleJSONRequest(r)
		case strings.HasPrefix(contentType, "multipart/form-data"):
			imgBytes, err = handleMultipartRequest(r)
		default:
			imgBytes, err = handleRawRequest(r)
		}

		if err != nil {
			sendErrorResponse(w, "invalid_request", err.Error(), http.StatusBadRequest)
			return
		}

		// Decode image
		decodeStart := time.Now()
		img, err := decodeImage(imgBytes)
		timings.ImageDecode = time.Since(decodeStart)
		if err != nil {
			sendErrorResponse(w, "invalid_image", "Failed to decode image", http.StatusBadRequest)
			return
		}

		// Letterbox into the model's input space
		prepStart := time.Now()
		input, scale, err := preprocess.Letterbox(img, state.Config.ModelWidth, state.Config.ModelHeight, preprocess.DefaultStride)
		timings.Preprocess = time.Since(prepStart)
		if err != nil {
			sendErrorResponse(w, "preprocess_error", err.Error(), http.StatusUnprocessableEntity)
			return
		}

		// Acquire a session from the pool
		session, err := state.Pool.Acquire(ctx)
		if err != nil {
			sendErrorResponse(w, "session_error", err.Error(), http.StatusServiceUnavailable)
			return
		}
		defer state.Pool.Release(session)

		pass, err := pipeline.New(state.PipelineConf,
			session.Detector(), session.Selector(), session.MaskGenerator())
		if err != nil {
			sendErrorResponse(w, "config_error", err.Error(), http.StatusInternalServerError)
			return
		}

		result, err := runPass(ctx, pass, input, scale, timings)
		if err != nil {
			sendPipelineError(w, err)
			return
		}

		overlayB64, err := encodeOverlay(result.Overlay)
		if err != nil {
			sendErrorResponse(w, "render_error", err.Error(), http.StatusInternalServerError)
			return
		}

		timings.Total = time.Since(startTotal)
		logTimings(timings)

		response := SegmentResponse{
			Detections: make([]detectionPayload, 0, len(result.Detections)),
			Overlay:    overlayB64,
			Width:      state.Config.ModelWidth,
			Height:     state.Config.ModelHeight,
		}
		for _, det := range result.Detections {
			response.Detections = append(response.Detections, detectionPayload{
				Label:       det.Label,
				Probability: det.Probability,
				Color:       fmt.Sprintf("#%02X%02X%02X", det.Color.R, det.Color.G, det.Color.B),
				Box:         det.Box,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}

// runPass retries whole passes; the pipeline itself never retries.
func runPass(ctx context.Context, pass *pipeline.Pipeline, input *models.Tensor[float32], scale models.ScaleFactors, timings *models.ProcessingTimings) (*pipeline.Result, error) {
	var lastErr error

	for attempt := 1; attempt <= RetryAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			result, err := pass.Run(ctx, input, scale, timings)
			if err == nil {
				return result, nil
			}
			lastErr = err

			if attempt < RetryAttempts {
				time.Sleep(time.Duration(attempt) * RetryDelayMs * time.Millisecond)
				continue
			}
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("unknown error")
}

func sendPipelineError(w http.ResponseWriter, err error) {
	var failure *pipeline.Failure
	details := ""
	if errors.As(err, &failure) {
		details = fmt.Sprintf("stage: %s", failure.Stage)
	}

	status := http.StatusInternalServerError
	code := "processing_error"
	switch {
	case errors.Is(err, pipeline.ErrPreprocess):
		status = http.StatusBadRequest
		code = "preprocess_error"
	case errors.Is(err, pipeline.ErrDecode):
		code = "decode_error"
	case errors.Is(err, pipeline.ErrInference):
		code = "inference_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusRequestTimeout
		code = "canceled"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Code:    code,
		Message: err.Error(),
		Details: details,
	})
}

func (s *AppState) addMonitoringRoutes(r *mux.Router) {
	r.HandleFunc("/metrics", s.handleMetrics).Methods("GET")
}

func (s *AppState) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	metrics := s.Pool.GetMetrics()
	response := map[string]interface{}{
		"pool_size":        s.Pool.size,
		"sessions_in_use":  metrics.InUse,
		"total_acquired":   metrics.TotalAcquired,
		"total_released":   metrics.TotalReleased,
		"acquire_failures": metrics.AcquireFailures,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func handleJSONRequest(r *http.Request) ([]byte, error) {
	var req struct {
		Image string `json:"image"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(req.Image)
}

func handleMultipartRequest(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		return nil, err
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}

func handleRawRequest(r *http.Request) ([]byte, error) {
	return io.ReadAll(r.Body)
}

func decodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

func encodeOverlay(overlay *models.Tensor[uint8]) (string, error) {
	img, err := render.OverlayImage(overlay)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode overlay: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func sendErrorResponse(w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Code:    code,
		Message: message,
	})
}
