package main

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the service settings, loaded from the environment with an
// optional .env file.
type Config struct {
	Port int

	DetectorModelPath string
	SelectorModelPath string
	MaskModelPath     string
	OrtLibraryPath    string

	ModelWidth  int
	ModelHeight int

	TopK           int
	IOUThreshold   float64
	ScoreThreshold float64
	MaskAlpha      int

	PoolSize   int
	NumThreads int
}

// LoadConfig reads .env when present and falls back to defaults.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found, using environment values")
	}

	return &Config{
		Port:              getEnvAsInt("PORT", 8080),
		DetectorModelPath: getEnv("DETECTOR_MODEL_PATH", "./models/yolov8n-seg.onnx"),
		SelectorModelPath: getEnv("SELECTOR_MODEL_PATH", ""),
		MaskModelPath:     getEnv("MASK_MODEL_PATH", ""),
		OrtLibraryPath:    getEnv("ORT_LIBRARY_PATH", ""),
		ModelWidth:        getEnvAsInt("MODEL_WIDTH", 640),
		ModelHeight:       getEnvAsInt("MODEL_HEIGHT", 640),
		TopK:              getEnvAsInt("TOPK", 100),
		IOUThreshold:      getEnvAsFloat("IOU_THRESHOLD", 0.45),
		ScoreThreshold:    getEnvAsFloat("SCORE_THRESHOLD", 0.25),
		MaskAlpha:         getEnvAsInt("MASK_ALPHA", 120),
		PoolSize:          getEnvAsInt("POOL_SIZE", DefaultPoolSize),
		NumThreads:        getEnvAsInt("NUM_THREADS", 0),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		log.Printf("Invalid integer for %s, using default %d", key, fallback)
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
		log.Printf("Invalid float for %s, using default %v", key, fallback)
	}
	return fallback
}
