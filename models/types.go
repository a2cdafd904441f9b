package models

import (
	"image/color"
	"time"
)

// BoundingBox is an axis-aligned box in pixel units. Coordinates are
// non-negative and the box fits inside whichever frame it is expressed in;
// geometry.ClipBox enforces that.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ScaleFactors maps letterboxed model-space coordinates back to the
// padded-square space produced during preprocessing. Note: this is the
// padded-square space, not the original image space — the square side need
// not equal either original dimension.
type ScaleFactors struct {
	XRatio float32
	YRatio float32
}

// Detection is one decoded result row. Immutable after creation; handed to
// the mask stage and then to whatever renders the final output.
type Detection struct {
	Label       string      `json:"label"`
	ClassID     int         `json:"class_id"`
	Probability float32     `json:"probability"`
	Color       color.RGBA  `json:"-"`
	Box         BoundingBox `json:"box"`
}

// ProcessingTimings holds per-stage durations for a single pass, logged in
// debug mode.
type ProcessingTimings struct {
	RequestID   string
	ImageDecode time.Duration
	Preprocess  time.Duration
	Detect      time.Duration
	Select      time.Duration
	Mask        time.Duration
	Total       time.Duration
}
