package pipeline

import (
	"fmt"
	"math"

	"github.com/segvista/seg-overlay-service/geometry"
	"github.com/segvista/seg-overlay-service/models"
	"github.com/segvista/seg-overlay-service/palette"
)

// decodeRow turns one selected-detection row into a Detection. The row is
// [cx, cy, w, h, score_0..score_n, coeff...]; everything past the scores is
// mask coefficients and passes through to the mask stage untouched.
func decodeRow(row []float32, numClasses int, scale models.ScaleFactors, maxSize int, pal *palette.Palette, classes []string) (models.Detection, error) {
	if len(row) < 4+numClasses {
		return models.Detection{}, fmt.Errorf("row has %d elements, need at least %d", len(row), 4+numClasses)
	}

	scores := row[4 : 4+numClasses]
	classID := 0
	prob := scores[0]
	for i, s := range scores {
		// Strict greater-than keeps the first index on ties.
		if s > prob {
			prob = s
			classID = i
		}
	}

	// Center form to corner form, clipped in model-output space.
	x := row[0] - row[2]/2
	y := row[1] - row[3]/2
	x, y, w, h := geometry.ClipBoxF(x, y, row[2], row[3], float32(maxSize))

	// Upscale to padded-square units and clip against the same bound.
	box := geometry.ClipBox(models.BoundingBox{
		X:      int(math.Floor(float64(x * scale.XRatio))),
		Y:      int(math.Floor(float64(y * scale.YRatio))),
		Width:  int(math.Floor(float64(w * scale.XRatio))),
		Height: int(math.Floor(float64(h * scale.YRatio))),
	}, maxSize)

	label := fmt.Sprintf("class %d", classID)
	if classID < len(classes) {
		label = classes[classID]
	}

	return models.Detection{
		Label:       label,
		ClassID:     classID,
		Probability: prob,
		Color:       pal.Get(classID),
		Box:         box,
	}, nil
}
