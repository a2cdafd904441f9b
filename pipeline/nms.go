package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/segvista/seg-overlay-service/models"
)

// NMSSelector is an in-process Selector: class-aware non-max suppression
// over the detector's raw channel-major output [1, channels, anchors]. It
// keeps at most TopK boxes per class, so the output never exceeds
// TopK × NumClasses rows, each row a full transposed anchor column.
type NMSSelector struct{}

type nmsCandidate struct {
	anchor int
	score  float32
	cx, cy float32
	w, h   float32
}

func (NMSSelector) Select(ctx context.Context, raw *models.Tensor[float32], cfg SelectConfig) (*models.Tensor[float32], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if raw.Rank() != 3 || raw.Dim(0) != 1 {
		return nil, fmt.Errorf("raw detections must be shaped [1, c, n], got %v", raw.Shape)
	}
	channels := raw.Dim(1)
	anchors := raw.Dim(2)
	if channels < 4+cfg.NumClasses {
		return nil, fmt.Errorf("raw detections carry %d channels, need at least %d", channels, 4+cfg.NumClasses)
	}

	data := raw.Data
	byClass := make([][]nmsCandidate, cfg.NumClasses)
	for i := 0; i < anchors; i++ {
		classID := 0
		best := data[4*anchors+i]
		for c := 1; c < cfg.NumClasses; c++ {
			if s := data[(4+c)*anchors+i]; s > best {
				best = s
				classID = c
			}
		}
		if best < cfg.ScoreThreshold {
			continue
		}
		byClass[classID] = append(byClass[classID], nmsCandidate{
			anchor: i,
			score:  best,
			cx:     data[0*anchors+i],
			cy:     data[1*anchors+i],
			w:      data[2*anchors+i],
			h:      data[3*anchors+i],
		})
	}

	var kept []nmsCandidate
	for classID := 0; classID < cfg.NumClasses; classID++ {
		cands := byClass[classID]
		sort.Slice(cands, func(i, j int) bool {
			return cands[i].score > cands[j].score
		})

		suppressed := make([]bool, len(cands))
		taken := 0
		for i := 0; i < len(cands) && taken < cfg.TopK; i++ {
			if suppressed[i] {
				continue
			}
			kept = append(kept, cands[i])
			taken++
			for j := i + 1; j < len(cands); j++ {
				if !suppressed[j] && boxIOU(cands[i], cands[j]) > cfg.IOUThreshold {
					suppressed[j] = true
				}
			}
		}
	}

	out := models.NewTensor[float32](1, int64(len(kept)), int64(channels))
	for row, c := range kept {
		for ch := 0; ch < channels; ch++ {
			out.Data[row*channels+ch] = data[ch*anchors+c.anchor]
		}
	}
	return out, nil
}

func boxIOU(a, b nmsCandidate) float32 {
	ax1, ay1, ax2, ay2 := a.cx-a.w/2, a.cy-a.h/2, a.cx+a.w/2, a.cy+a.h/2
	bx1, by1, bx2, by2 := b.cx-b.w/2, b.cy-b.h/2, b.cx+b.w/2, b.cy+b.h/2

	ix := minf(ax2, bx2) - maxf(ax1, bx1)
	iy := minf(ay2, by2) - maxf(ay1, by1)
	if ix <= 0 || iy <= 0 {
		return 0
	}

	inter := ix * iy
	union := a.w*a.h + b.w*b.h - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
