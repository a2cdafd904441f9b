package pipeline

import (
	"context"
	"testing"

	"github.com/segvista/seg-overlay-service/models"
)

// rawTensor builds a channel-major [1, channels, anchors] detector output
// from per-anchor rows.
func rawTensor(t *testing.T, rows [][]float32) *models.Tensor[float32] {
	t.Helper()
	anchors := len(rows)
	channels := len(rows[0])
	out := models.NewTensor[float32](1, int64(channels), int64(anchors))
	for i, row := range rows {
		for c, v := range row {
			out.Data[c*anchors+i] = v
		}
	}
	return out
}

func TestNMSSelectorSuppressesOverlaps(t *testing.T) {
	// Two near-identical class-0 boxes and one distant class-1 box.
	raw := rawTensor(t, [][]float32{
		{10, 10, 8, 8, 0.9, 0.1, 1.0},
		{11, 10, 8, 8, 0.8, 0.1, 2.0},
		{40, 40, 8, 8, 0.05, 0.7, 3.0},
	})

	selected, err := NMSSelector{}.Select(context.Background(), raw, SelectConfig{
		NumClasses:     2,
		TopK:           10,
		IOUThreshold:   0.45,
		ScoreThreshold: 0.25,
	})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	if got := selected.Dim(1); got != 2 {
		t.Fatalf("selected %d rows, want 2 (one per class)", got)
	}
	if got := selected.Dim(2); got != 7 {
		t.Fatalf("row width = %d, want the full 7 channels", got)
	}

	// Class 0's survivor is the higher-scoring anchor, coefficients intact.
	first := selected.Data[:7]
	if first[4] != 0.9 {
		t.Errorf("first row score = %v, want the 0.9 candidate kept", first[4])
	}
	if first[6] != 1.0 {
		t.Errorf("first row coefficient = %v, want 1.0 passed through", first[6])
	}

	second := selected.Data[7:14]
	if second[5] != 0.7 {
		t.Errorf("second row class-1 score = %v, want 0.7", second[5])
	}
}

func TestNMSSelectorScoreThreshold(t *testing.T) {
	raw := rawTensor(t, [][]float32{
		{10, 10, 8, 8, 0.2, 0.1, 0},
		{40, 40, 8, 8, 0.1, 0.15, 0},
	})

	selected, err := NMSSelector{}.Select(context.Background(), raw, SelectConfig{
		NumClasses:     2,
		TopK:           10,
		IOUThreshold:   0.45,
		ScoreThreshold: 0.25,
	})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if got := selected.Dim(1); got != 0 {
		t.Errorf("selected %d rows, want 0 below the score threshold", got)
	}
}

func TestNMSSelectorTopKPerClass(t *testing.T) {
	// Three well-separated class-0 boxes; TopK=2 keeps the best two.
	raw := rawTensor(t, [][]float32{
		{10, 10, 8, 8, 0.9, 0},
		{40, 40, 8, 8, 0.8, 0},
		{80, 80, 8, 8, 0.7, 0},
	})

	selected, err := NMSSelector{}.Select(context.Background(), raw, SelectConfig{
		NumClasses:     2,
		TopK:           2,
		IOUThreshold:   0.45,
		ScoreThreshold: 0.25,
	})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if got := selected.Dim(1); got != 2 {
		t.Fatalf("selected %d rows, want TopK=2", got)
	}
	if selected.Data[4] != 0.9 || selected.Data[6+4] != 0.8 {
		t.Errorf("kept scores = %v, %v; want 0.9 then 0.8", selected.Data[4], selected.Data[10])
	}
}

func TestNMSSelectorRejectsBadShape(t *testing.T) {
	bad := models.NewTensor[float32](1, 5)
	if _, err := (NMSSelector{}).Select(context.Background(), bad, SelectConfig{NumClasses: 2, TopK: 1, IOUThreshold: 0.5, ScoreThreshold: 0.5}); err == nil {
		t.Error("Select should reject a rank-2 tensor")
	}

	narrow := models.NewTensor[float32](1, 5, 10)
	if _, err := (NMSSelector{}).Select(context.Background(), narrow, SelectConfig{NumClasses: 4, TopK: 1, IOUThreshold: 0.5, ScoreThreshold: 0.5}); err == nil {
		t.Error("Select should reject too few channels for the class count")
	}
}
