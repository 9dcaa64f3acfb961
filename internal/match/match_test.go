package match

import (
	"math"
	"testing"

	"faceattend/internal/vision"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     vision.Embedding
		expected float64
	}{
		{"identical", vision.Embedding{1, 0, 0}, vision.Embedding{1, 0, 0}, 0},
		{"identical scaled", vision.Embedding{1, 0, 0}, vision.Embedding{5, 0, 0}, 0},
		{"orthogonal", vision.Embedding{1, 0}, vision.Embedding{0, 1}, 1},
		{"opposite", vision.Embedding{1, 0}, vision.Embedding{-1, 0}, 2},
		{"dimension mismatch", vision.Embedding{1, 0}, vision.Embedding{1, 0, 0}, 2},
		{"empty", vision.Embedding{}, vision.Embedding{}, 2},
		{"zero vector", vision.Embedding{0, 0}, vision.Embedding{1, 0}, 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Distance(tc.a, tc.b)
			if math.Abs(got-tc.expected) > 1e-6 {
				t.Errorf("Distance() = %v; want %v", got, tc.expected)
			}
		})
	}
}

// embeddingAtDistance returns a unit vector whose cosine distance from
// (1, 0) is d.
func embeddingAtDistance(d float64) vision.Embedding {
	sim := 1 - d
	return vision.Embedding{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

func TestCompareDecision(t *testing.T) {
	enrolled := vision.Embedding{1, 0}
	m := New(0) // DefaultThreshold

	tests := []struct {
		name     string
		distance float64
		decision Decision
	}{
		{"same identity", 0.05, Accept},
		{"close match", 0.25, Accept},
		{"just over threshold", 0.35, Reject},
		{"distinct identity", 0.80, Reject},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := m.Compare(embeddingAtDistance(tc.distance), enrolled)
			if res.Decision != tc.decision {
				t.Fatalf("distance %.2f: decision = %v; want %v (got distance %.4f)",
					tc.distance, res.Decision, tc.decision, res.Distance)
			}
			if math.Abs(res.Distance-tc.distance) > 1e-3 {
				t.Errorf("distance = %.4f; want %.2f", res.Distance, tc.distance)
			}
			if math.Abs(res.Confidence-(1-res.Distance)) > 1e-9 {
				t.Errorf("confidence = %.4f; want 1 - distance = %.4f", res.Confidence, 1-res.Distance)
			}
		})
	}
}

func TestCompareAcceptsAtThreshold(t *testing.T) {
	// the rule is distance <= threshold, so an exact hit accepts
	m := New(0.30)
	res := m.Compare(vision.Embedding{1, 0}, vision.Embedding{1, 0})
	if res.Decision != Accept {
		t.Fatalf("zero distance rejected")
	}

	m = New(1.0)
	res = m.Compare(vision.Embedding{1, 0}, vision.Embedding{0, 1})
	if res.Distance != 1.0 {
		t.Fatalf("orthogonal distance = %v; want exactly 1", res.Distance)
	}
	if res.Decision != Accept {
		t.Errorf("distance equal to threshold must accept")
	}
}

func TestRejectionTiers(t *testing.T) {
	m := New(0.30)

	low := m.Compare(embeddingAtDistance(0.45), vision.Embedding{1, 0})
	if low.Decision != Reject || !low.LowSimilarity() {
		t.Errorf("distance 0.45 should reject as low similarity; got %+v", low)
	}

	far := m.Compare(embeddingAtDistance(0.80), vision.Embedding{1, 0})
	if far.Decision != Reject || far.LowSimilarity() {
		t.Errorf("distance 0.80 should reject as no match; got %+v", far)
	}

	accepted := m.Compare(vision.Embedding{1, 0}, vision.Embedding{1, 0})
	if accepted.LowSimilarity() {
		t.Errorf("accepted result must not report a rejection tier")
	}
}
