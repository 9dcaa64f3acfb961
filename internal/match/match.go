package match

import (
	"math"

	"faceattend/internal/vision"
)

// DefaultThreshold is the accept cutoff on cosine distance. It is stricter
// than typical consumer face-unlock because an accept authorizes an
// attendance record with payroll consequences.
const DefaultThreshold = 0.30

// NoMatchDistance is the tier boundary above which a rejection is reported
// as "no match" rather than a framing/lighting problem.
const NoMatchDistance = 0.60

// Decision is the matcher's verdict on a live/enrolled embedding pair.
type Decision int

const (
	Reject Decision = iota
	Accept
)

// Result describes one comparison. Confidence is 1 - Distance; it is a
// similarity heuristic, not a calibrated probability.
type Result struct {
	Distance   float64
	Confidence float64
	Decision   Decision
}

// LowSimilarity reports whether a rejected result is close enough that
// retrying with better framing or lighting is worth suggesting. The tier is
// used for user messaging only, never for the accept decision.
func (r Result) LowSimilarity() bool {
	return r.Decision == Reject && r.Distance < NoMatchDistance
}

// Matcher compares a live embedding against one enrolled reference.
type Matcher struct {
	Threshold float64
}

// New creates a matcher; threshold <= 0 selects DefaultThreshold.
func New(threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{Threshold: threshold}
}

// Compare scores the pair and decides. Accept iff distance <= threshold.
func (m *Matcher) Compare(live, enrolled vision.Embedding) Result {
	d := Distance(live, enrolled)
	res := Result{Distance: d, Confidence: 1 - d}
	if d <= m.Threshold {
		res.Decision = Accept
	}
	return res
}

// Distance computes the cosine distance between two embeddings.
// Returns a value between 0 (identical) and 2 (opposite); mismatched or
// zero vectors score maximum distance.
func Distance(a, b vision.Embedding) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2.0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return 1 - sim
}
