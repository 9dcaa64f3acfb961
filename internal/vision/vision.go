package vision

import (
	"context"
	"image"
	"time"
)

// Embedding is a fixed-length face feature vector. Its dimension is set by
// the detector's model version; all embeddings compared against each other
// must come from the same model.
type Embedding []float32

// Face is one detected face region within a frame.
type Face struct {
	Embedding Embedding
	Box       image.Rectangle
	Score     float64
}

// Frame is a single captured image, encoded (JPEG or PNG) as delivered by
// the frame source.
type Frame struct {
	Data       []byte
	CapturedAt time.Time
}

// Detector locates faces in a frame and extracts their embeddings.
// Implementations must be safe for sequential use; callers never issue
// concurrent Detect calls for the same capture device.
type Detector interface {
	// Warmup prepares model assets. It must be called before Detect;
	// a Warmup failure is not retryable within a session.
	Warmup(ctx context.Context) error
	Detect(ctx context.Context, frame Frame) ([]Face, error)
}
