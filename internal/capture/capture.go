package capture

import (
	"context"
	"image"
	"time"

	"faceattend/internal/vision"
)

// FrameSource is an exclusively owned capture device. Grab blocks until the
// next frame is available. Close releases the device and must be safe to call
// exactly once.
type FrameSource interface {
	Grab(ctx context.Context) (vision.Frame, error)
	Close() error
}

// EventKind discriminates detection outcomes.
type EventKind int

const (
	// EventNoFace means the frame contained no detectable face.
	EventNoFace EventKind = iota
	// EventSingleFace carries an embedding ready for matching or enrollment.
	EventSingleFace
	// EventMultipleFaces means the frame was ambiguous. Ambiguous frames are
	// never scored: no embedding is extracted when more than one face is
	// present, so a second person in frame can never ride along on a match.
	EventMultipleFaces
)

// Event is the outcome of scoring one frame. Embedding and Box are set only
// for EventSingleFace; Count only for EventMultipleFaces.
type Event struct {
	Kind      EventKind
	Embedding vision.Embedding
	Box       image.Rectangle
	Count     int
}

// Loop drives a frame source through the detector one cycle at a time.
type Loop struct {
	source   FrameSource
	detector vision.Detector
	interval time.Duration
	err      error
}

// NewLoop builds a loop over an already-acquired frame source.
func NewLoop(source FrameSource, detector vision.Detector, interval time.Duration) *Loop {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &Loop{source: source, detector: detector, interval: interval}
}

// Run emits one Event per detection cycle until ctx is cancelled or the
// device fails. The frame source is closed on every exit path before the
// channel closes, so a receiver that has drained the channel knows the
// device has been released. At most one inference runs at a time; the next
// cycle starts only after the previous result has been delivered and the
// interval has elapsed.
func (l *Loop) Run(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		defer l.source.Close()

		timer := time.NewTimer(0)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}

			frame, err := l.source.Grab(ctx)
			if err != nil {
				if ctx.Err() == nil {
					l.err = err
				}
				return
			}

			faces, err := l.detector.Detect(ctx, frame)
			if err != nil {
				if ctx.Err() == nil {
					l.err = err
				}
				return
			}

			evt := classify(faces)
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			}

			timer.Reset(l.interval)
		}
	}()
	return out
}

// Err reports the device or detector failure that stopped the loop, if any.
// Valid only after the event channel has closed.
func (l *Loop) Err() error {
	return l.err
}

func classify(faces []vision.Face) Event {
	switch len(faces) {
	case 0:
		return Event{Kind: EventNoFace}
	case 1:
		return Event{Kind: EventSingleFace, Embedding: faces[0].Embedding, Box: faces[0].Box}
	default:
		return Event{Kind: EventMultipleFaces, Count: len(faces)}
	}
}
