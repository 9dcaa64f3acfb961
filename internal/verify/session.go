package verify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"faceattend/internal/attendance"
	"faceattend/internal/capture"
	"faceattend/internal/enroll"
	"faceattend/internal/match"
	"faceattend/internal/metrics"
	"faceattend/internal/vision"
)

// Mode selects what a session does with a captured face.
type Mode string

const (
	ModeRegister Mode = "register"
	ModeVerify   Mode = "verify"
)

// Purpose selects the attendance transition a verified session unlocks.
type Purpose string

const (
	PurposeCheckIn  Purpose = "check_in"
	PurposeCheckOut Purpose = "check_out"
)

// State of a session. Terminal states are Succeeded, Cancelled and Failed.
type State string

const (
	StateIdle      State = "idle"
	StateLoading   State = "loading"
	StateCapturing State = "capturing"
	StateSucceeded State = "succeeded"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// DeviceOpener acquires the capture device. It is called exactly once per
// session, when the session enters Capturing.
type DeviceOpener func(ctx context.Context) (capture.FrameSource, error)

// AttendanceRecorder is the attendance state machine surface a verify-mode
// session invokes after an accepted match.
type AttendanceRecorder interface {
	CheckIn(ctx context.Context, identityID string) (attendance.Record, error)
	CheckOut(ctx context.Context, identityID string) (attendance.Record, error)
}

// Attempt is one reportable verification outcome, consumed by the audit
// worker.
type Attempt struct {
	ID         string    `json:"id"`
	IdentityID string    `json:"identity_id"`
	Mode       Mode      `json:"mode"`
	Purpose    Purpose   `json:"purpose,omitempty"`
	Outcome    string    `json:"outcome"`
	Distance   *float64  `json:"distance,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Reporter receives attempts. Implementations must not block the session for
// long; queue publishers are the expected shape.
type Reporter interface {
	Report(ctx context.Context, a Attempt)
}

// Config parameterizes a session.
type Config struct {
	IdentityID string
	Mode       Mode
	Purpose    Purpose
	Interval   time.Duration
	// MaxRejects ends the session with ErrLockedOut after this many
	// consecutive rejects; 0 keeps kiosk-style unlimited retries.
	MaxRejects int
}

// Result is the terminal summary of a session run.
type Result struct {
	State      State
	Distance   float64
	Confidence float64
	Record     *attendance.Record
}

// Session composes the capture loop, matcher and stores into one user-facing
// verification run. It owns the capture device for its whole lifetime: the
// device is acquired when entering Capturing and released on every exit path
// before Run returns.
type Session struct {
	cfg         Config
	open        DeviceOpener
	detector    vision.Detector
	matcher     *match.Matcher
	enrollments enroll.Store
	recorder    AttendanceRecorder
	rejects     RejectCounter
	reporter    Reporter
	onMessage   func(string)

	mu    sync.Mutex
	state State
}

// New builds a session. recorder may be nil in register mode; reporter and
// onMessage are optional.
func New(cfg Config, open DeviceOpener, detector vision.Detector, matcher *match.Matcher,
	enrollments enroll.Store, recorder AttendanceRecorder) *Session {
	if cfg.Interval <= 0 {
		cfg.Interval = 200 * time.Millisecond
	}
	return &Session{
		cfg:         cfg,
		open:        open,
		detector:    detector,
		matcher:     matcher,
		enrollments: enrollments,
		recorder:    recorder,
		rejects:     NopCounter{},
		state:       StateIdle,
	}
}

// WithRejectCounter installs a lockout counter.
func (s *Session) WithRejectCounter(rc RejectCounter) *Session {
	s.rejects = rc
	return s
}

// WithReporter installs an attempt reporter.
func (s *Session) WithReporter(r Reporter) *Session {
	s.reporter = r
	return s
}

// WithMessageFunc installs a user-facing prompt callback.
func (s *Session) WithMessageFunc(fn func(string)) *Session {
	s.onMessage = fn
	return s
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) message(msg string) {
	if s.onMessage != nil {
		s.onMessage(msg)
	}
}

func (s *Session) report(ctx context.Context, outcome string, distance *float64) {
	if s.reporter == nil {
		return
	}
	s.reporter.Report(ctx, Attempt{
		ID:         uuid.NewString(),
		IdentityID: s.cfg.IdentityID,
		Mode:       s.cfg.Mode,
		Purpose:    s.cfg.Purpose,
		Outcome:    outcome,
		Distance:   distance,
		OccurredAt: time.Now().UTC(),
	})
}

func (s *Session) fail(ctx context.Context, outcome string, err error) (Result, error) {
	s.setState(StateFailed)
	s.report(ctx, outcome, nil)
	metrics.SessionsTotal.WithLabelValues(string(s.cfg.Mode), outcome).Inc()
	return Result{State: StateFailed}, err
}

// Run executes the session to a terminal state. Cancelling ctx cancels the
// session; the device is guaranteed released before Run returns. When an
// accepted match reaches the attendance transition and the transition itself
// fails (already checked in, not checked in yet), the returned Result still
// carries the match scores and the error carries the transition failure.
func (s *Session) Run(ctx context.Context) (Result, error) {
	s.setState(StateLoading)
	if err := s.detector.Warmup(ctx); err != nil {
		return s.fail(ctx, "asset_error", fmt.Errorf("%w: %v", ErrAssetLoad, err))
	}

	var enrolled vision.Embedding
	if s.cfg.Mode == ModeVerify {
		emb, ok, err := s.enrollments.Get(ctx, s.cfg.IdentityID)
		if err != nil {
			return s.fail(ctx, "enrollment_error", fmt.Errorf("enrollment lookup: %w", err))
		}
		if !ok {
			// surfaced before any frame is scored
			return s.fail(ctx, "no_enrollment", ErrNoEnrollment)
		}
		enrolled = emb
	}

	source, err := s.open(ctx)
	if err != nil {
		return s.fail(ctx, "device_error", fmt.Errorf("%w: %v", ErrDeviceUnavailable, err))
	}

	loopCtx, stop := context.WithCancel(ctx)
	defer stop()
	loop := capture.NewLoop(source, s.detector, s.cfg.Interval)
	events := loop.Run(loopCtx)

	s.setState(StateCapturing)
	s.message(MsgHold)

	// drain stops the loop and blocks until it has closed the device.
	drain := func() {
		stop()
		for range events {
		}
	}

	for evt := range events {
		switch evt.Kind {
		case capture.EventNoFace:
			s.message(MsgNoFace)

		case capture.EventMultipleFaces:
			// ambiguous frame: no matcher call, loop continues
			s.message(MultipleFacesMessage(evt.Count))

		case capture.EventSingleFace:
			if s.cfg.Mode == ModeRegister {
				if err := s.enrollments.Put(ctx, s.cfg.IdentityID, evt.Embedding); err != nil {
					drain()
					return s.fail(ctx, "enrollment_error", fmt.Errorf("store enrollment: %w", err))
				}
				drain()
				s.setState(StateSucceeded)
				s.report(ctx, "enrolled", nil)
				metrics.SessionsTotal.WithLabelValues(string(s.cfg.Mode), "succeeded").Inc()
				return Result{State: StateSucceeded}, nil
			}

			res := s.matcher.Compare(evt.Embedding, enrolled)
			metrics.MatchDistance.Observe(res.Distance)
			if res.Decision == match.Accept {
				drain()
				_ = s.rejects.Reset(ctx, s.cfg.IdentityID)
				return s.accepted(ctx, res)
			}

			d := res.Distance
			s.report(ctx, "reject", &d)
			s.message(RejectMessage(res))
			if n, err := s.rejects.Incr(ctx, s.cfg.IdentityID); err == nil &&
				s.cfg.MaxRejects > 0 && n >= s.cfg.MaxRejects {
				drain()
				return s.fail(ctx, "locked_out", ErrLockedOut)
			}
		}
	}

	// loop ended without a decision: cancelled or device failure
	if ctx.Err() != nil {
		s.setState(StateCancelled)
		s.report(context.WithoutCancel(ctx), "cancelled", nil)
		metrics.SessionsTotal.WithLabelValues(string(s.cfg.Mode), "cancelled").Inc()
		return Result{State: StateCancelled}, ErrCancelled
	}
	err = loop.Err()
	return s.fail(ctx, "device_error", fmt.Errorf("%w: %v", ErrDeviceUnavailable, err))
}

func (s *Session) accepted(ctx context.Context, res match.Result) (Result, error) {
	d := res.Distance
	s.report(ctx, "accept", &d)

	var rec attendance.Record
	var err error
	switch s.cfg.Purpose {
	case PurposeCheckOut:
		rec, err = s.recorder.CheckOut(ctx, s.cfg.IdentityID)
	default:
		rec, err = s.recorder.CheckIn(ctx, s.cfg.IdentityID)
	}

	out := Result{
		State:      StateSucceeded,
		Distance:   res.Distance,
		Confidence: res.Confidence,
	}
	s.setState(StateSucceeded)
	metrics.SessionsTotal.WithLabelValues(string(s.cfg.Mode), "succeeded").Inc()
	if err != nil {
		return out, err
	}
	out.Record = &rec
	return out, nil
}
