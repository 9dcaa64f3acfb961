package verify

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"faceattend/internal/attendance"
	"faceattend/internal/capture"
	"faceattend/internal/enroll"
	"faceattend/internal/match"
	"faceattend/internal/vision"
)

type fakeSource struct {
	mu     sync.Mutex
	closed bool
}

func (s *fakeSource) Grab(ctx context.Context) (vision.Frame, error) {
	select {
	case <-ctx.Done():
		return vision.Frame{}, ctx.Err()
	default:
	}
	return vision.Frame{Data: []byte{0xff}, CapturedAt: time.Now()}, nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeDetector struct {
	mu        sync.Mutex
	script    [][]vision.Face
	calls     int
	warmupErr error
}

func (d *fakeDetector) Warmup(context.Context) error { return d.warmupErr }

func (d *fakeDetector) Detect(context.Context, vision.Frame) ([]vision.Face, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.calls
	if i >= len(d.script) {
		i = len(d.script) - 1
	}
	d.calls++
	return d.script[i], nil
}

func (d *fakeDetector) detectCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type fakeRecorder struct {
	checkIns  int
	checkOuts int
	err       error
	record    attendance.Record
}

func (r *fakeRecorder) CheckIn(context.Context, string) (attendance.Record, error) {
	r.checkIns++
	return r.record, r.err
}

func (r *fakeRecorder) CheckOut(context.Context, string) (attendance.Record, error) {
	r.checkOuts++
	return r.record, r.err
}

type memCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func newMemCounter() *memCounter { return &memCounter{counts: make(map[string]int)} }

func (c *memCounter) Incr(_ context.Context, id string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[id]++
	return c.counts[id], nil
}

func (c *memCounter) Reset(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, id)
	return nil
}

func faceAt(distance float64) vision.Face {
	sim := 1 - distance
	return vision.Face{Embedding: vision.Embedding{float32(sim), float32(math.Sqrt(1 - sim*sim))}}
}

func enrolledStore(t *testing.T, id string) enroll.Store {
	t.Helper()
	mem := enroll.NewMemory(2)
	if err := mem.Put(context.Background(), id, vision.Embedding{1, 0}); err != nil {
		t.Fatal(err)
	}
	return mem
}

func newVerifySession(t *testing.T, det *fakeDetector, store enroll.Store, rec AttendanceRecorder, cfg Config) (*Session, *fakeSource) {
	t.Helper()
	src := &fakeSource{}
	if cfg.IdentityID == "" {
		cfg.IdentityID = "emp-1"
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeVerify
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Millisecond
	}
	open := func(context.Context) (capture.FrameSource, error) { return src, nil }
	return New(cfg, open, det, match.New(0.30), store, rec), src
}

func TestNoEnrollmentScoresZeroFrames(t *testing.T) {
	det := &fakeDetector{script: [][]vision.Face{{faceAt(0)}}}
	sess, src := newVerifySession(t, det, enroll.NewMemory(2), &fakeRecorder{}, Config{})

	res, err := sess.Run(context.Background())
	if !errors.Is(err, ErrNoEnrollment) {
		t.Fatalf("err = %v; want ErrNoEnrollment", err)
	}
	if res.State != StateFailed {
		t.Errorf("state = %s; want failed", res.State)
	}
	if det.detectCalls() != 0 {
		t.Errorf("%d frames scored; want 0", det.detectCalls())
	}
	if src.isClosed() {
		t.Errorf("device was acquired before enrollment check")
	}
}

func TestVerifyAcceptChecksIn(t *testing.T) {
	det := &fakeDetector{script: [][]vision.Face{{faceAt(0.25)}}}
	rec := &fakeRecorder{record: attendance.Record{Date: "2026-03-02", Status: attendance.StatusPresent}}
	sess, src := newVerifySession(t, det, enrolledStore(t, "emp-1"), rec, Config{Purpose: PurposeCheckIn})

	res, err := sess.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.State != StateSucceeded {
		t.Fatalf("state = %s; want succeeded", res.State)
	}
	if rec.checkIns != 1 || rec.checkOuts != 0 {
		t.Errorf("transitions: %d check-ins, %d check-outs; want 1, 0", rec.checkIns, rec.checkOuts)
	}
	if res.Record == nil || res.Record.Status != attendance.StatusPresent {
		t.Errorf("record = %+v; want present", res.Record)
	}
	if math.Abs(res.Confidence-0.75) > 1e-3 {
		t.Errorf("confidence = %.4f; want 0.75", res.Confidence)
	}
	if !src.isClosed() {
		t.Errorf("device not released after success")
	}
}

func TestVerifyCheckOutPurpose(t *testing.T) {
	det := &fakeDetector{script: [][]vision.Face{{faceAt(0)}}}
	rec := &fakeRecorder{}
	sess, _ := newVerifySession(t, det, enrolledStore(t, "emp-1"), rec, Config{Purpose: PurposeCheckOut})

	if _, err := sess.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if rec.checkOuts != 1 || rec.checkIns != 0 {
		t.Errorf("transitions: %d check-ins, %d check-outs; want 0, 1", rec.checkIns, rec.checkOuts)
	}
}

func TestMultipleFacesNeverMatched(t *testing.T) {
	det := &fakeDetector{script: [][]vision.Face{
		{faceAt(0), faceAt(0.9)}, // ambiguous frame first
		{faceAt(0)},
	}}
	rec := &fakeRecorder{}
	sess, _ := newVerifySession(t, det, enrolledStore(t, "emp-1"), rec, Config{Purpose: PurposeCheckIn})

	var msgs []string
	var mu sync.Mutex
	sess.WithMessageFunc(func(m string) {
		mu.Lock()
		msgs = append(msgs, m)
		mu.Unlock()
	})

	res, err := sess.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.State != StateSucceeded {
		t.Fatalf("state = %s; want succeeded", res.State)
	}
	if res.Distance != 0 {
		t.Errorf("matched distance = %v; the ambiguous frame must not have been scored", res.Distance)
	}
	mu.Lock()
	defer mu.Unlock()
	found := false
	for _, m := range msgs {
		if m == MultipleFacesMessage(2) {
			found = true
		}
	}
	if !found {
		t.Errorf("no multiple-faces prompt in %q", msgs)
	}
}

func TestRejectThenAccept(t *testing.T) {
	det := &fakeDetector{script: [][]vision.Face{
		{faceAt(0.8)},  // stranger, rejected
		{faceAt(0.45)}, // poor framing, rejected
		{faceAt(0.1)},  // subject
	}}
	rec := &fakeRecorder{}
	sess, _ := newVerifySession(t, det, enrolledStore(t, "emp-1"), rec, Config{Purpose: PurposeCheckIn})

	var msgs []string
	var mu sync.Mutex
	sess.WithMessageFunc(func(m string) {
		mu.Lock()
		msgs = append(msgs, m)
		mu.Unlock()
	})

	res, err := sess.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.State != StateSucceeded || rec.checkIns != 1 {
		t.Fatalf("state = %s, check-ins = %d; rejects must keep the loop running", res.State, rec.checkIns)
	}

	mu.Lock()
	defer mu.Unlock()
	var sawNoMatch, sawLowSim bool
	for _, m := range msgs {
		if m == MsgNoMatch {
			sawNoMatch = true
		}
		if m == MsgLowSimilarity {
			sawLowSim = true
		}
	}
	if !sawNoMatch || !sawLowSim {
		t.Errorf("messages %q missing rejection tiers", msgs)
	}
}

func TestLockoutAfterMaxRejects(t *testing.T) {
	det := &fakeDetector{script: [][]vision.Face{{faceAt(0.9)}}}
	rec := &fakeRecorder{}
	sess, src := newVerifySession(t, det, enrolledStore(t, "emp-1"), rec, Config{
		Purpose:    PurposeCheckIn,
		MaxRejects: 3,
	})
	counter := newMemCounter()
	sess.WithRejectCounter(counter)

	res, err := sess.Run(context.Background())
	if !errors.Is(err, ErrLockedOut) {
		t.Fatalf("err = %v; want ErrLockedOut", err)
	}
	if res.State != StateFailed {
		t.Errorf("state = %s; want failed", res.State)
	}
	if got := counter.counts["emp-1"]; got != 3 {
		t.Errorf("reject count = %d; want 3", got)
	}
	if rec.checkIns != 0 {
		t.Errorf("locked-out session recorded attendance")
	}
	if !src.isClosed() {
		t.Errorf("device not released after lockout")
	}
}

func TestAcceptResetsRejectCount(t *testing.T) {
	det := &fakeDetector{script: [][]vision.Face{
		{faceAt(0.9)},
		{faceAt(0)},
	}}
	sess, _ := newVerifySession(t, det, enrolledStore(t, "emp-1"), &fakeRecorder{}, Config{
		Purpose:    PurposeCheckIn,
		MaxRejects: 5,
	})
	counter := newMemCounter()
	sess.WithRejectCounter(counter)

	if _, err := sess.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := counter.counts["emp-1"]; got != 0 {
		t.Errorf("reject count after accept = %d; want 0", got)
	}
}

func TestCancelReleasesDevice(t *testing.T) {
	det := &fakeDetector{script: [][]vision.Face{nil}} // never a face
	sess, src := newVerifySession(t, det, enrolledStore(t, "emp-1"), &fakeRecorder{}, Config{Purpose: PurposeCheckIn})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	res, err := sess.Run(ctx)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v; want ErrCancelled", err)
	}
	if res.State != StateCancelled {
		t.Errorf("state = %s; want cancelled", res.State)
	}
	if !src.isClosed() {
		t.Errorf("device not released on cancellation")
	}
}

func TestDeviceOpenFailureIsTerminal(t *testing.T) {
	det := &fakeDetector{script: [][]vision.Face{{faceAt(0)}}}
	cfg := Config{IdentityID: "emp-1", Mode: ModeVerify, Purpose: PurposeCheckIn, Interval: time.Millisecond}
	open := func(context.Context) (capture.FrameSource, error) {
		return nil, errors.New("camera busy")
	}
	sess := New(cfg, open, det, match.New(0.30), enrolledStore(t, "emp-1"), &fakeRecorder{})

	_, err := sess.Run(context.Background())
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("err = %v; want ErrDeviceUnavailable", err)
	}
	if sess.State() != StateFailed {
		t.Errorf("state = %s; want failed", sess.State())
	}
}

func TestWarmupFailureIsTerminal(t *testing.T) {
	det := &fakeDetector{warmupErr: errors.New("model missing")}
	sess, _ := newVerifySession(t, det, enrolledStore(t, "emp-1"), &fakeRecorder{}, Config{Purpose: PurposeCheckIn})

	_, err := sess.Run(context.Background())
	if !errors.Is(err, ErrAssetLoad) {
		t.Fatalf("err = %v; want ErrAssetLoad", err)
	}
	if det.detectCalls() != 0 {
		t.Errorf("frames scored after warmup failure")
	}
}

func TestRegisterModeStoresEmbedding(t *testing.T) {
	det := &fakeDetector{script: [][]vision.Face{
		nil, // prompt repositioning first
		{faceAt(0.0)},
	}}
	store := enroll.NewMemory(2)
	sess, src := newVerifySession(t, det, store, nil, Config{Mode: ModeRegister})

	res, err := sess.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.State != StateSucceeded {
		t.Fatalf("state = %s; want succeeded", res.State)
	}
	emb, ok, err := store.Get(context.Background(), "emp-1")
	if err != nil || !ok {
		t.Fatalf("embedding not stored: ok=%v err=%v", ok, err)
	}
	if len(emb) != 2 {
		t.Errorf("stored embedding dim = %d; want 2", len(emb))
	}
	if !src.isClosed() {
		t.Errorf("device not released after enrollment")
	}
}

func TestReenrollmentReplacesEmbedding(t *testing.T) {
	store := enroll.NewMemory(2)
	ctx := context.Background()
	if err := store.Put(ctx, "emp-1", vision.Embedding{0, 1}); err != nil {
		t.Fatal(err)
	}

	det := &fakeDetector{script: [][]vision.Face{{faceAt(0)}}}
	sess, _ := newVerifySession(t, det, store, nil, Config{Mode: ModeRegister})
	if _, err := sess.Run(ctx); err != nil {
		t.Fatal(err)
	}

	emb, _, err := store.Get(ctx, "emp-1")
	if err != nil {
		t.Fatal(err)
	}
	if emb[0] != 1 {
		t.Errorf("re-enrollment did not replace the reference: %v", emb)
	}
}

func TestTransitionErrorSurfaces(t *testing.T) {
	det := &fakeDetector{script: [][]vision.Face{{faceAt(0)}}}
	rec := &fakeRecorder{err: attendance.ErrAlreadyCheckedIn}
	sess, _ := newVerifySession(t, det, enrolledStore(t, "emp-1"), rec, Config{Purpose: PurposeCheckIn})

	res, err := sess.Run(context.Background())
	if !errors.Is(err, attendance.ErrAlreadyCheckedIn) {
		t.Fatalf("err = %v; want ErrAlreadyCheckedIn", err)
	}
	// the biometric verification itself still succeeded
	if res.State != StateSucceeded {
		t.Errorf("state = %s; want succeeded", res.State)
	}
	if res.Record != nil {
		t.Errorf("failed transition returned a record")
	}
}
