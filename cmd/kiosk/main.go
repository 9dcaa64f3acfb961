package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"faceattend/internal/apiclient"
	"faceattend/internal/audit"
	"faceattend/internal/capture"
	"faceattend/internal/config"
	"faceattend/internal/match"
	"faceattend/internal/queue"
	"faceattend/internal/store"
	"faceattend/internal/verify"
	"faceattend/internal/vision"
)

// Kiosk runs one verification session end to end: frame source -> detector ->
// matcher -> attendance API. Ctrl-C cancels the session and releases the
// capture device before exit.
func main() {
	var (
		apiURL    = flag.String("api", "http://localhost:8081", "attendance API base URL")
		token     = flag.String("token", "", "bearer token for the identity")
		identity  = flag.String("identity", "", "identity ID (for messages and lockout tracking)")
		mode      = flag.String("mode", "verify", "session mode: register or verify")
		purpose   = flag.String("purpose", "check-in", "verify purpose: check-in or check-out")
		framesDir = flag.String("frames", "", "directory of frames standing in for the camera")
	)
	flag.Parse()

	if *token == "" || *identity == "" || *framesDir == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*apiURL, *token, *identity, *mode, *purpose, *framesDir); err != nil {
		log.Fatalf("session failed: %v", err)
	}
}

func run(apiURL, token, identityID, mode, purpose, framesDir string) error {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("cancelling session...")
		cancel()
	}()

	api := apiclient.New(apiURL, token)
	detector := vision.NewClient(cfg.VisionURL, cfg.VisionSkip, cfg.EmbeddingDim)

	sessCfg := verify.Config{
		IdentityID: identityID,
		Interval:   cfg.CaptureInterval,
		MaxRejects: cfg.MaxRejects,
	}
	switch mode {
	case "register":
		sessCfg.Mode = verify.ModeRegister
	case "verify":
		sessCfg.Mode = verify.ModeVerify
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
	switch purpose {
	case "check-in":
		sessCfg.Purpose = verify.PurposeCheckIn
	case "check-out":
		sessCfg.Purpose = verify.PurposeCheckOut
	default:
		return fmt.Errorf("unknown purpose %q", purpose)
	}

	opener := func(context.Context) (capture.FrameSource, error) {
		return capture.OpenDir(framesDir)
	}

	session := verify.New(sessCfg, opener, detector, match.New(cfg.MatchThreshold), api, api).
		WithMessageFunc(func(msg string) { log.Printf("  %s", msg) })

	redisClient := store.NewRedis(cfg.RedisAddr)
	if redisClient.Healthy(ctx) {
		session.
			WithRejectCounter(verify.NewRedisCounter(redisClient.Client)).
			WithReporter(audit.NewPublisher(queue.NewRedisQueue(redisClient.Client, "")))
	} else {
		log.Println("redis unreachable, lockout tracking and audit trail disabled")
	}

	res, err := session.Run(ctx)
	switch {
	case err == nil:
		if res.Record != nil {
			log.Printf("verified (confidence %.0f%%): %s on %s, status %s",
				res.Confidence*100, sessCfg.Purpose, res.Record.Date, res.Record.Status)
		} else {
			log.Println("enrollment complete")
		}
		return nil
	case errors.Is(err, verify.ErrCancelled):
		log.Println("session cancelled")
		return nil
	default:
		return err
	}
}
