package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"faceattend/internal/vision"
)

// DirSource replays image files from a directory in name order. It stands in
// for a camera in dev and test setups; Grab returns io.EOF once the frames
// run out, which the loop reports as a device failure.
type DirSource struct {
	paths  []string
	next   int
	closed bool
}

// OpenDir acquires a directory as a frame source. Opening an empty or
// missing directory fails, matching a camera that cannot be acquired.
func OpenDir(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("open frame dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no frames in %s", dir)
	}
	sort.Strings(paths)
	return &DirSource{paths: paths}, nil
}

// Grab returns the next frame.
func (s *DirSource) Grab(_ context.Context) (vision.Frame, error) {
	if s.closed {
		return vision.Frame{}, fmt.Errorf("frame source closed")
	}
	if s.next >= len(s.paths) {
		return vision.Frame{}, io.EOF
	}
	data, err := os.ReadFile(s.paths[s.next])
	if err != nil {
		return vision.Frame{}, err
	}
	s.next++
	return vision.Frame{Data: data, CapturedAt: time.Now()}, nil
}

// Close releases the source.
func (s *DirSource) Close() error {
	s.closed = true
	return nil
}
