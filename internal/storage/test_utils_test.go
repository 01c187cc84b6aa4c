package storage

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	apierrors "github.com/maruel/inkwell/internal/errors"
)

// pngData is a 1x1 PNG header, enough for content type detection.
var pngData = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

// gifData is a GIF header.
var gifData = []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00\xff\xff\xff\x00\x00\x00!\xf9\x04\x00\x00\x00\x00\x00,")

// fakeClock returns a fixed time, advanced by step after each call.
type fakeClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.Local), step: time.Second}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.t
	c.t = c.t.Add(c.step)
	return t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *fakeClock) Freeze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = 0
}

// newTestService returns an initialized service over a temp directory.
func newTestService(t *testing.T, opts ...Option) (*RecordService, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	s, err := NewRecordService(t.TempDir(), append([]Option{WithClock(clock.Now)}, opts...)...)
	if err != nil {
		t.Fatalf("NewRecordService failed: %v", err)
	}
	if err := s.EnsureInitialized(t.Context()); err != nil {
		t.Fatalf("EnsureInitialized failed: %v", err)
	}
	return s, clock
}

func mustCreatePost(t *testing.T, s *RecordService, author, title string) string {
	t.Helper()
	id, err := s.CreatePost(t.Context(), NewPost{Author: author, Title: title, Body: "Body of " + title})
	if err != nil {
		t.Fatalf("CreatePost(%q, %q) failed: %v", author, title, err)
	}
	return id
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func wantCode(t *testing.T, err error, code apierrors.ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if !apierrors.HasCode(err, code) {
		t.Fatalf("err = %v, want code %s", err, code)
	}
}
