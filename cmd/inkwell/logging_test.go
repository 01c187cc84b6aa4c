package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/maruel/inkwell/internal/storage"
)

func TestDropZero(t *testing.T) {
	tests := []struct {
		attr slog.Attr
		keep bool
	}{
		{slog.String("s", ""), false},
		{slog.String("s", "x"), true},
		{slog.Bool("b", false), false},
		{slog.Bool("b", true), true},
		{slog.Int("i", 0), false},
		{slog.Int("i", 3), true},
		{slog.Duration("d", 0), false},
		{slog.Time("t", time.Time{}), false},
		{slog.Any("n", nil), false},
	}
	for _, tt := range tests {
		got := dropZero(nil, tt.attr)
		if kept := !got.Equal(slog.Attr{}); kept != tt.keep {
			t.Errorf("dropZero(%v) kept=%t, want %t", tt.attr, kept, tt.keep)
		}
	}
}

func TestTeeHandler(t *testing.T) {
	var a, b bytes.Buffer
	h := teeHandler{
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelWarn}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}
	l := slog.New(h).With("req", "r1")
	l.Debug("quiet")
	l.Warn("loud")
	if strings.Contains(a.String(), "quiet") || !strings.Contains(a.String(), "loud") {
		t.Errorf("warn handler got %q", a.String())
	}
	if !strings.Contains(b.String(), "quiet") || !strings.Contains(b.String(), "req=r1") {
		t.Errorf("debug handler got %q", b.String())
	}
}

func TestNewLoggerFile(t *testing.T) {
	cfg := storage.DefaultConfig()
	cfg.LogFile.Path = filepath.Join(t.TempDir(), "inkwell.log")
	l, closeLog := newLogger(cfg)
	l.Info("hello", "post_id", "abc")
	closeLog()
	data, err := os.ReadFile(cfg.LogFile.Path)
	if err != nil {
		t.Fatal(err)
	}
	if s := string(data); !strings.Contains(s, "hello") || !strings.Contains(s, "post_id=abc") || strings.Contains(s, "\x1b[") {
		t.Errorf("log file = %q", s)
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
