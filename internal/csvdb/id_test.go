package csvdb

import (
	"strings"
	"testing"
	"time"
)

func TestNewID(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 30, 45, 123456000, time.UTC)

	t.Run("format", func(t *testing.T) {
		id := NewID(now, "alice", "hello")
		if len(id) != 40 {
			t.Errorf("len = %d, want 40", len(id))
		}
		if strings.Trim(id, "0123456789abcdef") != "" {
			t.Errorf("id %q is not lowercase hex", id)
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		if NewID(now, "a", "b") != NewID(now, "a", "b") {
			t.Error("same inputs produced different ids")
		}
	})

	t.Run("inputs matter", func(t *testing.T) {
		tests := []struct {
			name string
			a, b string
		}{
			{"seed", NewID(now, "alice", "hello"), NewID(now, "alice", "hello!")},
			{"microsecond", NewID(now, "x"), NewID(now.Add(time.Microsecond), "x")},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if tt.a == tt.b {
					t.Errorf("ids collide: %s", tt.a)
				}
			})
		}
	})

	t.Run("short", func(t *testing.T) {
		full := NewID(now, "alice", "title")
		short := NewShortID(now, "alice", "title")
		if len(short) != ShortIDLen {
			t.Errorf("len = %d, want %d", len(short), ShortIDLen)
		}
		if !strings.HasPrefix(full, short) {
			t.Errorf("%q is not a prefix of %q", short, full)
		}
	})

	t.Run("known value", func(t *testing.T) {
		// sha1("alice" + "hello" + "2024-03-01 12:30:45.123456")
		if got, want := NewID(now, "alice", "hello"), "761d4dd212db49c4793daed1f9f9b7117a03f460"; got != want {
			t.Errorf("NewID() = %q, want %q", got, want)
		}
	})
}
