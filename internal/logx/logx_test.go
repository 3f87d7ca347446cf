package logx

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestFormatRequestLineWithColor_NoColor(t *testing.T) {
	ts := time.Date(2026, 1, 26, 17, 44, 22, 0, time.UTC)
	line := FormatRequestLineWithColor(ts, 200, 1500*time.Microsecond, " 10.0.0.1 ", "GET", "/news", map[string]any{
		"host":         "a.example.com",
		"context_path": "/site-a",
		"request_id":   "",
		"decorated":    true,
	}, false)
	want := `[DEC] 2026/01/26 - 17:44:22 | 200 | 1.5ms | 10.0.0.1 | GET "/news" | context_path=/site-a decorated=true host=a.example.com`
	if line != want {
		t.Fatalf("unexpected line:\n got %q\nwant %q", line, want)
	}
}

func TestColorizeStatusWith(t *testing.T) {
	if got := ColorizeStatusWith(404, false); got != "404" {
		t.Fatalf("plain status=%q", got)
	}
	if got := ColorizeStatusWith(500, true); !strings.HasPrefix(got, "\x1b[31m") {
		t.Fatalf("expected red for 500, got %q", got)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, "warn", "json")
	l.Info("hidden")
	l.Warn("shown", "k", "v")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
		t.Fatalf("unexpected output: %q", out)
	}
	if ParseLevel("DEBUG") != slog.LevelDebug || ParseLevel("bogus") != slog.LevelInfo {
		t.Fatalf("unexpected level parsing")
	}
}
