package logx

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
)

var enableColor = isatty.IsTerminal(os.Stdout.Fd()) && strings.TrimSpace(os.Getenv("NO_COLOR")) == ""

func ColorEnabled() bool { return enableColor }

// ParseLevel maps a config level name to a slog level. Unknown names are
// treated as info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger. format is "text" or "json".
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func ColorizeStatusWith(status int, color bool) string {
	if !color {
		return fmt.Sprintf("%d", status)
	}
	// ANSI colors
	const (
		reset  = "\x1b[0m"
		red    = "\x1b[31m"
		green  = "\x1b[32m"
		yellow = "\x1b[33m"
		cyan   = "\x1b[36m"
	)
	switch {
	case status >= 200 && status < 300:
		return green + fmt.Sprintf("%d", status) + reset
	case status >= 300 && status < 400:
		return cyan + fmt.Sprintf("%d", status) + reset
	case status >= 400 && status < 500:
		return yellow + fmt.Sprintf("%d", status) + reset
	default:
		return red + fmt.Sprintf("%d", status) + reset
	}
}

// FormatRequestLineWithColor prints a single line access log entry.
//
// Example:
// [DEC] 2026/01/26 - 17:44:22 | 200 | 1.2ms | 127.0.0.1 | GET "/news" | host=a.example.com context_path=/site-a
func FormatRequestLineWithColor(
	ts time.Time,
	status int,
	latency time.Duration,
	clientIP string,
	method string,
	path string,
	fields map[string]any,
	color bool,
) string {
	base := fmt.Sprintf(
		`[DEC] %s | %s | %s | %s | %s %q`,
		ts.Format("2006/01/02 - 15:04:05"),
		ColorizeStatusWith(status, color),
		latency.String(),
		strings.TrimSpace(clientIP),
		strings.TrimSpace(method),
		path,
	)
	extra := formatFields(fields)
	if extra == "" {
		return base
	}
	return base + " | " + extra
}

func formatFields(fields map[string]any) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := fields[k]
		if v == nil {
			continue
		}
		var s string
		if str, ok := v.(string); ok {
			s = strings.TrimSpace(str)
		} else {
			s = strings.TrimSpace(fmt.Sprintf("%v", v))
		}
		if s == "" || s == "<nil>" {
			continue
		}
		parts = append(parts, k+"="+s)
	}
	return strings.Join(parts, " ")
}
