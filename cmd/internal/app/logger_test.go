package app

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		got := parseLogLevel(tc.in)
		if got != tc.want {
			t.Fatalf("parseLogLevel(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestNewHandler_Format(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	if _, ok := newHandler(&buf, "info", "json", true).(*slog.JSONHandler); !ok {
		t.Fatalf("json format should use JSONHandler")
	}
	if _, ok := newHandler(&buf, "info", "pretty", false).(*prettyHandler); !ok {
		t.Fatalf("pretty format should use prettyHandler")
	}
	if _, ok := newHandler(&buf, "info", "auto", true).(*prettyHandler); !ok {
		t.Fatalf("auto on a terminal should be pretty")
	}
	if _, ok := newHandler(&buf, "info", "auto", false).(*slog.JSONHandler); !ok {
		t.Fatalf("auto off a terminal should be json")
	}
}

func TestNewHandler_LevelFilter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newHandler(&buf, "warn", "json", false))

	log.Info("session.create")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level: %s", buf.String())
	}
	log.Warn("session.invalidate_all", "count", 3)
	if !strings.Contains(buf.String(), `"msg":"session.invalidate_all"`) {
		t.Fatalf("expected warn record, got %s", buf.String())
	}
}
