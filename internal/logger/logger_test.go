package logger

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestFormatRFC3339Millis(t *testing.T) {
	ts := time.Date(2025, 3, 4, 5, 6, 7, 89_000_000, time.FixedZone("x", 3600))
	if got := formatRFC3339Millis(ts); got != "2025-03-04T04:06:07.089Z" {
		t.Errorf("unexpected format: %s", got)
	}
}

func TestVerboseLevel(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, false).Debug("hidden")
	NewWithWriter(&buf, true).Debug("shown", "empty", "")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("unexpected output: %q", out)
	}
	if strings.Contains(out, "empty=") {
		t.Errorf("empty attribute not dropped: %q", out)
	}
}
