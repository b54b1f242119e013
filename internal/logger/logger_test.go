package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func reset() {
	SetVerbose(false)
	SetOutput(os.Stderr)
}

func TestSetVerbose(t *testing.T) {
	defer reset()

	SetVerbose(false)
	if IsVerbose() {
		t.Error("expected verbose to be false initially")
	}

	SetVerbose(true)
	if !IsVerbose() {
		t.Error("expected verbose to be true after SetVerbose(true)")
	}

	SetVerbose(false)
	if IsVerbose() {
		t.Error("expected verbose to be false after SetVerbose(false)")
	}
}

func TestDebug_WhenVerbose(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(true)

	Debug("test message %s", "arg")

	out := buf.String()
	if !strings.Contains(out, "DBG") || !strings.Contains(out, "test message arg") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestDebug_WhenNotVerbose(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(false)

	Debug("hidden")
	Info("hidden too")

	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestWarn_AlwaysPrinted(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(false)

	Warn("sidecar %s skipped", "a.json")
	Error("scan failed")

	out := buf.String()
	if !strings.Contains(out, "WRN") || !strings.Contains(out, "sidecar a.json skipped") {
		t.Errorf("warning missing from output: %q", out)
	}
	if !strings.Contains(out, "ERR") || !strings.Contains(out, "scan failed") {
		t.Errorf("error missing from output: %q", out)
	}
}

func TestStructured(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)

	L().Warn("index failed", "path", "metadata/x.json")

	if !strings.Contains(buf.String(), "path=metadata/x.json") {
		t.Errorf("expected key/value in output: %q", buf.String())
	}
}

func TestSection(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)

	Section("Scan")
	if buf.Len() != 0 {
		t.Errorf("expected no section header when not verbose, got %q", buf.String())
	}

	SetVerbose(true)
	Section("Scan")
	if buf.String() != "\n=== Scan ===\n" {
		t.Errorf("unexpected output: %q", buf.String())
	}
}
