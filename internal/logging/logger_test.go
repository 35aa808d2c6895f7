package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLoggerDefault(t *testing.T) {
	l := NewLogger(nil)
	if l.c.level != LevelInfo {
		t.Errorf("default level = %v, want LevelInfo", l.c.level)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	l.Debug("should not appear")
	l.Info("should not appear either")
	l.Warn("visible warning")

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Errorf("debug/info lines leaked through Warn filter: %q", out)
	}
	if !strings.Contains(out, "visible warning") {
		t.Errorf("warn line missing from output: %q", out)
	}
}

func TestFormatArgs(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	l.Info("worker armed", "device", "sis3302-0", "queue_depth", 3)

	out := buf.String()
	if !strings.Contains(out, "device=sis3302-0") || !strings.Contains(out, "queue_depth=3") {
		t.Errorf("key-value args not formatted in output: %q", out)
	}
}

func TestWithFieldsPrependsFixedFieldsToEveryCall(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	worker := l.WithFields("worker", "sis3302-0")
	worker.Info("event pushed", "queue_depth", 2)

	out := buf.String()
	if !strings.Contains(out, "worker=sis3302-0") {
		t.Errorf("scoped field missing from output: %q", out)
	}
	if !strings.Contains(out, "queue_depth=2") {
		t.Errorf("call-site args missing from output: %q", out)
	}
	if strings.Index(out, "worker=sis3302-0") > strings.Index(out, "queue_depth=2") {
		t.Errorf("scoped fields should precede call-site args: %q", out)
	}
}

func TestWithFieldsChainsWithoutMutatingParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	child := parent.WithFields("component", "writer")
	grandchild := child.WithFields("event_number", 7)

	grandchild.Info("flushed")
	child.Info("flushed")

	out := buf.String()
	if strings.Count(out, "event_number=7") != 1 {
		t.Errorf("expected event_number to appear only for the grandchild logger: %q", out)
	}
	if strings.Count(out, "component=writer") != 2 {
		t.Errorf("expected component field on both child and grandchild: %q", out)
	}
}

func TestDefaultSingleton(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	var buf bytes.Buffer
	SetDefault(NewLogger(&Config{Level: LevelDebug, Output: &buf}))

	Info("hello")
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("global Info() did not route to the configured default logger")
	}
}
