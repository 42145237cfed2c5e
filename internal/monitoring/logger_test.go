package monitoring

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestLogStreams(t *testing.T) {
	var ops, diag, trace bytes.Buffer
	SetLogWriters(LogWriters{Ops: &ops, Diag: &diag, Trace: &trace})
	defer SetLogWriters(LogWriters{})

	Opsf("reinit %d", 1)
	Diagf("likelihood %.2f", 0.5)
	Tracef("particle %d", 7)

	tests := []struct {
		name string
		buf  *bytes.Buffer
		want string
	}{
		{"ops", &ops, "reinit 1"},
		{"diag", &diag, "likelihood 0.50"},
		{"trace", &trace, "particle 7"},
	}
	for _, tt := range tests {
		got := tt.buf.String()
		if !strings.Contains(got, tt.want) {
			t.Errorf("%s stream = %q, want it to contain %q", tt.name, got, tt.want)
		}
		if !strings.Contains(got, prefix) {
			t.Errorf("%s stream missing prefix %q", tt.name, prefix)
		}
	}
}

func TestLogStreams_Disabled(t *testing.T) {
	var ops bytes.Buffer
	SetLogWriters(LogWriters{Ops: &ops})
	defer SetLogWriters(LogWriters{})

	Diagf("dropped")
	Tracef("dropped")
	Opsf("kept")

	if strings.Contains(ops.String(), "dropped") {
		t.Errorf("disabled streams leaked into ops: %q", ops.String())
	}
	if !strings.Contains(ops.String(), "kept") {
		t.Errorf("ops stream = %q, want kept", ops.String())
	}
}
