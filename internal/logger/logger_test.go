package logger

import (
	"bytes"
	"os"
	"sync"
	"testing"
)

// capture routes the log into a buffer for the duration of a test.
func capture(t *testing.T, verboseOn bool) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(verboseOn)
	t.Cleanup(func() {
		SetVerbose(false)
		SetOutput(os.Stderr)
	})
	return &buf
}

func TestSetVerbose(t *testing.T) {
	capture(t, false)
	if IsVerbose() {
		t.Fatal("verbose should start off")
	}
	SetVerbose(true)
	if !IsVerbose() {
		t.Fatal("SetVerbose(true) did not stick")
	}
}

func TestLevels(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		log     func()
		want    string
	}{
		{"debug verbose", true, func() { Debug("hashing %s", "a.pdf") }, "[DEBUG] hashing a.pdf\n"},
		{"debug quiet", false, func() { Debug("hashing %s", "a.pdf") }, ""},
		{"info verbose", true, func() { Info("pipeline started with %d workers", 4) }, "[INFO] pipeline started with 4 workers\n"},
		{"info quiet", false, func() { Info("pipeline started") }, ""},
		{"warn verbose", true, func() { Warn("skipping %s", "a.tmp") }, "[WARN] skipping a.tmp\n"},
		{"warn quiet", false, func() { Warn("skipping %s", "a.tmp") }, ""},
		{"error quiet", false, func() { Error("audit log unavailable: %s", "disk full") }, "[ERROR] audit log unavailable: disk full\n"},
		{"section verbose", true, func() { Section("Recovery") }, "\n=== Recovery ===\n"},
		{"section quiet", false, func() { Section("Recovery") }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := capture(t, tt.verbose)
			tt.log()
			if got := buf.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConcurrentAccess(t *testing.T) {
	capture(t, false)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			SetVerbose(i%2 == 0)
			Debug("worker %d", i)
			_ = IsVerbose()
		}()
	}
	wg.Wait()
}
