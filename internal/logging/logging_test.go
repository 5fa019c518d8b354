package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFactory_StderrAndFile(t *testing.T) {
	var stderr bytes.Buffer
	path := filepath.Join(t.TempDir(), "pawsync.log")
	f := NewFactory(Options{File: path, MaxSizeMB: 1, Stderr: &stderr})

	f.New("sync").Printf("Saved session %s", "SARAH-42")
	if err := f.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}

	if !strings.Contains(stderr.String(), "[sync] ") || !strings.Contains(stderr.String(), "SARAH-42") {
		t.Errorf("stderr = %q", stderr.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "[sync] Saved session SARAH-42") {
		t.Errorf("file = %q", data)
	}
}

func TestFactory_Quiet(t *testing.T) {
	var stderr bytes.Buffer
	f := NewFactory(Options{Quiet: true, Stderr: &stderr})
	f.New("store").Print("hidden")
	if stderr.Len() != 0 {
		t.Errorf("quiet factory wrote %q", stderr.String())
	}
}
