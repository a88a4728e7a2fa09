package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

const watcherYAML = "server:\n  listenAddr: \":8080\"\n  logLevel: info\n"

func TestWatcherInitialLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, watcherYAML)

	w, err := NewWatcher(path, nil, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if w.Current().Server.ListenAddr != ":8080" {
		t.Errorf("listenAddr = %q", w.Current().Server.ListenAddr)
	}
}

func TestWatcherInitialLoadFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "server:\n  logLevel: bogus\n")

	if _, err := NewWatcher(path, nil); err == nil {
		t.Fatal("expected error for invalid initial config")
	}
}

func TestWatcherDetectsChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, watcherYAML)

	var calls atomic.Int32
	var gotLevel atomic.Value

	w, err := NewWatcher(path, func(old, new *Config) {
		calls.Add(1)
		gotLevel.Store(string(new.Server.LogLevel))
	}, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	// Ensure the mtime moves even on coarse-grained filesystems.
	time.Sleep(20 * time.Millisecond)
	writeConfig(t, path, "server:\n  listenAddr: \":8080\"\n  logLevel: debug\n")
	future := time.Now().Add(time.Second)
	os.Chtimes(path, future, future)

	deadline := time.After(2 * time.Second)
	for calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("onChange was not called")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if got := gotLevel.Load(); got != "debug" {
		t.Errorf("new log level = %v, want debug", got)
	}
	if w.Current().Server.LogLevel != LogDebug {
		t.Errorf("Current().LogLevel = %q", w.Current().Server.LogLevel)
	}
}

func TestWatcherKeepsOldConfigOnInvalidEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, watcherYAML)

	var calls atomic.Int32
	w, err := NewWatcher(path, func(old, new *Config) {
		calls.Add(1)
	}, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	time.Sleep(20 * time.Millisecond)
	writeConfig(t, path, "server:\n  logLevel: shouting\n")
	future := time.Now().Add(time.Second)
	os.Chtimes(path, future, future)

	time.Sleep(100 * time.Millisecond)

	if calls.Load() != 0 {
		t.Error("onChange fired for an invalid config")
	}
	if w.Current().Server.LogLevel != LogInfo {
		t.Errorf("Current().LogLevel = %q, want the pre-edit value", w.Current().Server.LogLevel)
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, watcherYAML)

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.Stop()
	w.Stop()
}
