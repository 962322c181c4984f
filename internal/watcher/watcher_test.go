package watcher_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/pwfit/internal/watcher"
)

func TestWatcher_DebounceMultipleWrites(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(cfgPath, []byte("decay:"), 0644)
	require.NoError(t, err, "failed to create test file")

	// Create watcher with short debounce
	w, err := watcher.New(watcher.Config{
		ConfigPath:  cfgPath,
		DebounceDur: 50 * time.Millisecond,
	})
	require.NoError(t, err, "failed to create watcher")
	defer func() { _ = w.Stop() }()

	onChange, err := w.Start()
	require.NoError(t, err, "failed to start watcher")

	// Rapid writes should coalesce into single notification
	for i := 0; i < 10; i++ {
		err := os.WriteFile(cfgPath, []byte(fmt.Sprintf("decay: %d", i)), 0644)
		require.NoError(t, err, "failed to write file")
		time.Sleep(10 * time.Millisecond)
	}

	// Should receive exactly one notification
	select {
	case <-onChange:
		// Expected
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected notification but got timeout")
	}

	// No second notification should come quickly
	select {
	case <-onChange:
		t.Fatal("unexpected second notification")
	case <-time.After(100 * time.Millisecond):
		// Expected - no second notification
	}
}

func TestWatcher_IgnoresIrrelevantFiles(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	otherPath := filepath.Join(dir, "data.dat")
	err := os.WriteFile(cfgPath, []byte("decay:"), 0644)
	require.NoError(t, err, "failed to create config file")
	// Pre-create the other file so writes to it are just Write events
	err = os.WriteFile(otherPath, []byte("initial"), 0644)
	require.NoError(t, err, "failed to create other file")

	w, err := watcher.New(watcher.Config{
		ConfigPath:  cfgPath,
		DebounceDur: 50 * time.Millisecond,
	})
	require.NoError(t, err, "failed to create watcher")
	defer func() { _ = w.Stop() }()

	onChange, err := w.Start()
	require.NoError(t, err, "failed to start watcher")

	// Write to unrelated file (not Create, since it already exists)
	err = os.WriteFile(otherPath, []byte("1.0 0 0 0"), 0644)
	require.NoError(t, err, "failed to write other file")

	select {
	case <-onChange:
		t.Fatal("should not notify for unrelated files")
	case <-time.After(100 * time.Millisecond):
		// Expected - no notification for unrelated file
	}
}

func TestWatcher_Stop(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(cfgPath, []byte("decay:"), 0644)
	require.NoError(t, err, "failed to create test file")

	w, err := watcher.New(watcher.Config{
		ConfigPath:  cfgPath,
		DebounceDur: 50 * time.Millisecond,
	})
	require.NoError(t, err, "failed to create watcher")

	_, err = w.Start()
	require.NoError(t, err, "failed to start watcher")

	// Stop should not hang or panic
	done := make(chan struct{})
	go func() {
		err := w.Stop()
		assert.NoError(t, err, "Stop returned error")
		close(done)
	}()

	select {
	case <-done:
		// Expected - stop completed successfully
	case <-time.After(1 * time.Second):
		t.Fatal("Stop() timed out - possible deadlock")
	}
}
