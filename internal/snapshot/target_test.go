// Tests for snapshot targets.
package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/keeperhq/stockpile/pkg/types"
)

func TestFileTarget_LoadMissing(t *testing.T) {
	target, err := NewFileTarget(t.TempDir(), "snap.db")
	if err != nil {
		t.Fatalf("NewFileTarget failed: %v", err)
	}

	data, err := target.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if data != nil {
		t.Errorf("missing snapshot should load as nil, got %d bytes", len(data))
	}
}

func TestFileTarget_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	target, err := NewFileTarget(dir, "snap.db")
	if err != nil {
		t.Fatalf("NewFileTarget failed: %v", err)
	}

	blob := []byte("whole image")
	if err := target.Save(context.Background(), blob); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := target.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(data) != string(blob) {
		t.Errorf("Load = %q, want %q", data, blob)
	}

	// Save replaces the whole blob, and leaves no temp files behind.
	if err := target.Save(context.Background(), []byte("v2")); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}
	data, _ = target.Load(context.Background())
	if string(data) != "v2" {
		t.Errorf("Load after replace = %q, want v2", data)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the snapshot file, found %d entries", len(entries))
	}
}

func TestFileTarget_CloseKeepsSnapshotReadable(t *testing.T) {
	dir := t.TempDir()
	target, err := NewFileTarget(dir, "snap.db")
	if err != nil {
		t.Fatalf("NewFileTarget failed: %v", err)
	}
	if err := target.Save(context.Background(), []byte("image")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := target.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "snap.db"))
	if err != nil {
		t.Fatalf("snapshot unreadable after close: %v", err)
	}
	if string(data) != "image" {
		t.Errorf("snapshot = %q, want image", data)
	}
}

func TestFileTarget_CreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	if _, err := NewFileTarget(dir, "snap.db"); err != nil {
		t.Fatalf("NewFileTarget failed: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("data dir not created: %v", err)
	}
}

func TestResolve_PrefersFile(t *testing.T) {
	cfg := types.Config{DataDir: t.TempDir()}
	target := Resolve(context.Background(), cfg, zap.NewNop())
	if target == nil {
		t.Fatal("expected a file target, got nil")
	}
	if _, ok := target.(*FileTarget); !ok {
		t.Errorf("expected *FileTarget, got %T", target)
	}
}

func TestResolve_NoTarget(t *testing.T) {
	target := Resolve(context.Background(), types.Config{}, zap.NewNop())
	if target != nil {
		t.Errorf("expected nil target for empty config, got %v", target.Name())
	}
}
