package probe

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ChrisB0-2/storage-sage/internal/core"
)

func TestProbe_File(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(f, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := New()
	res, unreachable := p.Probe(context.Background(), f)
	if unreachable != nil {
		t.Fatalf("unexpected unreachable: %+v", unreachable)
	}
	if res.Type != core.TargetFile {
		t.Fatalf("expected file type, got %v", res.Type)
	}
	if res.SizeBytes != 5 {
		t.Fatalf("expected size 5, got %d", res.SizeBytes)
	}
}

func TestProbe_DirWithSubdirs(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "child"), 0o755); err != nil {
		t.Fatal(err)
	}

	p := New()
	res, unreachable := p.Probe(context.Background(), dir)
	if unreachable != nil {
		t.Fatalf("unexpected unreachable: %+v", unreachable)
	}
	if res.Type != core.TargetDir {
		t.Fatalf("expected dir type, got %v", res.Type)
	}
	if !res.HasSubdirs {
		t.Fatal("expected HasSubdirs true")
	}
}

func TestProbe_DirWithoutSubdirs(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "leaf.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := New()
	res, _ := p.Probe(context.Background(), dir)
	if res.HasSubdirs {
		t.Fatal("expected HasSubdirs false for a flat directory")
	}
}

func TestProbe_Symlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target.txt")
	if err := os.WriteFile(target, []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}

	p := New()
	res, unreachable := p.Probe(context.Background(), link)
	if unreachable != nil {
		t.Fatalf("unexpected unreachable: %+v", unreachable)
	}
	if !res.IsSymlink {
		t.Fatal("expected IsSymlink true")
	}
	if res.LinkTarget != target {
		t.Fatalf("expected link target %s, got %s", target, res.LinkTarget)
	}
}

func TestProbe_NotFound(t *testing.T) {
	p := New()
	_, unreachable := p.Probe(context.Background(), "/nonexistent/path/that/does/not/exist")
	if unreachable == nil {
		t.Fatal("expected unreachable for a missing path")
	}
	if unreachable.Reason != "not_found" {
		t.Fatalf("expected not_found reason, got %s", unreachable.Reason)
	}
}

func TestProbe_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New()
	_, unreachable := p.Probe(ctx, t.TempDir())
	if unreachable == nil || unreachable.Reason != "cancelled" {
		t.Fatalf("expected cancelled reason, got %+v", unreachable)
	}
}

var _ core.MetadataProbe = (*Probe)(nil)
