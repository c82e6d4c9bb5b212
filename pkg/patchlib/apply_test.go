package patchlib

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rpatcher/rpatcher/pkg/logger"
	"github.com/rpatcher/rpatcher/pkg/patchlib/thorfile"
)

func openThorfile(path string) (Archive, error) {
	a, err := thorfile.Open(path)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func writeThorArchive(t *testing.T, dir, name string, build func(*thorfile.Builder) *thorfile.Builder) string {
	t.Helper()
	b := build(thorfile.NewBuilder(false, ""))
	var buf bytes.Buffer
	if err := b.Encode(&buf); err != nil {
		t.Fatalf("encode archive: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
	return path
}

func TestApplierDiskOverlay(t *testing.T) {
	workDir := t.TempDir()
	archiveDir := t.TempDir()

	path := writeThorArchive(t, archiveDir, "1.thor", func(b *thorfile.Builder) *thorfile.Builder {
		return b.WriteFile("nested/hello.txt", []byte("hi"))
	})

	applier := NewApplier(logger.NewNopLogger())
	pending := []PendingPatch{{Info: PatchInfo{Index: 1, FileName: "1.thor"}, LocalPath: path}}

	cachePath := filepath.Join(workDir, "patcher.dat")
	err := applier.Apply(pending, ApplyOpts{
		WorkingDir:  workDir,
		CachePath:   cachePath,
		OpenArchive: openThorfile,
	}, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(workDir, "nested", "hello.txt"))
	if err != nil {
		t.Fatalf("read applied file: %v", err)
	}
	if string(data) != "hi" {
		t.Fatalf("applied file contents = %q", data)
	}

	cache, err := ReadCache(cachePath)
	if err != nil || cache == nil || cache.LastPatchIndex != 1 {
		t.Fatalf("cache = %+v, err = %v", cache, err)
	}
}

func TestApplierGRFMerge(t *testing.T) {
	workDir := t.TempDir()
	archiveDir := t.TempDir()

	b := thorfile.NewBuilder(true, "data.grf").WriteFile("res/item.bmp", []byte("bytes"))
	var buf bytes.Buffer
	if err := b.Encode(&buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	path := filepath.Join(archiveDir, "1.thor")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	applier := NewApplier(nil)
	pending := []PendingPatch{{Info: PatchInfo{Index: 1, FileName: "1.thor"}, LocalPath: path}}
	cachePath := filepath.Join(workDir, "patcher.dat")

	err := applier.Apply(pending, ApplyOpts{
		WorkingDir:  workDir,
		CachePath:   cachePath,
		CreateGRF:   true,
		InPlace:     true,
		OpenArchive: openThorfile,
	}, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	entries, err := OpenGRF(filepath.Join(workDir, "data.grf"))
	if err != nil {
		t.Fatalf("OpenGRF: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "res/item.bmp" {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestApplierMissingTargetWithoutCreateGRF(t *testing.T) {
	workDir := t.TempDir()
	archiveDir := t.TempDir()

	b := thorfile.NewBuilder(true, "data.grf")
	var buf bytes.Buffer
	if err := b.Encode(&buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	path := filepath.Join(archiveDir, "1.thor")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	applier := NewApplier(nil)
	pending := []PendingPatch{{Info: PatchInfo{Index: 1, FileName: "1.thor"}, LocalPath: path}}

	err := applier.Apply(pending, ApplyOpts{
		WorkingDir:  workDir,
		CachePath:   filepath.Join(workDir, "patcher.dat"),
		CreateGRF:   false,
		OpenArchive: openThorfile,
	}, nil)
	if err == nil {
		t.Fatalf("expected an error when the target container is missing")
	}
}

func TestApplierStopsOnCancellation(t *testing.T) {
	workDir := t.TempDir()
	archiveDir := t.TempDir()

	p1 := writeThorArchive(t, archiveDir, "1.thor", func(b *thorfile.Builder) *thorfile.Builder {
		return b.WriteFile("a.txt", []byte("a"))
	})
	p2 := writeThorArchive(t, archiveDir, "2.thor", func(b *thorfile.Builder) *thorfile.Builder {
		return b.WriteFile("b.txt", []byte("b"))
	})

	pending := []PendingPatch{
		{Info: PatchInfo{Index: 1, FileName: "1.thor"}, LocalPath: p1},
		{Info: PatchInfo{Index: 2, FileName: "2.thor"}, LocalPath: p2},
	}

	cmds := make(chan Command, 1)
	cmds <- CancelUpdateCommand()

	applier := NewApplier(nil)
	cachePath := filepath.Join(workDir, "patcher.dat")
	err := applier.Apply(pending, ApplyOpts{
		WorkingDir:  workDir,
		CachePath:   cachePath,
		OpenArchive: openThorfile,
	}, cmds)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if _, err := os.Stat(filepath.Join(workDir, "a.txt")); !os.IsNotExist(err) {
		t.Fatalf("patch 1 should not have been applied after cancellation")
	}
	if cache, err := ReadCache(cachePath); err != nil || cache != nil {
		t.Fatalf("cache should remain empty after cancellation, got %+v / %v", cache, err)
	}
}
