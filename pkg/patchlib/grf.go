package patchlib

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// grfMagic identifies this repo's self-contained flat indexed container
// format — the "GRF" of spec §6.3/6.4. Real game clients use a different
// on-disk layout; this format only needs to satisfy the same operations
// (open, merge entries in-place or out-of-place) to exercise the Patch
// Applier against something concrete.
var grfMagic = [4]byte{'G', 'R', 'F', '1'}

// GRFEntry is one named blob inside a container.
type GRFEntry struct {
	Name string
	Data []byte
}

// OpenGRF reads an existing container's entry table into memory. A
// missing file is reported via os.ErrNotExist so callers can decide
// whether to create one (spec §4.E: create_grf).
func OpenGRF(path string) ([]GRFEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeGRF(bufio.NewReader(f))
}

func decodeGRF(r io.Reader) ([]GRFEntry, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if magic != grfMagic {
		return nil, fmt.Errorf("not a container file (bad magic)")
	}
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("read entry count: %w", err)
	}
	entries := make([]GRFEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		var nameLen uint32
		if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
			return nil, fmt.Errorf("read name length: %w", err)
		}
		nameBuf := make([]byte, nameLen)
		if _, err := io.ReadFull(r, nameBuf); err != nil {
			return nil, fmt.Errorf("read name: %w", err)
		}
		var dataLen uint64
		if err := binary.Read(r, binary.LittleEndian, &dataLen); err != nil {
			return nil, fmt.Errorf("read data length: %w", err)
		}
		data := make([]byte, dataLen)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("read data: %w", err)
		}
		entries = append(entries, GRFEntry{Name: string(nameBuf), Data: data})
	}
	return entries, nil
}

func encodeGRF(w io.Writer, entries []GRFEntry) error {
	if _, err := w.Write(grfMagic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(e.Name))); err != nil {
			return err
		}
		if _, err := io.WriteString(w, e.Name); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint64(len(e.Data))); err != nil {
			return err
		}
		if _, err := w.Write(e.Data); err != nil {
			return err
		}
	}
	return nil
}

// mergeEntries overlays incoming onto existing: entries sharing a Name are
// overwritten, new names are appended, order of first appearance is kept
// stable so repeated merges stay deterministic.
func mergeEntries(existing, incoming []GRFEntry) []GRFEntry {
	index := make(map[string]int, len(existing))
	merged := make([]GRFEntry, len(existing))
	copy(merged, existing)
	for i, e := range merged {
		index[e.Name] = i
	}
	for _, e := range incoming {
		if i, ok := index[e.Name]; ok {
			merged[i] = e
			continue
		}
		index[e.Name] = len(merged)
		merged = append(merged, e)
	}
	return merged
}

// MergeGRF applies incoming entries onto the container at targetPath using
// method. If targetPath does not exist, createIfMissing controls whether a
// fresh container is created or ErrMissingTarget is returned.
func MergeGRF(targetPath string, incoming []GRFEntry, method MergeMethod, createIfMissing bool) error {
	existing, err := OpenGRF(targetPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		if !createIfMissing {
			return ErrMissingTarget
		}
		existing = nil
	}

	merged := mergeEntries(existing, incoming)

	switch method {
	case InPlace:
		return writeGRFInPlace(targetPath, merged)
	case OutOfPlace:
		return writeGRFOutOfPlace(targetPath, merged)
	default:
		return fmt.Errorf("unknown merge method %v", method)
	}
}

// writeGRFInPlace truncates and rewrites the target directly: cheaper, but
// a crash mid-write leaves a corrupt container.
func writeGRFInPlace(targetPath string, merged []GRFEntry) error {
	f, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriterSize(f, ChunkSize)
	if err := encodeGRF(bw, merged); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

// writeGRFOutOfPlace writes the merged container to a sibling temp file,
// fsyncs it, then atomically renames it over targetPath — the crash-safe
// strategy at the cost of transient extra disk space.
func writeGRFOutOfPlace(targetPath string, merged []GRFEntry) error {
	dir := filepath.Dir(targetPath)
	tmp := filepath.Join(dir, "."+filepath.Base(targetPath)+".tmp-"+uuid.NewString())

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(f, ChunkSize)
	if err := encodeGRF(bw, merged); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, targetPath); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
