// Package thorfile implements patchlib.Archive: a small, self-contained,
// versioned binary format for a single patch file. It stands in for the
// external THOR archive library spec §6.3 assumes is available — any code
// depending only on patchlib.Archive can swap in a real binding without
// changes.
package thorfile

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/rpatcher/rpatcher/pkg/patchlib"
)

var magic = [4]byte{'R', 'P', 'A', 'T'}

const (
	flagGRFMerging byte = 1 << 0
	flagHasDigest  byte = 1 << 1
)

// Entry is one file-write/file-remove operation or GRF entry carried by the
// archive, prior to being split into patchlib.GRFEntry/DiskEntry.
type entry struct {
	name   string
	remove bool
	data   []byte
}

// Archive is a decoded patch file.
type Archive struct {
	useGRFMerging bool
	targetGRF     string
	digest        []byte // sha-256 over the encoded entry blob; nil if absent
	entries       []entry
	entryBlob     []byte
}

// Open reads and decodes a .thor-equivalent archive from path.
func Open(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(bufio.NewReader(f))
}

// Decode parses an archive from r.
func Decode(r io.Reader) (*Archive, error) {
	var m [4]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if m != magic {
		return nil, fmt.Errorf("not a patch archive (bad magic)")
	}

	var flags byte
	if err := binary.Read(r, binary.LittleEndian, &flags); err != nil {
		return nil, fmt.Errorf("read flags: %w", err)
	}

	targetGRF, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("read target container name: %w", err)
	}

	var digest []byte
	if flags&flagHasDigest != 0 {
		digest = make([]byte, sha256.Size)
		if _, err := io.ReadFull(r, digest); err != nil {
			return nil, fmt.Errorf("read digest: %w", err)
		}
	}

	var blobLen uint64
	if err := binary.Read(r, binary.LittleEndian, &blobLen); err != nil {
		return nil, fmt.Errorf("read entry blob length: %w", err)
	}
	blob := make([]byte, blobLen)
	if _, err := io.ReadFull(r, blob); err != nil {
		return nil, fmt.Errorf("read entry blob: %w", err)
	}

	entries, err := decodeEntries(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("decode entries: %w", err)
	}

	return &Archive{
		useGRFMerging: flags&flagGRFMerging != 0,
		targetGRF:     targetGRF,
		digest:        digest,
		entries:       entries,
		entryBlob:     blob,
	}, nil
}

func decodeEntries(r io.Reader) ([]entry, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	entries := make([]entry, 0, count)
	for i := uint32(0); i < count; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		var removeByte byte
		if err := binary.Read(r, binary.LittleEndian, &removeByte); err != nil {
			return nil, err
		}
		var dataLen uint64
		if err := binary.Read(r, binary.LittleEndian, &dataLen); err != nil {
			return nil, err
		}
		data := make([]byte, dataLen)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, err
		}
		entries = append(entries, entry{name: name, remove: removeByte != 0, data: data})
	}
	return entries, nil
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// UseGRFMerging implements patchlib.Archive.
func (a *Archive) UseGRFMerging() bool { return a.useGRFMerging }

// TargetGRFName implements patchlib.Archive.
func (a *Archive) TargetGRFName() string { return a.targetGRF }

// IsValid implements patchlib.Archive: absence of a digest is reported via
// ErrEntryNotFound, which callers treat as valid per spec §6.3.
func (a *Archive) IsValid() (bool, error) {
	if a.digest == nil {
		return false, patchlib.ErrEntryNotFound
	}
	sum := sha256.Sum256(a.entryBlob)
	return bytes.Equal(sum[:], a.digest), nil
}

// GRFEntries implements patchlib.Archive.
func (a *Archive) GRFEntries() []patchlib.GRFEntry {
	out := make([]patchlib.GRFEntry, 0, len(a.entries))
	for _, e := range a.entries {
		if e.remove {
			continue
		}
		out = append(out, patchlib.GRFEntry{Name: e.name, Data: e.data})
	}
	return out
}

// DiskEntries implements patchlib.Archive.
func (a *Archive) DiskEntries() []patchlib.DiskEntry {
	out := make([]patchlib.DiskEntry, 0, len(a.entries))
	for _, e := range a.entries {
		if e.remove {
			out = append(out, patchlib.DiskEntry{Path: e.name, Remove: true})
			continue
		}
		out = append(out, patchlib.DiskEntry{Path: e.name, Data: e.data})
	}
	return out
}

var _ interface {
	UseGRFMerging() bool
	TargetGRFName() string
	IsValid() (bool, error)
	GRFEntries() []patchlib.GRFEntry
	DiskEntries() []patchlib.DiskEntry
} = (*Archive)(nil)

// Builder constructs an archive for tests and the manual-patch workflow's
// own self-contained fixtures.
type Builder struct {
	useGRF    bool
	targetGRF string
	entries   []entry
	withDigest bool
}

// NewBuilder starts a new archive. useGRFMerging selects the GRF-merging
// vs disk-merging strategy (spec §4.E).
func NewBuilder(useGRFMerging bool, targetGRFName string) *Builder {
	return &Builder{useGRF: useGRFMerging, targetGRF: targetGRFName}
}

// WriteFile adds a file-write entry.
func (b *Builder) WriteFile(name string, data []byte) *Builder {
	b.entries = append(b.entries, entry{name: name, data: data})
	return b
}

// RemoveFile adds a file-remove entry.
func (b *Builder) RemoveFile(name string) *Builder {
	b.entries = append(b.entries, entry{name: name, remove: true})
	return b
}

// WithIntegrity enables embedding a sha-256 digest over the entry blob.
func (b *Builder) WithIntegrity() *Builder {
	b.withDigest = true
	return b
}

// Encode serializes the archive to w.
func (b *Builder) Encode(w io.Writer) error {
	var blob bytes.Buffer
	if err := binary.Write(&blob, binary.LittleEndian, uint32(len(b.entries))); err != nil {
		return err
	}
	for _, e := range b.entries {
		if err := writeString(&blob, e.name); err != nil {
			return err
		}
		removeByte := byte(0)
		if e.remove {
			removeByte = 1
		}
		if err := binary.Write(&blob, binary.LittleEndian, removeByte); err != nil {
			return err
		}
		if err := binary.Write(&blob, binary.LittleEndian, uint64(len(e.data))); err != nil {
			return err
		}
		if _, err := blob.Write(e.data); err != nil {
			return err
		}
	}

	flags := byte(0)
	if b.useGRF {
		flags |= flagGRFMerging
	}
	if b.withDigest {
		flags |= flagHasDigest
	}

	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, flags); err != nil {
		return err
	}
	if err := writeString(w, b.targetGRF); err != nil {
		return err
	}
	if b.withDigest {
		sum := sha256.Sum256(blob.Bytes())
		if _, err := w.Write(sum[:]); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(blob.Len())); err != nil {
		return err
	}
	_, err := w.Write(blob.Bytes())
	return err
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}
