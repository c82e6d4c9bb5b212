package patchlib

import (
	"bufio"
	"io"
	"sort"
	"strconv"
	"strings"
)

// PatchInfo is one entry in a mirror's patch index. Index alone identifies
// an entry and defines apply order: Contains and FilterAfter compare Index
// only. The == operator compares FileName as well.
type PatchInfo struct {
	Index    uint64
	FileName string
}

// PatchList is an ordered sequence of PatchInfo as produced by a mirror. Its
// order carries no meaning; callers must sort by Index before applying.
type PatchList []PatchInfo

// SortByIndex returns a copy of the list sorted ascending by Index.
func (l PatchList) SortByIndex() PatchList {
	sorted := make(PatchList, len(l))
	copy(sorted, l)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	return sorted
}

// FilterAfter returns the subset of the list whose Index is strictly
// greater than lastIndex. Per invariant 3, callers only apply this filter
// when lastIndex actually appears in the list; otherwise the entire list is
// used unfiltered (see FilterPatchesAgainstCache).
func (l PatchList) FilterAfter(lastIndex uint64) PatchList {
	out := make(PatchList, 0, len(l))
	for _, p := range l {
		if p.Index > lastIndex {
			out = append(out, p)
		}
	}
	return out
}

// Contains reports whether index appears anywhere in the list.
func (l PatchList) Contains(index uint64) bool {
	for _, p := range l {
		if p.Index == index {
			return true
		}
	}
	return false
}

// PendingPatch is a PatchInfo plus the local path of its fully downloaded
// archive. Owned by the download engine until handed to the patch applier.
type PendingPatch struct {
	Info      PatchInfo
	LocalPath string
}

// PatcherCache is the persisted "last applied patch index" record.
type PatcherCache struct {
	LastPatchIndex uint64
}

// MirrorInfo is a configured mirror descriptor.
type MirrorInfo struct {
	Name      string
	PlistURL  string
	PatchURL  string
}

// ParsePlist parses a mirror's plain-text patch index (spec §6.2): each
// non-empty, non-comment line is "<index> <file_name>". Malformed lines are
// skipped; the caller supplies a warn func to log them (nil disables
// logging). Blank lines and lines beginning with "//" are ignored.
func ParsePlist(r io.Reader, warn func(line string, reason string)) PatchList {
	if warn == nil {
		warn = func(string, string) {}
	}
	var list PatchList
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			warn(line, "expected \"<index> <file_name>\"")
			continue
		}
		idx, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			warn(line, "index is not a non-negative integer")
			continue
		}
		fileName := fields[1]
		if strings.ContainsAny(fileName, "/\\") {
			warn(line, "file name contains a path separator")
			continue
		}
		list = append(list, PatchInfo{Index: idx, FileName: fileName})
	}
	return list
}
