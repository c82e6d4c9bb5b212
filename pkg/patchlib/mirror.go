package patchlib

import (
	"context"
	"fmt"

	"github.com/rpatcher/rpatcher/pkg/logger"
)

// ProbeOutcome is the result of a successful probe: the parsed patch list
// and the patch_url it was served under.
type ProbeOutcome struct {
	Patches  PatchList
	PatchURL string
	Mirror   string
}

// Prober discovers the first usable mirror and fetches its patch index.
type Prober struct {
	Router *TransportRouter
	Log    logger.Logger
}

// NewProber constructs a Prober with a fresh transport router.
func NewProber(log logger.Logger) *Prober {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Prober{Router: NewTransportRouter(), Log: log}
}

// Probe implements spec §4.C: try the preferred mirror first (failures are
// logged, not fatal), then walk the remaining mirrors in list order,
// checking cmds for cancellation before every probe. cmds is read
// non-blockingly — the zero value (nil channel) disables cancellation
// checks entirely, which is never receive-ready, so a nil channel here
// simply means "never cancel".
func (p *Prober) Probe(ctx context.Context, mirrors []MirrorInfo, preferredName string, cmds <-chan Command) (ProbeOutcome, error) {
	ordered := orderMirrors(mirrors, preferredName)

	for i, m := range ordered {
		// Only the fallback loop (i.e. every mirror after the preferred
		// one, or all of them if there is no preferred mirror) checks for
		// cancellation before each probe. This matches spec §4.C step 2
		// and fixes the original's bug (§9): cancellation here returns
		// ErrInterrupted explicitly instead of a false-success empty list.
		if i > 0 || preferredName == "" {
			select {
			case cmd, ok := <-cmds:
				if !ok || cmd.Kind == CommandCancelUpdate || cmd.Kind == CommandQuit {
					return ProbeOutcome{}, ErrInterrupted
				}
			default:
			}
		}

		outcome, err := p.probeOne(ctx, m)
		if err != nil {
			p.Log.Warning("probe mirror %q failed: %v", m.Name, err)
			continue
		}
		return outcome, nil
	}

	return ProbeOutcome{}, ErrNoMirrorAvailable
}

// orderMirrors moves the preferred mirror (if present) to the front.
func orderMirrors(mirrors []MirrorInfo, preferredName string) []MirrorInfo {
	if preferredName == "" {
		return mirrors
	}
	ordered := make([]MirrorInfo, 0, len(mirrors))
	var preferred *MirrorInfo
	for i := range mirrors {
		if mirrors[i].Name == preferredName {
			m := mirrors[i]
			preferred = &m
			continue
		}
	}
	if preferred != nil {
		ordered = append(ordered, *preferred)
	}
	for _, m := range mirrors {
		if m.Name != preferredName {
			ordered = append(ordered, m)
		}
	}
	return ordered
}

func (p *Prober) probeOne(ctx context.Context, m MirrorInfo) (ProbeOutcome, error) {
	transport, err := p.Router.For(m.PlistURL)
	if err != nil {
		return ProbeOutcome{}, &MirrorError{Mirror: m.Name, Kind: err}
	}
	defer transport.Close()

	body, err := transport.FetchPlist(ctx, m.PlistURL)
	if err != nil {
		return ProbeOutcome{}, &MirrorError{Mirror: m.Name, Kind: ErrNoMirrorAvailable, Cause: err}
	}
	patches := ParsePlist(body, func(line, reason string) {
		p.Log.Warning("mirror %q: skipping malformed plist line %q: %s", m.Name, line, reason)
	})
	body.Close()

	if len(patches) == 0 {
		return ProbeOutcome{Patches: patches, PatchURL: m.PatchURL, Mirror: m.Name}, nil
	}

	first := patches[0]
	patchTransport, err := p.Router.For(m.PatchURL)
	if err != nil {
		return ProbeOutcome{}, &MirrorError{Mirror: m.Name, Kind: err}
	}
	defer patchTransport.Close()

	if err := patchTransport.Probe(ctx, m.PatchURL, first.FileName); err != nil {
		return ProbeOutcome{}, &MirrorError{Mirror: m.Name, Kind: ErrNoMirrorAvailable, Cause: fmt.Errorf("liveness check on %s: %w", first.FileName, err)}
	}

	return ProbeOutcome{Patches: patches, PatchURL: m.PatchURL, Mirror: m.Name}, nil
}

// FilterPatchesAgainstCache implements invariant 3 (spec §8): the set of
// patches handed to the download engine is strictly those with index >
// cache.LastPatchIndex when that index actually appears in the mirror's
// list. When it does not appear — mirror reset, or a renumbered index —
// the filter does not trigger and the entire list is used unfiltered. This
// is deliberately the original's documented behavior, not a bug (see
// SPEC_FULL.md design notes / DESIGN.md open question log).
func FilterPatchesAgainstCache(patches PatchList, cache *PatcherCache, log logger.Logger) PatchList {
	if cache == nil {
		return patches
	}
	if !patches.Contains(cache.LastPatchIndex) {
		if log != nil {
			log.Warning("cached last_patch_index %d not present in mirror list; applying entire list", cache.LastPatchIndex)
		}
		return patches
	}
	return patches.FilterAfter(cache.LastPatchIndex)
}
