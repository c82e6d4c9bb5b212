package patchlib

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rpatcher/rpatcher/pkg/logger"
)

func newPlistServer(t *testing.T, plist string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/plist.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(plist))
	})
	mux.HandleFunc("/patches/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestProberSucceedsOnFirstMirror(t *testing.T) {
	srv := newPlistServer(t, "1 a.thor\n2 b.thor\n")
	prober := NewProber(logger.NewNopLogger())

	mirrors := []MirrorInfo{{Name: "m1", PlistURL: srv.URL + "/plist.txt", PatchURL: srv.URL + "/patches"}}
	outcome, err := prober.Probe(context.Background(), mirrors, "", nil)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if len(outcome.Patches) != 2 {
		t.Fatalf("Patches = %+v", outcome.Patches)
	}
}

func TestProberFallsBackOnFailure(t *testing.T) {
	badMirror := MirrorInfo{Name: "bad", PlistURL: "http://127.0.0.1:0/plist.txt", PatchURL: "http://127.0.0.1:0/patches"}
	srv := newPlistServer(t, "1 a.thor\n")
	goodMirror := MirrorInfo{Name: "good", PlistURL: srv.URL + "/plist.txt", PatchURL: srv.URL + "/patches"}

	prober := NewProber(logger.NewNopLogger())
	outcome, err := prober.Probe(context.Background(), []MirrorInfo{badMirror, goodMirror}, "", nil)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if outcome.Mirror != "good" {
		t.Fatalf("outcome.Mirror = %q, want %q", outcome.Mirror, "good")
	}
}

func TestProberNoMirrorAvailable(t *testing.T) {
	prober := NewProber(logger.NewNopLogger())
	_, err := prober.Probe(context.Background(), nil, "", nil)
	if !errors.Is(err, ErrNoMirrorAvailable) {
		t.Fatalf("err = %v, want ErrNoMirrorAvailable", err)
	}
}

func TestProberPreferredMirrorTriedFirstNotRetried(t *testing.T) {
	srv := newPlistServer(t, "1 a.thor\n")
	preferred := MirrorInfo{Name: "preferred", PlistURL: "http://127.0.0.1:0/plist.txt", PatchURL: "http://127.0.0.1:0/patches"}
	fallback := MirrorInfo{Name: "fallback", PlistURL: srv.URL + "/plist.txt", PatchURL: srv.URL + "/patches"}

	prober := NewProber(logger.NewNopLogger())
	outcome, err := prober.Probe(context.Background(), []MirrorInfo{preferred, fallback}, "preferred", nil)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if outcome.Mirror != "fallback" {
		t.Fatalf("outcome.Mirror = %q, want %q", outcome.Mirror, "fallback")
	}
}

// TestProberCancelDuringFallbackReturnsInterrupted exercises the §9
// bug fix: cancellation observed while walking the fallback loop must
// return ErrInterrupted, not a false-success empty patch list.
func TestProberCancelDuringFallbackReturnsInterrupted(t *testing.T) {
	mirrors := []MirrorInfo{
		{Name: "m1", PlistURL: "http://127.0.0.1:0/plist.txt", PatchURL: "http://127.0.0.1:0/patches"},
		{Name: "m2", PlistURL: "http://127.0.0.1:0/plist.txt", PatchURL: "http://127.0.0.1:0/patches"},
	}

	cmds := make(chan Command, 1)
	cmds <- CancelUpdateCommand()

	prober := NewProber(logger.NewNopLogger())
	outcome, err := prober.Probe(context.Background(), mirrors, "", cmds)
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("err = %v, want ErrInterrupted", err)
	}
	if len(outcome.Patches) != 0 {
		t.Fatalf("outcome.Patches = %+v, want empty", outcome.Patches)
	}
}
