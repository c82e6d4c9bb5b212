package patchlib

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rpatcher/rpatcher/pkg/logger"
)

func newArchiveServer(t *testing.T, files map[string][]byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/patches/", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Path[len("/patches/"):]
		data, ok := files[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Write(data)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestEngineDownloadsAndSortsByIndex(t *testing.T) {
	srv := newArchiveServer(t, map[string][]byte{
		"a.thor": []byte("AAA"),
		"b.thor": []byte("BBB"),
	})

	list := PatchList{
		{Index: 2, FileName: "b.thor"},
		{Index: 1, FileName: "a.thor"},
	}

	engine := NewEngine(logger.NewNopLogger())
	sorted, pending, err := engine.Run(context.Background(), list, DownloadOpts{
		PatchURL: srv.URL + "/patches",
		TempDir:  t.TempDir(),
	}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sorted) != 2 || sorted[0].Index != 1 || sorted[1].Index != 2 {
		t.Fatalf("sorted = %+v", sorted)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %+v", pending)
	}
	for _, p := range pending {
		data, err := os.ReadFile(p.LocalPath)
		if err != nil {
			t.Fatalf("read %s: %v", p.LocalPath, err)
		}
		if len(data) == 0 {
			t.Fatalf("empty download for %s", p.Info.FileName)
		}
	}
}

func TestEngineEmptyListIsNoOp(t *testing.T) {
	engine := NewEngine(logger.NewNopLogger())
	sorted, pending, err := engine.Run(context.Background(), nil, DownloadOpts{}, nil)
	if err != nil || sorted != nil || pending != nil {
		t.Fatalf("Run(empty) = (%+v, %+v, %v), want all nil/zero", sorted, pending, err)
	}
}

func TestEngineFailureFastFails(t *testing.T) {
	srv := newArchiveServer(t, map[string][]byte{"a.thor": []byte("AAA")})

	list := PatchList{
		{Index: 1, FileName: "a.thor"},
		{Index: 2, FileName: "missing.thor"},
	}
	engine := NewEngine(logger.NewNopLogger())
	_, _, err := engine.Run(context.Background(), list, DownloadOpts{
		PatchURL: srv.URL + "/patches",
		TempDir:  t.TempDir(),
	}, nil)
	if err == nil {
		t.Fatalf("expected an error for the missing archive")
	}
	var patchErr *PatchError
	if !errors.As(err, &patchErr) {
		t.Fatalf("err = %v, want *PatchError", err)
	}
}

func TestEngineCancellationReturnsInterrupted(t *testing.T) {
	block := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/patches/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("start"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-block
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	defer close(block)

	list := PatchList{{Index: 1, FileName: "slow.thor"}}
	cmds := make(chan Command, 1)

	go func() {
		time.Sleep(50 * time.Millisecond)
		cmds <- CancelUpdateCommand()
	}()

	engine := NewEngine(logger.NewNopLogger())
	_, _, err := engine.Run(context.Background(), list, DownloadOpts{
		PatchURL: srv.URL + "/patches",
		TempDir:  t.TempDir(),
	}, cmds)
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("err = %v, want ErrInterrupted", err)
	}
}

func TestEngineRetriesTransientFailureThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/patches/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("AAA"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	list := PatchList{{Index: 1, FileName: "a.thor"}}
	engine := NewEngine(logger.NewNopLogger())
	sorted, pending, err := engine.Run(context.Background(), list, DownloadOpts{
		PatchURL: srv.URL + "/patches",
		TempDir:  t.TempDir(),
	}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sorted) != 1 || len(pending) != 1 {
		t.Fatalf("sorted/pending = %+v %+v", sorted, pending)
	}
	if attempts.Load() < 2 {
		t.Fatalf("expected at least 2 attempts, got %d", attempts.Load())
	}
	data, err := os.ReadFile(pending[0].LocalPath)
	if err != nil || string(data) != "AAA" {
		t.Fatalf("downloaded data = %q, err = %v", data, err)
	}
}

func TestEngineChecksumHeaderMismatchIsCorrupt(t *testing.T) {
	wrong := sha256.Sum256([]byte("not what we are about to serve"))
	digest := "sha-256=" + base64.StdEncoding.EncodeToString(wrong[:])

	mux := http.NewServeMux()
	mux.HandleFunc("/patches/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Digest", digest)
		w.Write([]byte("AAA"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	list := PatchList{{Index: 1, FileName: "a.thor"}}
	engine := NewEngine(logger.NewNopLogger())
	_, _, err := engine.Run(context.Background(), list, DownloadOpts{
		PatchURL: srv.URL + "/patches",
		TempDir:  t.TempDir(),
	}, nil)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}

func TestEngineIntegrityCheckRejectsCorrupt(t *testing.T) {
	srv := newArchiveServer(t, map[string][]byte{"a.thor": []byte("not a real archive")})

	list := PatchList{{Index: 1, FileName: "a.thor"}}
	engine := NewEngine(logger.NewNopLogger())
	_, _, err := engine.Run(context.Background(), list, DownloadOpts{
		PatchURL:        srv.URL + "/patches",
		TempDir:         t.TempDir(),
		EnsureIntegrity: true,
		OpenArchive: func(path string) (Archive, error) {
			return nil, errors.New("cannot decode")
		},
	}, nil)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}
