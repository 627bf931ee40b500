package content

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/keithlinneman/strictcsp/internal/csp"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestLoadDir_HardensPages(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "index.html",
		`<html><head></head><body><script src="app.js"></script></body></html>`)
	writeFile(t, dir, "posts/hello.html",
		`<html><head></head><body><script>alert(1)</script></body></html>`)
	writeFile(t, dir, "notes.txt", "ignored")

	ld := &Loader{Policy: csp.DefaultOptions()}
	snap, err := ld.LoadDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}

	if len(snap.Pages) != 2 {
		t.Fatalf("pages = %d, want 2 (non-html ignored)", len(snap.Pages))
	}

	idx, ok := snap.Pages["index.html"]
	if !ok {
		t.Fatal("index.html missing from snapshot")
	}
	if strings.Contains(idx.HTML, `src="app.js"`) {
		t.Errorf("sourced script survived hardening: %s", idx.HTML)
	}
	if !strings.Contains(idx.HTML, "Content-Security-Policy") {
		t.Errorf("meta tag missing: %s", idx.HTML)
	}
	if !strings.HasPrefix(idx.Policy, "script-src 'strict-dynamic'") {
		t.Errorf("policy = %q", idx.Policy)
	}

	post, ok := snap.Pages["posts/hello.html"]
	if !ok {
		t.Fatal("nested page missing from snapshot")
	}
	if !strings.Contains(post.Policy, "'sha256-") {
		t.Errorf("inline script not hashed into policy: %q", post.Policy)
	}
}

type fakeObserver struct {
	pages, errors int
}

func (f *fakeObserver) ObserveRewrite(_, _, _ int, _ float64) { f.pages++ }
func (f *fakeObserver) IncHardenError()                       { f.errors++ }

func TestLoadDir_ReportsMetrics(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.html", `<html><body></body></html>`)
	writeFile(t, dir, "b.html", `<html><body></body></html>`)

	obs := &fakeObserver{}
	ld := &Loader{Policy: csp.DefaultOptions(), Metrics: obs}
	if _, err := ld.LoadDir(context.Background(), dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if obs.pages != 2 {
		t.Fatalf("observer saw %d pages, want 2", obs.pages)
	}
}

func TestLoadDir_MissingDirFails(t *testing.T) {
	ld := &Loader{Policy: csp.DefaultOptions()}
	if _, err := ld.LoadDir(context.Background(), filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestManager_SwapAndGet(t *testing.T) {
	m := NewManager()
	if _, ok := m.Get(); ok {
		t.Fatal("Get before first load should report no snapshot")
	}

	first := &Snapshot{Pages: map[string]Page{"a.html": {Path: "a.html"}}}
	m.Set(first)
	got, ok := m.Get()
	if !ok || got != first {
		t.Fatal("Get did not return the published snapshot")
	}

	second := &Snapshot{Pages: map[string]Page{}}
	m.Set(second)
	if got, _ := m.Get(); got != second {
		t.Fatal("Set did not swap the snapshot")
	}
}
