// Package pagehandler serves hardened pages from the active content
// snapshot. Pages arrive fully rewritten, so serving is a map lookup
// plus headers.
package pagehandler

import (
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/keithlinneman/strictcsp/internal/content"
)

// SnapshotProvider is satisfied by content.Manager.
type SnapshotProvider interface {
	Get() (*content.Snapshot, bool)
}

type Options struct {
	Content SnapshotProvider

	// CacheControl for served pages; hardened HTML is immutable per
	// snapshot but snapshots can swap, so default is no-cache.
	CacheControl string
}

type Handler struct {
	opts Options
}

func New(opts *Options) (*Handler, error) {
	if opts.Content == nil {
		return nil, fmt.Errorf("pagehandler: Content is nil")
	}
	if opts.CacheControl == "" {
		opts.CacheControl = "no-cache"
	}
	return &Handler{opts: *opts}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// hardening: only allow GET/HEAD
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	snap, ok := h.opts.Content.Get()
	if !ok {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Retry-After", "60")
		http.Error(w, "content is loading, retry shortly", http.StatusServiceUnavailable)
		return
	}

	page, found := resolve(r.URL.Path, snap.Pages)
	if !found {
		w.Header().Set("Cache-Control", "no-store")
		http.Error(w, "404 page not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", page.Policy)
	w.Header().Set("Cache-Control", h.opts.CacheControl)
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Length", fmt.Sprint(len(page.HTML)))
		return
	}
	_, _ = w.Write([]byte(page.HTML))
}

// resolve maps a request path to a page: exact match, then "<p>.html",
// then "<p>/index.html". The root maps to index.html.
func resolve(urlPath string, pages map[string]content.Page) (content.Page, bool) {
	p := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if p == "" || p == "." {
		p = "index.html"
	}
	if page, ok := pages[p]; ok {
		return page, true
	}
	if page, ok := pages[p+".html"]; ok {
		return page, true
	}
	if page, ok := pages[path.Join(p, "index.html")]; ok {
		return page, true
	}
	return content.Page{}, false
}
