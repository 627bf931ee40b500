package content

import (
	"sync/atomic"
	"time"
)

// Page is one hardened HTML document ready to serve.
type Page struct {
	// Path is the slash-separated path relative to the site root,
	// e.g. "index.html" or "posts/hello.html".
	Path string

	// HTML is the rewritten document, CSP meta tag included.
	HTML string

	// Policy is the page's CSP, also sent as a response header.
	Policy string
}

// Snapshot is one immutable generation of hardened site content.
type Snapshot struct {
	Pages    map[string]Page
	Source   string
	LoadedAt time.Time
}

// Manager holds the active snapshot and swaps it atomically, so
// request handlers never see a half-loaded site.
type Manager struct {
	active atomic.Pointer[Snapshot]
}

func NewManager() *Manager { return &Manager{} }

// Get returns the active snapshot, or (nil, false) before first load.
func (m *Manager) Get() (*Snapshot, bool) {
	s := m.active.Load()
	return s, s != nil
}

// Set publishes a new snapshot.
func (m *Manager) Set(s *Snapshot) { m.active.Store(s) }
