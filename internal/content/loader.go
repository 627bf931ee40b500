// Package content loads a site of HTML pages, hardens every page with
// a strict CSP, and publishes the result as an immutable snapshot.
//
// Two sources are supported: a local directory, and an S3 bundle whose
// active release id is read from an SSM parameter. Hardening happens at
// load time, once per page, so the serving path is a map lookup.
package content

import (
	"context"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/keithlinneman/strictcsp/internal/csp"
	"github.com/keithlinneman/strictcsp/internal/log"
	"github.com/keithlinneman/strictcsp/internal/rewrite"
	"github.com/keithlinneman/strictcsp/internal/xerrors"
)

// RewriteObserver receives per-page rewrite outcomes, satisfied by
// metrics.ServerMetrics. May be nil.
type RewriteObserver interface {
	ObserveRewrite(externalScripts, scriptHashes, styleHashes int, seconds float64)
	IncHardenError()
}

type Loader struct {
	Policy  csp.Options
	Logger  log.Logger
	Metrics RewriteObserver
}

// LoadDir hardens every .html file under dir and returns the snapshot.
func (ld *Loader) LoadDir(ctx context.Context, dir string) (*Snapshot, error) {
	files := map[string][]byte{}
	fsys := os.DirFS(dir)
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".html") {
			return nil
		}
		b, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		files[p] = b
		return nil
	})
	if err != nil {
		return nil, xerrors.Wrapf(err, "walking content dir %s", dir)
	}
	return ld.build(ctx, files, "dir:"+dir)
}

// build hardens the given files into a snapshot. Pages are processed
// in sorted order so load logs are stable between runs.
func (ld *Loader) build(ctx context.Context, files map[string][]byte, source string) (*Snapshot, error) {
	L := ld.Logger
	if L == nil {
		L = log.Nop()
	}

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	snap := &Snapshot{
		Pages:    make(map[string]Page, len(files)),
		Source:   source,
		LoadedAt: time.Now(),
	}
	for _, p := range paths {
		start := time.Now()
		res, err := rewrite.Harden(string(files[p]), ld.Policy)
		if err != nil {
			if ld.Metrics != nil {
				ld.Metrics.IncHardenError()
			}
			return nil, xerrors.Wrapf(err, "hardening page %s", p)
		}
		if ld.Metrics != nil {
			ld.Metrics.ObserveRewrite(res.ExternalScripts, res.ScriptHashes, res.StyleHashes, time.Since(start).Seconds())
		}
		snap.Pages[path.Clean(p)] = Page{Path: path.Clean(p), HTML: res.HTML, Policy: res.Policy}
		L.Debug(ctx, "hardened page",
			"path", p,
			"external_scripts", res.ExternalScripts,
			"script_hashes", res.ScriptHashes,
			"style_hashes", res.StyleHashes,
		)
	}

	L.Info(ctx, "content snapshot loaded", "source", source, "pages", len(snap.Pages))
	return snap, nil
}
