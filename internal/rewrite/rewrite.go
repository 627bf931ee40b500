// Package rewrite turns an HTML document into one protected by a
// hash-based strict Content Security Policy.
//
// The rewriting has two structural steps. Externally-sourced scripts
// cannot be allow-listed by hash, so they are stripped and replaced by
// a single inline loader script that re-creates them at runtime in the
// original order; the loader itself then hashes like any other inline
// script. Inline scripts and styles are hashed as-is, and the finished
// policy is injected as a Content-Security-Policy meta tag.
//
// A Hardener owns exactly one document for its lifetime and is not safe
// for concurrent use; callers processing documents in parallel use one
// Hardener per document.
package rewrite

import (
	"encoding/json"
	"fmt"

	"github.com/keithlinneman/strictcsp/internal/csp"
	"github.com/keithlinneman/strictcsp/internal/csphash"
	"github.com/keithlinneman/strictcsp/internal/dom"
)

const cspMetaHTTPEquiv = "Content-Security-Policy"

// loaderTemplate re-creates stripped sourced scripts at runtime.
// async=false forces in-order, blocking execution, matching the
// guarantee of sequential <script src> tags without async/defer.
const loaderTemplate = `
var scripts = %s;
scripts.forEach(function(scriptUrl) {
  var s = document.createElement('script');
  s.src = scriptUrl;
  s.async = false;
  document.body.appendChild(s);
});
`

// Hardener wraps one parsed document and exposes the rewrite steps.
type Hardener struct {
	doc *dom.Document
}

// New parses src into a document owned by the returned Hardener.
func New(src string) (*Hardener, error) {
	doc, err := dom.Parse(src)
	if err != nil {
		return nil, err
	}
	return &Hardener{doc: doc}, nil
}

// Render serializes the document in its current state.
func (h *Hardener) Render() (string, error) {
	return h.doc.Render()
}

// InjectPolicyMetaTag sets the document's CSP meta tag to policy,
// creating it as the first child of <head> if absent. Idempotent:
// repeated calls leave one meta tag reflecting the latest policy.
func (h *Hardener) InjectPolicyMetaTag(policy string) {
	meta := h.doc.First(dom.ByTagAttrValue("meta", "http-equiv", cspMetaHTTPEquiv))
	if meta == nil {
		meta = h.doc.NewElement("meta")
		meta.SetAttr("http-equiv", cspMetaHTTPEquiv)
		h.doc.PrependToHead(meta)
	}
	meta.SetAttr("content", policy)
}

// CollectAndStripSourcedScripts removes every <script src> element and
// returns the src values in document order. Destructive and single-use:
// a second call returns nil. Elements with an empty src are removed but
// not recorded.
func (h *Hardener) CollectAndStripSourcedScripts() []string {
	var srcs []string
	for _, el := range h.doc.FindAll(dom.ByTagWithAttr("script", "src")) {
		src, ok := el.Attr("src")
		el.Remove()
		if !ok || src == "" {
			continue
		}
		srcs = append(srcs, src)
	}
	return srcs
}

// BuildLoaderScript returns the inline loader body for the given
// sources, or the empty string when there is nothing to load. The
// source list is JSON-encoded, which also escapes "<" so the body can
// never close its own script element.
func (h *Hardener) BuildLoaderScript(srcs []string) string {
	if len(srcs) == 0 {
		return ""
	}
	list, err := json.Marshal(srcs)
	if err != nil {
		// a []string cannot fail to marshal
		return ""
	}
	return fmt.Sprintf(loaderTemplate, list)
}

// RefactorSourcedScripts strips all sourced scripts and appends one
// inline loader script to <body> that replays them in order. A document
// with no sourced scripts is left untouched.
func (h *Hardener) RefactorSourcedScripts() {
	body := h.BuildLoaderScript(h.CollectAndStripSourcedScripts())
	if body == "" {
		return
	}
	s := h.doc.NewElement("script")
	s.SetText(body)
	h.doc.AppendToBody(s)
}

// InlineScriptHashes returns the CSP hash token of every <script>
// without a src attribute, in document order. Non-destructive. An
// element with no text contributes the hash of the empty string.
func (h *Hardener) InlineScriptHashes() []string {
	return h.hashAll(dom.ByTagWithoutAttr("script", "src"))
}

// InlineStyleHashes returns the CSP hash token of every <style> without
// an href attribute, in document order. Non-destructive.
func (h *Hardener) InlineStyleHashes() []string {
	return h.hashAll(dom.ByTagWithoutAttr("style", "href"))
}

func (h *Hardener) hashAll(match dom.Predicate) []string {
	var out []string
	for _, el := range h.doc.FindAll(match) {
		out = append(out, csphash.Token(el.Text()))
	}
	return out
}

// Result is the output of the full Harden pipeline.
type Result struct {
	HTML   string
	Policy string

	// counts for observability
	ExternalScripts int
	ScriptHashes    int
	StyleHashes     int
}

// Harden runs the whole pipeline on src: externalized scripts become an
// inline loader, inline content is hashed, the policy is built from the
// hashes and o, injected as a meta tag, and the document re-serialized.
func Harden(src string, o csp.Options) (Result, error) {
	h, err := New(src)
	if err != nil {
		return Result{}, err
	}

	srcs := h.CollectAndStripSourcedScripts()
	if body := h.BuildLoaderScript(srcs); body != "" {
		s := h.doc.NewElement("script")
		s.SetText(body)
		h.doc.AppendToBody(s)
	}

	scriptHashes := h.InlineScriptHashes()
	styleHashes := h.InlineStyleHashes()
	policy := csp.Build(scriptHashes, styleHashes, o)
	h.InjectPolicyMetaTag(policy)

	out, err := h.Render()
	if err != nil {
		return Result{}, err
	}
	return Result{
		HTML:            out,
		Policy:          policy,
		ExternalScripts: len(srcs),
		ScriptHashes:    len(scriptHashes),
		StyleHashes:     len(styleHashes),
	}, nil
}
