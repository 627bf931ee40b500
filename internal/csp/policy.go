// Package csp builds hash-based strict Content Security Policy strings.
//
// The output format is order-sensitive and byte-deterministic: directive
// order and token order are part of the contract so that a generated
// policy can be audited and diffed across builds.
package csp

import "strings"

// Directive names emitted by Build, in output order.
const (
	ScriptSrc           = "script-src"
	StyleSrc            = "style-src"
	ObjectSrc           = "object-src"
	BaseURI             = "base-uri"
	RequireTrustedTypes = "require-trusted-types-for"
)

// Keyword and scheme source tokens. Keyword sources carry their single
// quotes so they can be joined into a source list verbatim.
const (
	SourceStrictDynamic = "'strict-dynamic'"
	SourceUnsafeInline  = "'unsafe-inline'"
	SourceUnsafeEval    = "'unsafe-eval'"
	SourceNone          = "'none'"
	SourceSelf          = "'self'"
	SourceScript        = "'script'"
	SchemeHTTPS         = "https:"
)

// Options controls the optional parts of a generated policy.
type Options struct {
	// BrowserFallbacks appends https: (and 'unsafe-inline' when script
	// hashes are present) to script-src. Browsers that understand
	// 'strict-dynamic' and hash sources ignore both, so the effective
	// policy is only widened on legacy browsers that would otherwise
	// block everything.
	BrowserFallbacks bool

	// TrustedTypes adds require-trusted-types-for 'script'.
	TrustedTypes bool

	// UnsafeEval appends 'unsafe-eval' to script-src, permitting
	// eval-family calls.
	UnsafeEval bool
}

// DefaultOptions returns the recommended configuration: legacy-browser
// fallbacks on, Trusted Types and unsafe-eval off.
func DefaultOptions() Options {
	return Options{BrowserFallbacks: true}
}

// directive is one name + ordered source list pair. A slice of these,
// not a map, so output order never depends on map iteration.
type directive struct {
	name   string
	tokens []string
}

// Build assembles a strict CSP from the given inline script and style
// hash tokens. Hash order is caller-determined and preserved as given;
// duplicates are kept. object-src 'none' and base-uri 'self' are
// unconditional hardening defaults.
func Build(scriptHashes, styleHashes []string, o Options) string {
	script := make([]string, 0, len(scriptHashes)+3)
	script = append(script, SourceStrictDynamic)
	script = append(script, scriptHashes...)

	if o.BrowserFallbacks {
		script = append(script, SchemeHTTPS)
		if len(scriptHashes) > 0 {
			script = append(script, SourceUnsafeInline)
		}
	}
	if o.UnsafeEval {
		script = append(script, SourceUnsafeEval)
	}

	dirs := []directive{
		{ScriptSrc, script},
		{StyleSrc, styleHashes},
		{ObjectSrc, []string{SourceNone}},
		{BaseURI, []string{SourceSelf}},
	}
	if o.TrustedTypes {
		dirs = append(dirs, directive{RequireTrustedTypes, []string{SourceScript}})
	}

	var b strings.Builder
	for _, d := range dirs {
		b.WriteString(d.name)
		b.WriteByte(' ')
		b.WriteString(strings.Join(d.tokens, " "))
		b.WriteByte(';')
	}
	return b.String()
}
