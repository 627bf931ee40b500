// Command strictcsp hardens a single HTML document. It reads from a
// file or stdin, writes the rewritten document to stdout, and can
// print the generated policy separately.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/keithlinneman/strictcsp/internal/csp"
	"github.com/keithlinneman/strictcsp/internal/rewrite"
	v "github.com/keithlinneman/strictcsp/internal/version"
)

func main() {
	var (
		inPath       string
		outPath      string
		policyOnly   bool
		printPolicy  bool
		noFallbacks  bool
		trustedTypes bool
		unsafeEval   bool
		showVersion  bool
	)

	flag.StringVar(&inPath, "in", "-", "input HTML file, - for stdin")
	flag.StringVar(&outPath, "out", "-", "output file, - for stdout")
	flag.BoolVar(&policyOnly, "policy-only", false, "print only the CSP header value")
	flag.BoolVar(&printPolicy, "print-policy", false, "print the CSP header value to stderr")
	flag.BoolVar(&noFallbacks, "no-fallbacks", false, "omit the https:/'unsafe-inline' fallbacks for legacy browsers")
	flag.BoolVar(&trustedTypes, "trusted-types", false, "add require-trusted-types-for 'script'")
	flag.BoolVar(&unsafeEval, "unsafe-eval", false, "allow eval in script-src")
	flag.BoolVar(&showVersion, "V", false, "Print version information and exit")
	flag.Parse()

	if showVersion {
		vi := v.Get()
		fmt.Printf("%s %s (commit=%s, go=%s)\n", vi.AppName, vi.Version, vi.Commit, vi.GoVersion)
		os.Exit(0)
	}

	src, err := readInput(inPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read error:", err)
		os.Exit(1)
	}

	res, err := rewrite.Harden(string(src), csp.Options{
		BrowserFallbacks: !noFallbacks,
		TrustedTypes:     trustedTypes,
		UnsafeEval:       unsafeEval,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "harden error:", err)
		os.Exit(1)
	}

	if policyOnly {
		fmt.Println(res.Policy)
		return
	}
	if printPolicy {
		fmt.Fprintln(os.Stderr, res.Policy)
	}

	if err := writeOutput(outPath, []byte(res.HTML)); err != nil {
		fmt.Fprintln(os.Stderr, "write error:", err)
		os.Exit(1)
	}
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func writeOutput(path string, data []byte) error {
	if path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
