package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/keithlinneman/strictcsp/internal/xerrors"
)

func newTestLogger(t *testing.T, buf *bytes.Buffer) Logger {
	t.Helper()
	l, err := New(Options{App: "test", Level: slog.LevelDebug, JsonFormat: true, Writer: buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

func lastLine(buf *bytes.Buffer) map[string]any {
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var m map[string]any
	_ = json.Unmarshal([]byte(lines[len(lines)-1]), &m)
	return m
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{" warn ", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", 0, true},
		{"", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseLevel(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseLevel(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
	}
}

func TestInfo_EmitsAppAttrAndMessage(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf)

	l.Info(context.Background(), "hello", "k", "v")

	m := lastLine(&buf)
	if m["msg"] != "hello" || m["app"] != "test" || m["k"] != "v" {
		t.Fatalf("record = %v", m)
	}
}

func TestWith_AddsAttrsWithoutMutatingParent(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf)
	child := l.With("component", "rewriter")

	child.Info(context.Background(), "from child")
	if m := lastLine(&buf); m["component"] != "rewriter" {
		t.Fatalf("child record missing attr: %v", m)
	}

	buf.Reset()
	l.Info(context.Background(), "from parent")
	if m := lastLine(&buf); m["component"] != nil {
		t.Fatalf("parent leaked child attr: %v", m)
	}
}

func TestError_IncludesErrAndStack(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf)

	l.Error(context.Background(), xerrors.New("kaboom"), "op failed")

	m := lastLine(&buf)
	if m["err"] != "kaboom" {
		t.Fatalf("record missing err: %v", m)
	}
	stack, _ := m["stack"].(string)
	if !strings.Contains(stack, "TestError_IncludesErrAndStack") {
		t.Fatalf("stack missing caller frame: %q", stack)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{App: "test", Level: slog.LevelWarn, JsonFormat: true, Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	l.Debug(context.Background(), "dropped")
	l.Info(context.Background(), "dropped too")
	if buf.Len() != 0 {
		t.Fatalf("sub-level records emitted: %s", buf.String())
	}

	l.Warn(context.Background(), "kept")
	if buf.Len() == 0 {
		t.Fatal("warn record not emitted")
	}
}

func TestFromContext_RoundTripAndFallback(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf)

	ctx := WithContext(context.Background(), l)
	if got := FromContext(ctx); got != l {
		t.Fatal("FromContext did not return the stored logger")
	}

	// fallback must be safe to use
	nop := FromContext(context.Background())
	nop.Info(context.Background(), "into the void")
	if err := nop.Sync(); err != nil {
		t.Fatalf("nop Sync: %v", err)
	}
}
