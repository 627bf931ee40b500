package content

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/keithlinneman/strictcsp/internal/csp"
)

func tarball(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		if err := tw.WriteHeader(&tar.Header{
			Name:     name,
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			Size:     int64(len(body)),
		}); err != nil {
			t.Fatalf("WriteHeader: %v", err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar Close: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip Close: %v", err)
	}
	return buf.Bytes()
}

type fakeS3 struct {
	wantKey string
	body    []byte
	t       *testing.T
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if got := aws.ToString(in.Key); got != f.wantKey {
		f.t.Errorf("GetObject key = %q, want %q", got, f.wantKey)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.body))}, nil
}

type fakeSSM struct{ value string }

func (f *fakeSSM) GetParameter(_ context.Context, _ *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	return &ssm.GetParameterOutput{
		Parameter: &ssmtypes.Parameter{Value: aws.String(f.value)},
	}, nil
}

func TestLoadS3_ResolvesReleaseAndHardens(t *testing.T) {
	bundle := tarball(t, map[string]string{
		"index.html": `<html><body><script>alert(1)</script></body></html>`,
		"robots.txt": "ignored",
	})

	ld := &Loader{Policy: csp.DefaultOptions()}
	snap, err := ld.LoadS3(context.Background(),
		&fakeS3{wantKey: "bundles/r-42.tar.gz", body: bundle, t: t},
		&fakeSSM{value: "r-42"},
		"my-bucket", "bundles", "/app/content/release")
	if err != nil {
		t.Fatalf("LoadS3: %v", err)
	}

	if len(snap.Pages) != 1 {
		t.Fatalf("pages = %d, want 1", len(snap.Pages))
	}
	page := snap.Pages["index.html"]
	if !strings.Contains(page.Policy, "'sha256-") {
		t.Errorf("policy missing hash: %q", page.Policy)
	}
	if !strings.Contains(snap.Source, "my-bucket") {
		t.Errorf("Source = %q", snap.Source)
	}
}

func TestLoadS3_EmptyParameterFails(t *testing.T) {
	ld := &Loader{Policy: csp.DefaultOptions()}
	_, err := ld.LoadS3(context.Background(),
		&fakeS3{t: t}, &fakeSSM{value: ""},
		"b", "p", "/param")
	if err == nil {
		t.Fatal("expected error for empty release id")
	}
}

func TestUntarHTML_RejectsEscapingPaths(t *testing.T) {
	bundle := tarball(t, map[string]string{
		"../evil.html": `<html></html>`,
	})
	if _, err := untarHTML(bytes.NewReader(bundle)); err == nil {
		t.Fatal("expected error for path escaping bundle root")
	}
}

func TestUntarHTML_SkipsNonHTML(t *testing.T) {
	bundle := tarball(t, map[string]string{
		"a.html":    "<html></html>",
		"style.css": "body{}",
	})
	files, err := untarHTML(bytes.NewReader(bundle))
	if err != nil {
		t.Fatalf("untarHTML: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("files = %v, want only a.html", files)
	}
}
