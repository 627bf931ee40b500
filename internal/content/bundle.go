package content

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/strictcsp/internal/xerrors"
)

// maxBundleFile bounds a single file inside a bundle so a corrupt or
// hostile archive cannot exhaust memory.
const maxBundleFile = 32 << 20

// S3API is the slice of the S3 client the loader needs.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// SSMAPI is the slice of the SSM client the loader needs.
type SSMAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// LoadS3 resolves the active release id from the SSM parameter, fetches
// <prefix>/<release>.tar.gz from the bucket, and hardens the contained
// HTML files into a snapshot.
func (ld *Loader) LoadS3(ctx context.Context, s3c S3API, ssmc SSMAPI, bucket, prefix, param string) (*Snapshot, error) {
	p, err := ssmc.GetParameter(ctx, &ssm.GetParameterInput{Name: aws.String(param)})
	if err != nil {
		return nil, xerrors.Wrapf(err, "reading ssm parameter %s", param)
	}
	release := aws.ToString(p.Parameter.Value)
	if release == "" {
		return nil, xerrors.Newf("ssm parameter %s is empty", param)
	}

	key := path.Join(prefix, release) + ".tar.gz"
	obj, err := s3c.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, xerrors.Wrapf(err, "fetching s3://%s/%s", bucket, key)
	}
	defer obj.Body.Close()

	files, err := untarHTML(obj.Body)
	if err != nil {
		return nil, xerrors.Wrapf(err, "unpacking bundle %s", key)
	}
	return ld.build(ctx, files, "s3://"+bucket+"/"+key)
}

// untarHTML extracts the .html regular files from a gzipped tarball.
// Entries escaping the bundle root (absolute or ..-relative paths) are
// rejected outright.
func untarHTML(r io.Reader) (map[string][]byte, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	files := map[string][]byte{}
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return files, nil
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := path.Clean(hdr.Name)
		if path.IsAbs(name) || name == ".." || strings.HasPrefix(name, "../") {
			return nil, xerrors.Newf("bundle entry %q escapes root", hdr.Name)
		}
		if !strings.HasSuffix(name, ".html") {
			continue
		}
		b, err := io.ReadAll(io.LimitReader(tr, maxBundleFile+1))
		if err != nil {
			return nil, err
		}
		if len(b) > maxBundleFile {
			return nil, xerrors.Newf("bundle entry %q exceeds %d bytes", hdr.Name, maxBundleFile)
		}
		files[name] = b
	}
}
