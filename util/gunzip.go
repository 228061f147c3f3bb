package util

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/klauspost/compress/gzip"
)

// GunzipPath returns the pathname that Gunzip writes to: a sibling of path
// whose file name has every ".gz" removed. The directory part is kept as is.
func GunzipPath(path string) string {
	dir, name := filepath.Split(path)
	return dir + strings.Replace(name, ".gz", "", -1)
}

// Gunzip decompresses the gzip (or bgzip) file at path into GunzipPath(path),
// overwriting it, and returns the pathname of the output.
func Gunzip(ctx context.Context, path string) (outPath string, err error) {
	outPath = GunzipPath(path)
	if _, name := filepath.Split(outPath); outPath == path || name == "" {
		return "", errors.E(errors.Invalid, fmt.Sprintf("gunzip %s: file name must contain .gz and something else", path))
	}
	in, err := file.Open(ctx, path)
	if err != nil {
		return "", err
	}
	defer file.CloseAndReport(ctx, in, &err)
	gz, err := gzip.NewReader(in.Reader(ctx))
	if err != nil {
		return "", errors.E(errors.Invalid, fmt.Sprintf("gunzip %s", path), err)
	}
	out, err := file.Create(ctx, outPath)
	if err != nil {
		return "", err
	}
	n, err := io.Copy(out.Writer(ctx), gz)
	if err == nil {
		err = gz.Close()
	}
	if err != nil {
		out.Close(ctx)            // nolint: errcheck
		file.Remove(ctx, outPath) // nolint: errcheck
		return "", errors.E(fmt.Sprintf("gunzip %s", path), err)
	}
	if err = out.Close(ctx); err != nil {
		return "", err
	}
	log.Debug.Printf("gunzip: %s -> %s (%d bytes)", path, outPath, n)
	return outPath, nil
}
