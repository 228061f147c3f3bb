package fragment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/cfdna/cmd/bio-bed-sort/sorter"
	"github.com/grailbio/cfdna/encoding/bamprovider"
	"github.com/grailbio/cfdna/encoding/bgzf"
	"github.com/grailbio/cfdna/interval"
)

// TempPath returns the pathname of the unsorted BED file that BAMToBED writes
// before sorting into bedPath: "<bedPath without extension>-temp-<pid><ext>".
// bedPath is made absolute first.
func TempPath(bedPath string, pid int) string {
	if abs, err := filepath.Abs(bedPath); err == nil {
		bedPath = abs
	}
	ext := filepath.Ext(bedPath)
	return strings.TrimSuffix(bedPath, ext) + "-temp-" + strconv.Itoa(pid) + ext
}

// writeFragments writes the fragments of the BAM file to bedPath, unsorted.
func writeFragments(ctx context.Context, bamPath, bedPath string, opts Opts) (n int, err error) {
	out, err := file.Create(ctx, bedPath)
	if err != nil {
		return 0, err
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := tsv.NewWriter(out.Writer(ctx))
	provider := bamprovider.NewProvider(bamPath, bamprovider.ProviderOpts{Index: opts.Index})
	err = Extract(provider, opts, func(e interval.Entry) error {
		w.WriteString(e.ChrName)
		w.WriteUint32(uint32(e.Start0))
		w.WriteUint32(uint32(e.End))
		n++
		return w.EndLine()
	})
	if perr := provider.Close(); err == nil {
		err = perr
	}
	if err != nil {
		return n, err
	}
	return n, w.Flush()
}

// BAMToBED writes one line "chrom\tstart\tend" per valid fragment of the
// indexed BAM file bamPath to bedPath, sorted by chromosome, start and end.
// With opts.Compress, it also writes bedPath + ".gz" and its tabix index.
//
// The fragments are first written to TempPath(bedPath, os.Getpid()), which is
// removed before returning.
func BAMToBED(ctx context.Context, bamPath, bedPath string, opts Opts) (err error) {
	if err = bamprovider.CheckIndex(ctx, bamPath, opts.Index); err != nil {
		return err
	}
	tmpPath := TempPath(bedPath, os.Getpid())
	defer func() {
		if rerr := file.Remove(ctx, tmpPath); rerr != nil && !errors.Is(errors.NotExist, rerr) {
			log.Error.Printf("remove %s: %v", tmpPath, rerr)
		}
	}()
	n, err := writeFragments(ctx, bamPath, tmpPath, opts)
	if err != nil {
		return errors.E(err, fmt.Sprintf("extract fragments from %s", bamPath))
	}
	log.Printf("%s: %d fragments generated, sorting", bamPath, n)
	if err = sorter.SortBEDFile(ctx, tmpPath, bedPath, sorter.SortOptions{TmpDir: opts.TmpDir}); err != nil {
		return errors.E(err, fmt.Sprintf("sort %s", tmpPath))
	}
	log.Printf("%s: fragments sorted", bedPath)
	if !opts.Compress {
		return nil
	}
	log.Printf("%s: compressing and indexing", bedPath)
	gzPath := bedPath + ".gz"
	if err = bgzf.CompressBED(ctx, bedPath, gzPath, opts.Force); err != nil {
		return err
	}
	log.Printf("%s: indexing finished", gzPath)
	return nil
}
