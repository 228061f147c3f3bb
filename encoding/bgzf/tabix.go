package bgzf

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/cfdna/interval"
	htsbgzf "github.com/grailbio/hts/bgzf"
	"github.com/grailbio/hts/tabix"
)

// TabixSuffix is appended to the name of a .bgzf file to get its tabix index.
const TabixSuffix = ".tbi"

// bedRecord adapts interval.Entry to tabix.Record.
type bedRecord struct{ e interval.Entry }

func (r bedRecord) RefName() string { return r.e.ChrName }
func (r bedRecord) Start() int      { return int(r.e.Start0) }
func (r bedRecord) End() int        { return int(r.e.End) }

// toOffset converts a virtual offset to a hts bgzf.Offset.
func toOffset(voffset uint64) htsbgzf.Offset {
	return htsbgzf.Offset{
		File:  int64(voffset >> 16),
		Block: uint16(voffset),
	}
}

// NewBEDIndex creates an empty tabix index configured with the BED preset:
// 0-based coordinates, name/begin/end in columns 1/2/3, '#' comment lines.
func NewBEDIndex() *tabix.Index {
	idx := tabix.New()
	idx.Format = 0 // generic
	idx.ZeroBased = true
	idx.NameColumn = 1
	idx.BeginColumn = 2
	idx.EndColumn = 3
	idx.MetaChar = '#'
	idx.Skip = 0
	return idx
}

// WriteBED compresses the BED text read from r into w, and returns its tabix
// index. The input must be sorted by chromosome, then start.
func WriteBED(w io.Writer, r io.Reader) (*tabix.Index, error) {
	bw, err := NewWriter(w, DefaultCompressionLevel)
	if err != nil {
		return nil, err
	}
	idx := NewBEDIndex()
	scanner := bufio.NewScanner(r)
	lineIdx := 0
	for scanner.Scan() {
		lineIdx++
		line := scanner.Bytes()
		begin := bw.VOffset()
		if _, err := bw.Write(line); err != nil {
			return nil, err
		}
		if _, err := bw.Write([]byte{'\n'}); err != nil {
			return nil, err
		}
		e, ok, err := interval.ParseBEDLine(line, lineIdx)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		chunk := htsbgzf.Chunk{Begin: toOffset(begin), End: toOffset(bw.VOffset())}
		if err := idx.Add(bedRecord{e}, chunk, true, true); err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("tabix: line %d (%v)", lineIdx, e), err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := bw.Close(); err != nil {
		return nil, err
	}
	return idx, nil
}

// CompressBED writes a bgzip-compressed copy of the BED file bedPath to
// gzPath, and its tabix index to gzPath + ".tbi". If gzPath already exists
// and force is false, it returns an errors.Exists error. bedPath is left in
// place.
func CompressBED(ctx context.Context, bedPath, gzPath string, force bool) (err error) {
	if !force {
		if _, err := file.Stat(ctx, gzPath); err == nil {
			return errors.E(errors.Exists, fmt.Sprintf("%s already exists; use force to overwrite", gzPath))
		}
	}
	in, err := file.Open(ctx, bedPath)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, in, &err)
	out, err := file.Create(ctx, gzPath)
	if err != nil {
		return err
	}
	idx, err := WriteBED(out.Writer(ctx), in.Reader(ctx))
	if err != nil {
		out.Close(ctx)           // nolint: errcheck
		file.Remove(ctx, gzPath) // nolint: errcheck
		return err
	}
	if err = out.Close(ctx); err != nil {
		return err
	}

	indexPath := gzPath + TabixSuffix
	indexOut, err := file.Create(ctx, indexPath)
	if err != nil {
		return err
	}
	if err = tabix.WriteTo(indexOut.Writer(ctx), idx); err != nil {
		indexOut.Close(ctx)         // nolint: errcheck
		file.Remove(ctx, indexPath) // nolint: errcheck
		return err
	}
	if err = indexOut.Close(ctx); err != nil {
		return err
	}
	log.Debug.Printf("bgzf: wrote %s and %s", gzPath, indexPath)
	return nil
}
