// Package fragment converts read pairs of an indexed BAM file into fragment
// intervals, and summarizes fragment lengths.
package fragment

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/cfdna/encoding/bamprovider"
	"github.com/grailbio/cfdna/interval"
	"github.com/grailbio/hts/sam"
)

// Opts controls BAMToBED and Extract.
type Opts struct {
	// Compress causes BAMToBED to also write a bgzip copy of the BED file,
	// <bed>.gz, plus its tabix index, <bed>.gz.tbi.
	Compress bool
	// Force allows Compress to overwrite an existing <bed>.gz.
	Force bool
	// Region, if nonempty, restricts the reads to a samtools-style region, e.g.,
	// "chr1:10001-20000".
	Region string
	// Index is the pathname of the BAM index. If "", <bam>.bai.
	Index string
	// TmpDir is the directory for the sorter's temp files. "" means the system
	// default.
	TmpDir string
}

// FromPair returns the fragment spanned by a read pair. The fragment starts
// at the leftmost position of the forward-strand mate and ends at the
// rightmost position of the reverse-strand mate, using the strand of R1 to
// tell them apart. It returns false if the fragment has a negative coordinate
// or is empty.
func FromPair(p bamprovider.Pair) (interval.Entry, bool) {
	var start, end int
	if p.R1.Flags&sam.Reverse == 0 {
		start, end = p.R1.Pos, p.R2.End()
	} else {
		start, end = p.R2.Pos, p.R1.End()
	}
	if start < 0 || end < 0 || start >= end {
		return interval.Entry{}, false
	}
	return interval.Entry{
		ChrName: p.R1.Ref.Name(),
		Start0:  interval.PosType(start),
		End:     interval.PosType(end),
	}, true
}

// Extract reads the pairs of the BAM file read by provider, restricted to
// opts.Region if set, and calls emit for each valid fragment, in the order
// of the pairs' second mates. It stops at the first error.
func Extract(provider bamprovider.Provider, opts Opts, emit func(interval.Entry) error) error {
	var iter bamprovider.Iterator
	if opts.Region != "" {
		r, err := interval.ParseRegionString(opts.Region)
		if err != nil {
			return errors.E(errors.Invalid, fmt.Sprintf("region %s", opts.Region), err)
		}
		iter = provider.NewRegionIterator(r.ChrName, int(r.Start0), int(r.End))
	} else {
		iter = provider.NewIterator()
	}
	pairs := bamprovider.NewPairIterator(iter)
	var nFrags, nDropped int
	for pairs.Scan() {
		p := pairs.Record()
		if p.Err != nil {
			pairs.Close() // nolint: errcheck
			return p.Err
		}
		e, ok := FromPair(p)
		if !ok {
			nDropped++
			continue
		}
		if err := emit(e); err != nil {
			pairs.Close() // nolint: errcheck
			return err
		}
		nFrags++
	}
	if n := pairs.Unpaired(); n > 0 {
		log.Debug.Printf("fragment: %d reads without a mate", n)
	}
	log.Debug.Printf("fragment: %d fragments, %d dropped", nFrags, nDropped)
	return pairs.Close()
}
