// Package methyl computes per-region methylation levels from bisulfite reads.
// Each read carries its methylation calls in the XM aux tag, one character per
// base:
//
//   z/Z  unmethylated/methylated C in CpG context
//   x/X  unmethylated/methylated C in CHG context
//   h/H  unmethylated/methylated C in CHH context
//   u/U  unmethylated/methylated C in unknown context
//
// Every other character is ignored.
package methyl

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/cfdna/encoding/bamprovider"
	"github.com/grailbio/cfdna/interval"
	"github.com/grailbio/hts/sam"
)

var xmTag = sam.NewTag("XM")

// Counts holds the number of methylation calls of each kind.
type Counts struct {
	UnmCpG, MCpG int64
	UnmCHG, MCHG int64
	UnmCHH, MCHH int64
	UnmUNC, MUNC int64
}

// Add adds the calls in o to c.
func (c *Counts) Add(o Counts) {
	c.UnmCpG += o.UnmCpG
	c.MCpG += o.MCpG
	c.UnmCHG += o.UnmCHG
	c.MCHG += o.MCHG
	c.UnmCHH += o.UnmCHH
	c.MCHH += o.MCHH
	c.UnmUNC += o.UnmUNC
	c.MUNC += o.MUNC
}

// CountCalls adds the calls of the methylation call string to c.
func CountCalls(calls string, c *Counts) {
	for i := 0; i < len(calls); i++ {
		switch calls[i] {
		case 'z':
			c.UnmCpG++
		case 'Z':
			c.MCpG++
		case 'x':
			c.UnmCHG++
		case 'X':
			c.MCHG++
		case 'h':
			c.UnmCHH++
		case 'H':
			c.MCHH++
		case 'u':
			c.UnmUNC++
		case 'U':
			c.MUNC++
		}
	}
}

// Region is a genomic interval with the methylation calls of the reads
// overlapping it.
type Region struct {
	interval.Entry
	Counts
	// Methylation levels, m/(m+unm) per context. NaN when the region has no
	// call of that context.
	CpG, CHG, CHH, UNC float64
}

// ratio returns m/(m+unm). 0/0 is NaN.
func ratio(m, unm int64) float64 {
	return float64(m) / float64(m+unm)
}

// setLevels computes the methylation levels from the counts.
func (r *Region) setLevels() {
	r.CpG = ratio(r.MCpG, r.UnmCpG)
	r.CHG = ratio(r.MCHG, r.UnmCHG)
	r.CHH = ratio(r.MCHH, r.UnmCHH)
	r.UNC = ratio(r.MUNC, r.UnmUNC)
}

// RecordCalls returns the methylation call string of r. It fails with
// errors.NotExist if r has no XM tag, and errors.Invalid if the tag is not a
// string.
func RecordCalls(r *sam.Record) (string, error) {
	aux := r.AuxFields.Get(xmTag)
	if aux == nil {
		return "", errors.E(errors.NotExist, fmt.Sprintf("read %s: no XM tag", r.Name))
	}
	calls, ok := aux.Value().(string)
	if !ok {
		return "", errors.E(errors.Invalid, fmt.Sprintf("read %s: XM tag has type %c, want Z", r.Name, aux.Type()))
	}
	return calls, nil
}

func countRegion(provider bamprovider.Provider, e interval.Entry) (Region, error) {
	region := Region{Entry: e}
	iter := provider.NewRegionIterator(e.ChrName, int(e.Start0), int(e.End))
	for iter.Scan() {
		calls, err := RecordCalls(iter.Record())
		if err != nil {
			iter.Close() // nolint: errcheck
			return region, err
		}
		CountCalls(calls, &region.Counts)
	}
	if err := iter.Close(); err != nil {
		return region, err
	}
	region.setLevels()
	return region, nil
}

// Count tallies the methylation calls of the reads overlapping each entry,
// and returns one Region per entry, in the same order. A read overlapping
// several entries is counted once for each of them.
func Count(provider bamprovider.Provider, entries []interval.Entry) ([]Region, error) {
	regions := make([]Region, 0, len(entries))
	for _, e := range entries {
		r, err := countRegion(provider, e)
		if err != nil {
			return nil, errors.E(err, fmt.Sprintf("region %v", e))
		}
		regions = append(regions, r)
	}
	return regions, nil
}

// tableHeader lists the columns written by WriteTable.
var tableHeader = []string{
	"chr", "start", "end",
	"unmCpG", "mCpG", "unmCHG", "mCHG", "unmCHH", "mCHH", "unmUNC", "mUNC",
	"mlCpG", "mlCHG", "mlCHH", "mlUNC",
}

// WriteTable writes the regions as a tab-separated table with a header line.
// Levels are written in the shortest representation that round-trips, and
// missing levels as "NaN".
func WriteTable(ctx context.Context, path string, regions []Region) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := tsv.NewWriter(out.Writer(ctx))
	for _, col := range tableHeader {
		w.WriteString(col)
	}
	if err = w.EndLine(); err != nil {
		return err
	}
	for _, r := range regions {
		w.WriteString(r.ChrName)
		w.WriteInt64(int64(r.Start0))
		w.WriteInt64(int64(r.End))
		for _, n := range []int64{r.UnmCpG, r.MCpG, r.UnmCHG, r.MCHG, r.UnmCHH, r.MCHH, r.UnmUNC, r.MUNC} {
			w.WriteInt64(n)
		}
		for _, v := range []float64{r.CpG, r.CHG, r.CHH, r.UNC} {
			w.WriteFloat64(v, 'g', -1)
		}
		if err = w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Calculate counts the methylation calls of the indexed BAM file bamPath in
// each region of the BED file bedPath, and writes the table to txtPath.
func Calculate(ctx context.Context, bamPath, bedPath, txtPath string) error {
	if err := bamprovider.CheckIndex(ctx, bamPath, ""); err != nil {
		return err
	}
	entries, err := interval.ReadBEDEntries(ctx, bedPath)
	if err != nil {
		return err
	}
	provider := bamprovider.NewProvider(bamPath)
	regions, err := Count(provider, entries)
	if perr := provider.Close(); err == nil {
		err = perr
	}
	if err != nil {
		return err
	}
	log.Debug.Printf("methyl: counted %d regions of %s", len(regions), bamPath)
	return WriteTable(ctx, txtPath, regions)
}
