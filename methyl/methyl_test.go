package methyl_test

import (
	"context"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/cfdna/encoding/bamprovider"
	"github.com/grailbio/cfdna/interval"
	"github.com/grailbio/cfdna/methyl"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	chr1, _  = sam.NewReference("chr1", "", "", 100000, nil, nil)
	header   = mustHeader(chr1)
	cigar10M = sam.Cigar{sam.NewCigarOp(sam.CigarMatch, 10)}
)

func mustHeader(refs ...*sam.Reference) *sam.Header {
	h, err := sam.NewHeader(nil, refs)
	if err != nil {
		panic(err)
	}
	h.SortOrder = sam.Coordinate
	return h
}

func newAux(tag string, value interface{}) sam.Aux {
	aux, err := sam.NewAux(sam.NewTag(tag), value)
	if err != nil {
		panic(err)
	}
	return aux
}

func newRead(name string, pos int, calls string) *sam.Record {
	return bamprovider.NewTestRecord(name, chr1, pos, 0, nil, -1, 0, cigar10M, newAux("XM", calls))
}

func testReads() []*sam.Record {
	return []*sam.Record{
		newRead("r1", 100, "zZ..xXhH.."),
		newRead("r2", 105, "ZZ..uU...."),
		newRead("r3", 300, "hhhh......"),
	}
}

func TestCountCalls(t *testing.T) {
	var c methyl.Counts
	methyl.CountCalls("zZxXhHuU", &c)
	expect.EQ(t, c, methyl.Counts{1, 1, 1, 1, 1, 1, 1, 1})
	methyl.CountCalls("ZZZ.acgtN", &c)
	expect.EQ(t, c, methyl.Counts{1, 4, 1, 1, 1, 1, 1, 1})
	methyl.CountCalls("", &c)
	expect.EQ(t, c.MCpG, int64(4))

	var sum methyl.Counts
	sum.Add(c)
	sum.Add(c)
	expect.EQ(t, sum.MCpG, int64(8))
	expect.EQ(t, sum.UnmUNC, int64(2))
}

func TestCount(t *testing.T) {
	provider := bamprovider.NewFakeProvider(header, testReads())
	regions, err := methyl.Count(provider, []interval.Entry{
		{ChrName: "chr1", Start0: 100, End: 200},
		{ChrName: "chr1", Start0: 112, End: 120},
		{ChrName: "chr1", Start0: 305, End: 306},
	})
	require.NoError(t, err)
	require.Len(t, regions, 3)

	r := regions[0]
	expect.EQ(t, r.Entry, interval.Entry{ChrName: "chr1", Start0: 100, End: 200})
	expect.EQ(t, r.Counts, methyl.Counts{UnmCpG: 1, MCpG: 3, UnmCHG: 1, MCHG: 1, UnmCHH: 1, MCHH: 1, UnmUNC: 1, MUNC: 1})
	assert.InDelta(t, 0.75, r.CpG, 1e-9)
	assert.InDelta(t, 0.5, r.CHG, 1e-9)
	assert.InDelta(t, 0.5, r.CHH, 1e-9)
	assert.InDelta(t, 0.5, r.UNC, 1e-9)

	// Only r2 overlaps the second region.
	r = regions[1]
	expect.EQ(t, r.Counts, methyl.Counts{MCpG: 2, UnmUNC: 1, MUNC: 1})
	assert.InDelta(t, 1.0, r.CpG, 1e-9)
	assert.True(t, math.IsNaN(r.CHG))
	assert.True(t, math.IsNaN(r.CHH))

	r = regions[2]
	expect.EQ(t, r.Counts, methyl.Counts{UnmCHH: 4})
	assert.True(t, math.IsNaN(r.CpG))
	assert.InDelta(t, 0.0, r.CHH, 1e-9)
}

func TestCountMissingTag(t *testing.T) {
	reads := []*sam.Record{
		bamprovider.NewTestRecord("untagged", chr1, 100, 0, nil, -1, 0, cigar10M),
	}
	_, err := methyl.Count(bamprovider.NewFakeProvider(header, reads), []interval.Entry{{ChrName: "chr1", Start0: 0, End: 1000}})
	assert.True(t, errors.Is(errors.NotExist, err), "err: %v", err)

	reads = []*sam.Record{
		bamprovider.NewTestRecord("int", chr1, 100, 0, nil, -1, 0, cigar10M, newAux("XM", 5)),
	}
	_, err = methyl.Count(bamprovider.NewFakeProvider(header, reads), []interval.Entry{{ChrName: "chr1", Start0: 0, End: 1000}})
	assert.True(t, errors.Is(errors.Invalid, err), "err: %v", err)

	// Reads outside of the regions are never looked at.
	regions, err := methyl.Count(bamprovider.NewFakeProvider(header, reads), []interval.Entry{{ChrName: "chr1", Start0: 500, End: 1000}})
	require.NoError(t, err)
	expect.EQ(t, regions[0].Counts, methyl.Counts{})
}

func TestWriteTable(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := filepath.Join(dir, "out.txt")
	regions := []methyl.Region{
		{
			Entry:  interval.Entry{ChrName: "chr2", Start0: 5, End: 10},
			Counts: methyl.Counts{UnmCpG: 1, MCpG: 3},
			CpG:    0.75, CHG: math.NaN(), CHH: math.NaN(), UNC: math.NaN(),
		},
		{
			Entry:  interval.Entry{ChrName: "chr1", Start0: 0, End: 1},
			Counts: methyl.Counts{UnmCHH: 2},
			CpG:    math.NaN(), CHG: math.NaN(), CHH: 0, UNC: math.NaN(),
		},
	}
	require.NoError(t, methyl.WriteTable(ctx, path, regions))
	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	expect.EQ(t, string(data),
		"chr\tstart\tend\tunmCpG\tmCpG\tunmCHG\tmCHG\tunmCHH\tmCHH\tunmUNC\tmUNC\tmlCpG\tmlCHG\tmlCHH\tmlUNC\n"+
			"chr2\t5\t10\t1\t3\t0\t0\t0\t0\t0\t0\t0.75\tNaN\tNaN\tNaN\n"+
			"chr1\t0\t1\t0\t0\t0\t0\t2\t0\t0\t0\tNaN\tNaN\t0\tNaN\n")
}

func TestCalculate(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	bamPath := filepath.Join(dir, "in.bam")
	require.NoError(t, bamprovider.WriteIndexedBAM(bamPath, header, testReads()))
	bedPath := filepath.Join(dir, "regions.bed")
	require.NoError(t, ioutil.WriteFile(bedPath, []byte("chr1\t300\t400\nchr1\t0\t50\n"), 0644))
	txtPath := filepath.Join(dir, "out.txt")

	require.NoError(t, methyl.Calculate(ctx, bamPath, bedPath, txtPath))
	data, err := ioutil.ReadFile(txtPath)
	require.NoError(t, err)
	expect.EQ(t, string(data),
		"chr\tstart\tend\tunmCpG\tmCpG\tunmCHG\tmCHG\tunmCHH\tmCHH\tunmUNC\tmUNC\tmlCpG\tmlCHG\tmlCHH\tmlUNC\n"+
			"chr1\t300\t400\t0\t0\t0\t0\t4\t0\t0\t0\tNaN\tNaN\t0\tNaN\n"+
			"chr1\t0\t50\t0\t0\t0\t0\t0\t0\t0\t0\tNaN\tNaN\tNaN\tNaN\n")

	require.NoError(t, os.Remove(bamPath+".bai"))
	err = methyl.Calculate(ctx, bamPath, bedPath, txtPath)
	assert.True(t, errors.Is(errors.NotExist, err), "err: %v", err)
}
