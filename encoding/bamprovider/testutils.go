package bamprovider

import (
	"bytes"
	"io"
	"os"

	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
)

// NewTestRecord creates a record for unittests. Its sequence and base
// qualities are filled with placeholder values whose length matches cigar.
func NewTestRecord(name string, ref *sam.Reference, pos int, flags sam.Flags,
	mateRef *sam.Reference, matePos, tempLen int, cigar sam.Cigar, aux ...sam.Aux) *sam.Record {
	var n int
	for _, op := range cigar {
		n += op.Type().Consumes().Query * op.Len()
	}
	seq := bytes.Repeat([]byte{'A'}, n)
	qual := bytes.Repeat([]byte{30}, n)
	r, err := sam.NewRecord(name, ref, mateRef, pos, matePos, tempLen, 60, cigar, seq, qual, aux)
	if err != nil {
		panic(err)
	}
	r.Flags = flags
	return r
}

// WriteIndexedBAM writes recs to path as a BAM file, then writes its index to
// path + ".bai". recs must be sorted by coordinate. It is meant for creating
// test inputs on the local filesystem.
func WriteIndexedBAM(path string, header *sam.Header, recs []*sam.Record) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	w, err := bam.NewWriter(out, header, 1)
	if err != nil {
		out.Close() // nolint: errcheck
		return err
	}
	for _, r := range recs {
		if err := w.Write(r); err != nil {
			out.Close() // nolint: errcheck
			return err
		}
	}
	if err := w.Close(); err != nil {
		out.Close() // nolint: errcheck
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close() // nolint: errcheck
	r, err := bam.NewReader(in, 1)
	if err != nil {
		return err
	}
	var idx bam.Index
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := idx.Add(rec, r.LastChunk()); err != nil {
			return err
		}
	}
	indexOut, err := os.Create(path + ".bai")
	if err != nil {
		return err
	}
	if err := bam.WriteIndex(indexOut, &idx); err != nil {
		indexOut.Close() // nolint: errcheck
		return err
	}
	return indexOut.Close()
}
