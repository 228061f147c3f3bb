package bamprovider

import (
	"fmt"
	"io"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/bgzf"
	"github.com/grailbio/hts/bgzf/index"
	"github.com/grailbio/hts/sam"
	"v.io/x/lib/vlog"
)

// BAMProvider implements Provider for BAM files. The BAM and the index are
// read through github.com/grailbio/base/file.
type BAMProvider struct {
	// Path of the *.bam file. Must be nonempty.
	Path string
	// Index is the pathname of *.bam.bai file. If "", Path + ".bai"
	Index string
	err   errors.Once

	mu        sync.Mutex
	nActive   int
	freeIters []*bamIterator
	header    *sam.Header
	index     *bam.Index
}

type bamIterator struct {
	provider *BAMProvider
	in       file.File
	reader   *bam.Reader
	// Offset of the first record in the file.
	firstRecord bgzf.Offset

	// Range to read. ref==nil means the whole file.
	ref        *sam.Reference
	start, end int

	active bool
	err    error
	next   *sam.Record
}

// IndexPath returns the pathname of the BAM index.
func (b *BAMProvider) IndexPath() string {
	return IndexPath(b.Path, b.Index)
}

// GetHeader implements the Provider interface.
func (b *BAMProvider) GetHeader() (*sam.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.header != nil {
		return b.header, nil
	}

	ctx := vcontext.Background()
	reader, err := file.Open(ctx, b.Path)
	if err != nil {
		b.err.Set(err)
		return nil, err
	}
	defer reader.Close(ctx) // nolint: errcheck
	bamReader, err := bam.NewReader(reader.Reader(ctx), 1)
	if err != nil {
		b.err.Set(err)
		return nil, err
	}
	defer bamReader.Close() // nolint: errcheck
	b.header = bamReader.Header()
	return b.header, nil
}

// readIndex reads the BAM index once, and caches it in b.index.
func (b *BAMProvider) readIndex() (*bam.Index, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.index != nil {
		return b.index, nil
	}
	ctx := vcontext.Background()
	if err := CheckIndex(ctx, b.Path, b.Index); err != nil {
		return nil, err
	}
	in, err := file.Open(ctx, b.IndexPath())
	if err != nil {
		return nil, err
	}
	defer in.Close(ctx) // nolint: errcheck
	if b.index, err = bam.ReadIndex(in.Reader(ctx)); err != nil {
		return nil, errors.E(err, fmt.Sprintf("read index %s", b.IndexPath()))
	}
	return b.index, nil
}

// Close implements the Provider interface.
func (b *BAMProvider) Close() error {
	if b.nActive > 0 {
		vlog.Fatalf("%d iterators still active for %+v", b.nActive, b)
	}
	for _, iter := range b.freeIters {
		iter.internalClose()
	}
	b.freeIters = nil
	return b.err.Err()
}

func (b *BAMProvider) freeIterator(i *bamIterator) {
	if !i.active {
		vlog.Fatal(i)
	}
	i.active = false
	if i.Err() != nil || i.reader == nil {
		// The iter may be invalid. Don't reuse it.
		i.internalClose() // Will set b.err
		i = nil
	}
	b.mu.Lock()
	if i != nil {
		b.freeIters = append(b.freeIters, i)
	}
	b.nActive--
	if b.nActive < 0 {
		vlog.Fatalf("Negative active count for %+v", b)
	}
	b.mu.Unlock()
}

// Return an unused iterator. If b.freeIters is nonempty, this function returns
// one from freeIters. Else, it opens the BAM file, creates a BAM reader and
// returns an iterator containing them. On error, returns an iterator with
// non-nil err field.
func (b *BAMProvider) allocateIterator() *bamIterator {
	b.mu.Lock()
	b.nActive++
	if len(b.freeIters) > 0 {
		iter := b.freeIters[len(b.freeIters)-1]
		iter.active = true
		iter.err = nil
		iter.next = nil
		b.freeIters = b.freeIters[:len(b.freeIters)-1]
		b.mu.Unlock()
		return iter
	}
	b.mu.Unlock()

	iter := bamIterator{
		provider: b,
		active:   true,
	}
	ctx := vcontext.Background()
	if iter.in, iter.err = file.Open(ctx, b.Path); iter.err != nil {
		return &iter
	}
	if iter.reader, iter.err = bam.NewReader(iter.in.Reader(ctx), 1); iter.err != nil {
		return &iter
	}
	iter.firstRecord = iter.reader.LastChunk().End
	return &iter
}

// NewIterator implements the Provider interface.
func (b *BAMProvider) NewIterator() Iterator {
	if _, err := b.readIndex(); err != nil {
		return NewErrorIterator(err)
	}
	iter := b.allocateIterator()
	if iter.err != nil {
		return iter
	}
	iter.ref = nil
	iter.err = iter.reader.Seek(iter.firstRecord)
	return iter
}

// NewRegionIterator implements the Provider interface.
func (b *BAMProvider) NewRegionIterator(refName string, start, end int) Iterator {
	idx, err := b.readIndex()
	if err != nil {
		return NewErrorIterator(err)
	}
	header, err := b.GetHeader()
	if err != nil {
		return NewErrorIterator(err)
	}
	ref := RefByName(header, refName)
	if ref == nil {
		return NewErrorIterator(errors.E(errors.NotExist, fmt.Sprintf("reference %s not found in %s", refName, b.Path)))
	}
	if start < 0 {
		start = 0
	}
	if end > ref.Len() {
		end = ref.Len()
	}
	iter := b.allocateIterator()
	if iter.err != nil {
		return iter
	}
	iter.ref, iter.start, iter.end = ref, start, end
	if start >= end {
		iter.err = io.EOF
		return iter
	}
	chunks, err := idx.Chunks(ref, start, end)
	if err == index.ErrInvalid || (err == nil && len(chunks) == 0) {
		// No reads for this interval: return an empty iterator.
		iter.err = io.EOF
		return iter
	}
	if err != nil {
		iter.err = err
		return iter
	}
	iter.err = iter.reader.Seek(chunks[0].Begin)
	return iter
}

// Err implements the Iterator interface.
func (i *bamIterator) Err() error {
	if i.err == io.EOF {
		return nil
	}
	return i.err
}

// Close implements the Iterator interface.
func (i *bamIterator) Close() error {
	err := i.Err()
	i.provider.freeIterator(i)
	return err
}

// recordEnd returns the end of the alignment span of r. Records that consume
// no reference bases are treated as covering one base.
func recordEnd(r *sam.Record) int {
	end := r.End()
	if end <= r.Pos {
		end = r.Pos + 1
	}
	return end
}

func (i *bamIterator) Scan() bool {
	if !i.active {
		vlog.Fatal("Reusing iterator")
	}
	if i.err != nil {
		return false
	}
	for {
		i.next, i.err = i.reader.Read()
		if i.err != nil {
			return false
		}
		if i.ref == nil {
			return true
		}
		refID := i.next.Ref.ID()
		if refID < 0 || refID > i.ref.ID() || (refID == i.ref.ID() && i.next.Pos >= i.end) {
			// Past the range. Records are sorted by coordinate.
			i.err = io.EOF
			return false
		}
		if refID < i.ref.ID() || recordEnd(i.next) <= i.start {
			continue
		}
		return true
	}
}

func (i *bamIterator) Record() *sam.Record {
	return i.next
}

func (i *bamIterator) internalClose() {
	if i.reader != nil {
		if err := i.reader.Close(); err != nil && i.err == nil {
			i.err = err
		}
		i.reader = nil
	}
	if i.in != nil {
		if err := i.in.Close(vcontext.Background()); err != nil && i.err == nil {
			i.err = err
		}
		i.in = nil
	}
	i.provider.err.Set(i.Err())
}
