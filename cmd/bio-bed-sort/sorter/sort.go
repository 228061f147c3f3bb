package sorter

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"sort"
	"sync"

	"github.com/biogo/store/llrb"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/cfdna/interval"
	"v.io/x/lib/vlog"
)

// DefaultSortBatchSize is the default number of entries to keep in
// memory before resorting to external sorting.
const DefaultSortBatchSize = 1 << 20

// DefaultParallelism is the default value for SortOptions.Parallelism.
const DefaultParallelism = 2

// SortOptions controls options passed to the toplevel Sort.
type SortOptions struct {
	// SortBatchSize is the number of entries to keep in memory before
	// resorting to external sorting.  Not for general use; the default value
	// should suffice for most applications.
	SortBatchSize int

	// Parallelism limits the number of background sorts. Max memory
	// consumption of the sorter grows linearly with this value. If <= 0,
	// DefaultParallelism is used.
	Parallelism int

	// NoCompressTmpFiles, if false (default), compress sortshards using snappy.
	NoCompressTmpFiles bool

	// TmpDir defines the directory to store temp files created during sort.  ""
	// means the system default, usually /tmp.
	TmpDir string
}

type sortBatch struct {
	// Index of the batch in the order of AddEntry calls. It breaks ties
	// between equal entries in different batches.
	seq     int
	entries []interval.Entry
}

// Sorter sorts a list of interval.Entry and writes them to "outPath" as a
// three-column BED file.
//
// Sorter orders entries in the following way:
//
// - Increasing chromosome names, compared bytewise, then
// - increasing start positions, then
// - increasing end positions.
// - All else equal, sorts entries in the order of appearance in the input
//   (i.e., stable sort)
//
// These criteria are the same as "sort -k1,1 -k2,2n -k3,3n" under the C locale
// and "bedtools sort".
//
// Example:
//   sorter := NewSorter("out.bed")
//   for _, e := range entries {
//     sorter.AddEntry(e)
//   }
//   err := sorter.Close()
type Sorter struct {
	options       SortOptions
	outPath       string
	sortBlockPool *sortShardBlockPool // used to reuse buffers.
	totalEntries  int
	entries       []interval.Entry
	err           errors.Once
	bgSorterCh    chan sortBatch

	wg     sync.WaitGroup
	mu     sync.Mutex
	shards []string // pathnames of temp sortshard files, indexed by batch seq.
}

// A thin wrapper around sortShardReader that orders readers in the merge tree.
type mergeLeaf struct {
	// seq is the batch index of the shard. It makes the merge stable.
	seq    int
	name   string // the path of shard file; for logging only.
	reader *sortShardReader
	done   bool // reader.scan() returned false?
}

func newMergeLeaf(seq int, reader *sortShardReader) *mergeLeaf {
	leaf := mergeLeaf{
		seq:    seq,
		name:   reader.path,
		reader: reader,
	}
	if !leaf.reader.scan() {
		return nil
	}
	return &leaf
}

func (l *mergeLeaf) Compare(c1 llrb.Comparable) int {
	l1 := c1.(*mergeLeaf)
	if c := l.reader.key().Compare(l1.reader.key()); c != 0 {
		return c
	}
	return l.seq - l1.seq
}

// Merge sortShards. readCallback is called sequentially for each entry in sort
// order.  If readCallback returns false, this function exits immediately.
func internalMergeShards(
	shards []*sortShardReader,
	readCallback func(e interval.Entry) bool) {
	// Sort all the inputs using a binary tree. This should be faster than
	// binary heap or tournament tree. The hope is that the child at the top
	// of the tree will stay at the top for many entries. If that hope
	// holds, then tree will can maintain the sorted order in amortized O(1)
	// time, whereas heap always costs O(log(len(outCh)).
	leafs := llrb.Tree{}

	// Create a one-level tree.
	for i, shard := range shards {
		if c := newMergeLeaf(i, shard); c != nil {
			vlog.VI(1).Infof("Leaf %v created", c.name)
			leafs.Insert(c)
		}
	}
	vlog.VI(1).Infof("Merging %d shards, %d leafs active", len(shards), leafs.Len())

	// Do N-way merge.  readCallback will be called with increasing list of
	// entries.
	done := false
	for !done && leafs.Len() > 0 {
		nthiter := 0
		// top is the smallest child. We read from top.
		// next is the 2nd smallest child, or nil if top is the only
		// child in the tree.
		var top, next *mergeLeaf
		leafs.Do(func(item llrb.Comparable) bool {
			nthiter++
			switch nthiter {
			case 1:
				top = item.(*mergeLeaf)
				return false
			case 2:
				next = item.(*mergeLeaf)
				return true
			default:
				vlog.Fatal(nthiter)
				return false
			}
		})
		// Read entries from top, until it becomes larger than next.
		for {
			if !readCallback(top.reader.key()) {
				done = true
				break
			}
			top.done = !top.reader.scan()
			if top.done || (next != nil && next.Compare(top) < 0) {
				break
			}
		}
		// Move top into the proper place in the tree.
		lenBefore := leafs.Len()
		leafs.DeleteMin()
		if !top.done {
			leafs.Insert(top)
			if lenAfter := leafs.Len(); lenBefore != lenAfter {
				vlog.Fatalf("Leaf size decreased from %d -> %d", lenBefore, lenAfter)
			}
		}
	}
	for _, shard := range shards {
		shard.drain()
	}
}

// NewSorter creates a Sorter object.
func NewSorter(outPath string, optList ...SortOptions) *Sorter {
	options := SortOptions{}
	if len(optList) > 0 {
		if len(optList) > 1 {
			vlog.Fatalf("More than options specified: %v", optList)
		}
		options = optList[0]
	}
	if options.SortBatchSize <= 0 {
		options.SortBatchSize = DefaultSortBatchSize
	}
	if options.Parallelism <= 0 {
		options.Parallelism = DefaultParallelism
	}
	vlog.VI(1).Infof("New Sorter: %v, %+v", outPath, options)
	sorter := &Sorter{
		options:       options,
		outPath:       outPath,
		sortBlockPool: newSortShardBlockPool(),
		bgSorterCh:    make(chan sortBatch, options.Parallelism),
	}
	for i := 0; i < options.Parallelism; i++ {
		sorter.wg.Add(1)
		go func() {
			for batch := range sorter.bgSorterCh {
				path := sorter.sortEntries(batch.entries)
				sorter.mu.Lock()
				sorter.shards[batch.seq] = path
				sorter.mu.Unlock()
			}
			sorter.wg.Done()
		}()
	}
	return sorter
}

// AddEntry adds an entry to the sorter.
func (s *Sorter) AddEntry(e interval.Entry) {
	s.totalEntries++
	s.entries = append(s.entries, e)
	if len(s.entries) >= s.options.SortBatchSize {
		s.startGenerateSortShard()
	}
}

func (s *Sorter) startGenerateSortShard() {
	s.mu.Lock()
	seq := len(s.shards)
	s.shards = append(s.shards, "")
	s.mu.Unlock()
	s.bgSorterCh <- sortBatch{seq: seq, entries: s.entries}
	s.entries = nil
}

func (s *Sorter) sortEntries(entries []interval.Entry) string {
	vlog.VI(1).Infof("Sorting %d entries", len(entries))
	temp, err := ioutil.TempFile(s.options.TmpDir, "bedsort")
	if err != nil {
		s.err.Set(err)
		return ""
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Compare(entries[j]) < 0
	})
	writer := newSortShardWriter(temp, !s.options.NoCompressTmpFiles, s.sortBlockPool, &s.err)
	for _, e := range entries {
		writer.add(e)
	}
	writer.finish()
	s.err.Set(temp.Close())
	return temp.Name()
}

// writeBED merges the sortshards into s.outPath.
func (s *Sorter) writeBED(ctx context.Context) {
	out, err := file.Create(ctx, s.outPath)
	if err != nil {
		s.err.Set(err)
		return
	}
	shardReaders := make([]*sortShardReader, len(s.shards))
	for i, path := range s.shards {
		shardReaders[i] = newSortShardReader(path, s.sortBlockPool, &s.err)
	}
	w := tsv.NewWriter(out.Writer(ctx))
	internalMergeShards(shardReaders, func(e interval.Entry) bool {
		w.WriteString(e.ChrName)
		w.WriteUint32(uint32(e.Start0))
		w.WriteUint32(uint32(e.End))
		if err := w.EndLine(); err != nil {
			s.err.Set(err)
			return false
		}
		return true
	})
	s.err.Set(w.Flush())
	s.err.Set(out.Close(ctx))
}

// Close must be called after adding all the entries. It blocks the caller
// until the output file is generated. After Close, Sorter becomes invalid.
func (s *Sorter) Close() error {
	if len(s.entries) > 0 || s.totalEntries == 0 {
		// Note: when totalEntries==0, there's no entry to write but we still want
		// to create an empty output file.
		s.startGenerateSortShard()
	}
	close(s.bgSorterCh)
	s.wg.Wait()
	if s.err.Err() == nil {
		s.writeBED(vcontext.Background())
	}
	for _, path := range s.shards {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil {
			vlog.Errorf("sort %v: failed to remove sorter tmp file: %v (%v)", path, err, s.err.Err())
		}
	}
	vlog.VI(1).Infof("Sorted %d entries into %v", s.totalEntries, s.outPath)
	return s.err.Err()
}

// SortBEDFile reads the BED file inPath (optionally gzipped), sorts its
// entries, and writes them to outPath. Only the first three columns are kept.
// The input is never modified, so inPath may not be the same as outPath. If
// inPath cannot be read in full, outPath is not written.
func SortBEDFile(ctx context.Context, inPath, outPath string, opts SortOptions) error {
	if inPath == outPath {
		return errors.E(errors.Invalid, fmt.Sprintf("sort %s: input and output must be different files", inPath))
	}
	sorter := NewSorter(outPath, opts)
	err := interval.ScanBEDFile(ctx, inPath, func(e interval.Entry) error {
		sorter.AddEntry(e)
		return nil
	})
	// A failed scan leaves outPath untouched: Close skips the merge once
	// s.err is set.
	sorter.err.Set(err)
	if cerr := sorter.Close(); err == nil {
		err = cerr
	}
	return err
}
