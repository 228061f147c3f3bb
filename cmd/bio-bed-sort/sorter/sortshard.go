package sorter

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"

	"github.com/golang/snappy"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/cfdna/interval"
	"v.io/x/lib/vlog"
)

// Sortshard format is used by temp files created during BED sorting. The file
// is a recordio, where one recordio block stores a list of serialized
// entries, in the following format. There is no padding between entries.
//
//   chromLen uint16          // endOfBlock marks the end of the block's data.
//   chrom    [chromLen]byte
//   start    uint32
//   end      uint32
//
// Each recordio block is at most sortShardBlockSize bytes long,
// pre-compression. The recordio trailer stores a sortShardIndex, which tells
// whether the blocks are snappy-compressed.
type sortShardBlock []byte

const (
	sortShardBlockSize = 1 << 20 // size of one sortShardBlock
	// Size of the fixed part of one serialized entry.
	sortShardEntryOverhead = 2 + 4 + 4
	endOfBlock             = math.MaxUint16
	sortShardIndexSize     = 1 + 8 + 8
)

// sortShardIndex is stored in the trailer of a sortshard file.
type sortShardIndex struct {
	snappy     bool
	numRecords uint64
	numBlocks  uint64
}

func (i sortShardIndex) marshal() []byte {
	b := make([]byte, sortShardIndexSize)
	if i.snappy {
		b[0] = 1
	}
	binary.LittleEndian.PutUint64(b[1:9], i.numRecords)
	binary.LittleEndian.PutUint64(b[9:17], i.numBlocks)
	return b
}

func (i *sortShardIndex) unmarshal(b []byte) error {
	if len(b) != sortShardIndexSize {
		return fmt.Errorf("sortshard index: wrong size %d", len(b))
	}
	i.snappy = b[0] != 0
	i.numRecords = binary.LittleEndian.Uint64(b[1:9])
	i.numBlocks = binary.LittleEndian.Uint64(b[9:17])
	return nil
}

// sortShardBuf stores contents of a recordio block during writes.
type sortShardBuf struct {
	buf       sortShardBlock
	remaining []byte // part of buf[].
	nRecords  int    // # of records stored in buf.
}

// Returns a buffer that contains records added so far.
func (b *sortShardBuf) bytes() []byte {
	n := len(b.buf) - len(b.remaining)
	return b.buf[:n]
}

// Class for producing a sortshard file.
//
// Example:
//   err := errors.Once{}
//   pool := newSortShardBlockPool()
//   w := newSortShardWriter(out, true, pool, &err)
//   for ... {
//     w.add(entry)
//   }
//   w.finish()
//   if err.Err() != nil { panic(err) }
type sortShardWriter struct {
	rio      recordio.Writer
	err      *errors.Once
	curBlock sortShardBuf // The block currently written to in add().
	lastKey  interval.Entry
	pool     *sortShardBlockPool

	indexMu sync.Mutex
	index   sortShardIndex
}

func (w *sortShardWriter) newBuf() sortShardBuf {
	buf := w.pool.getBuf()
	return sortShardBuf{
		buf:       buf,
		remaining: buf,
	}
}

// Create a new sortShardWriter. Any error is reported through errReporter.
func newSortShardWriter(out io.Writer, snappy bool,
	pool *sortShardBlockPool, errReporter *errors.Once) *sortShardWriter {
	w := &sortShardWriter{
		err:   errReporter,
		pool:  pool,
		index: sortShardIndex{snappy: snappy},
	}
	w.curBlock = w.newBuf()
	w.rio = recordio.NewWriter(out, recordio.WriterOpts{
		Marshal: func(scratch []byte, v interface{}) ([]byte, error) {
			return v.(sortShardBlock), nil
		},
		Index: func(loc recordio.ItemLocation, v interface{}) error {
			if loc.Item != 0 { // This is a single-item-per-block recordio
				vlog.Fatal(loc)
			}
			w.indexMu.Lock()
			w.index.numBlocks++
			w.indexMu.Unlock()
			w.pool.putBuf(v.(sortShardBlock))
			return nil
		},
	})
	w.rio.AddHeader(recordio.KeyTrailer, true)
	return w
}

// Add an entry to the shard. Entries must be added in nondecreasing order.
func (w *sortShardWriter) add(e interval.Entry) {
	if len(e.ChrName) >= endOfBlock || sortShardEntryOverhead+len(e.ChrName) > sortShardBlockSize {
		w.err.Set(fmt.Errorf("sortshard: chromosome name too long: %d bytes", len(e.ChrName)))
		return
	}
	if w.curBlock.nRecords > 0 && e.Compare(w.lastKey) < 0 {
		vlog.Fatalf("Key %v decreased, last %v", e, w.lastKey)
	}
	w.lastKey = e
	if w.tryAdd(e) {
		return // Common case.
	}
	w.flush()
	vlog.VI(2).Infof("Starting new buffer at key: %v", e)
	if !w.tryAdd(e) {
		vlog.Fatalf("Key: %v", e)
	}
}

func (w *sortShardWriter) tryAdd(e interval.Entry) bool {
	b := &w.curBlock
	n := sortShardEntryOverhead + len(e.ChrName)
	if len(b.remaining) < n {
		if len(b.remaining) >= 2 {
			binary.LittleEndian.PutUint16(b.remaining[:2], endOfBlock)
		}
		return false
	}
	binary.LittleEndian.PutUint16(b.remaining[:2], uint16(len(e.ChrName)))
	copy(b.remaining[2:], e.ChrName)
	p := 2 + len(e.ChrName)
	binary.LittleEndian.PutUint32(b.remaining[p:p+4], uint32(e.Start0))
	binary.LittleEndian.PutUint32(b.remaining[p+4:p+8], uint32(e.End))
	b.remaining = b.remaining[n:]
	b.nRecords++
	w.index.numRecords++
	return true
}

func (w *sortShardWriter) flush() {
	if w.curBlock.nRecords == 0 {
		return
	}
	b := w.curBlock
	w.curBlock = w.newBuf()
	data := sortShardBlock(b.bytes())
	if w.index.snappy {
		compressBuf := w.pool.getBuf()
		data = snappy.Encode(compressBuf, data)
		w.pool.putBuf(b.buf)
	}
	w.rio.Append(data)
	w.rio.Flush()
}

// Flush any pending data to the file. An error is reported through w.err. "w"
// becomes invalid after the call.
func (w *sortShardWriter) finish() {
	w.flush()
	w.pool.putBuf(w.curBlock.buf)
	w.curBlock.buf = nil
	w.rio.Wait()
	w.indexMu.Lock()
	w.rio.SetTrailer(w.index.marshal())
	w.indexMu.Unlock()
	w.err.Set(w.rio.Finish())
}

// Class for extracting entries in a sortShardBlock.
//
// Example:
//   for r.reset(buf); !r.done(); r.next() {
//      vlog.Infof("Key %v", r.key())
//   }
type sortShardBlockParser struct {
	cur interval.Entry
	end bool   // no more entries in buf.
	buf []byte // Entries that remain to be read.
	err error
}

func (r *sortShardBlockParser) reset(buf sortShardBlock) {
	r.buf = []byte(buf)
	r.end = false
	r.next()
	if r.done() && r.err == nil {
		vlog.Fatalf("empty buf: %v", len(buf))
	}
}

func (r *sortShardBlockParser) next() {
	if len(r.buf) < 2 {
		r.end = true
		return
	}
	chromLen := int(binary.LittleEndian.Uint16(r.buf[:2]))
	if chromLen == endOfBlock {
		r.end = true
		return
	}
	n := sortShardEntryOverhead + chromLen
	if len(r.buf) < n {
		r.err = fmt.Errorf("sortshard: truncated entry (%d < %d bytes)", len(r.buf), n)
		r.end = true
		return
	}
	p := 2 + chromLen
	// The chromosome name is usually the same as the previous one's.
	if chrom := r.buf[2:p]; string(chrom) != r.cur.ChrName {
		r.cur.ChrName = string(chrom)
	}
	r.cur.Start0 = interval.PosType(binary.LittleEndian.Uint32(r.buf[p : p+4]))
	r.cur.End = interval.PosType(binary.LittleEndian.Uint32(r.buf[p+4 : p+8]))
	r.buf = r.buf[n:]
}

func (r *sortShardBlockParser) done() bool {
	return r.end
}

func (r *sortShardBlockParser) key() interval.Entry {
	if r.done() {
		vlog.Fatal(r)
	}
	return r.cur
}

// Class for reading a sortshard file.
//
// Example:
//   err := errors.Once{}
//   pool := newSortShardBlockPool()
//   r := newSortShardReader(path, pool, &err)
//   for r.scan() {
//     use r.key()
//   }
//   if err.Err() != nil { panic(err) }
type sortShardReader struct {
	path    string
	rawIn   file.File
	rio     recordio.Scanner
	index   sortShardIndex
	pool    *sortShardBlockPool
	err     *errors.Once
	lastKey interval.Entry // last key read.
	nRead   uint64

	parser sortShardBlockParser
	buf    sortShardBlock
	ch     chan sortShardBlock
	// draining becomes 1 on drain(). It tells asyncRead goroutine to finish
	// asap. It must be accessed via acquire-loads+release-stores.
	draining int32
}

// Read the index block in the sortshard file.
func readSortShardIndex(rio recordio.Scanner) (sortShardIndex, error) {
	index := sortShardIndex{}
	header := rio.Header()
	if !header.HasTrailer() {
		return index, fmt.Errorf("no index found in sortshard file (header: %+v, version %+v)", header, rio.Version())
	}
	err := index.unmarshal(rio.Trailer())
	return index, err
}

// Create a reader for reading sortshard file "path". Any error is reported
// through errReporter.
func newSortShardReader(path string,
	pool *sortShardBlockPool,
	errReporter *errors.Once) *sortShardReader {
	r := &sortShardReader{
		path: path,
		pool: pool,
		err:  errReporter,
		// The parser is initially at done() state.
		parser: sortShardBlockParser{end: true},
		ch:     make(chan sortShardBlock),
	}

	ctx := vcontext.Background()
	cleanupOnError := func(err error) *sortShardReader {
		r.err.Set(err)
		close(r.ch)
		if r.rawIn != nil {
			r.err.Set(r.rawIn.Close(ctx))
		}
		return r
	}
	var err error
	r.rawIn, err = file.Open(ctx, path)
	if err != nil {
		return cleanupOnError(err)
	}
	r.rio = recordio.NewScanner(r.rawIn.Reader(ctx), recordio.ScannerOpts{})
	if r.index, err = readSortShardIndex(r.rio); err != nil {
		return cleanupOnError(err)
	}
	vlog.VI(1).Infof("%v: created shard reader, %d records in %d blocks",
		path, r.index.numRecords, r.index.numBlocks)
	go func() {
		r.asyncRead()
		r.err.Set(r.rawIn.Close(ctx))
		close(r.ch)
	}()
	return r
}

func (r *sortShardReader) scan() bool {
	if !r.parser.done() {
		r.parser.next()
	}
	for r.parser.done() {
		if r.parser.err != nil {
			r.err.Set(errors.E(r.parser.err, r.path))
			return false
		}
		if r.buf != nil {
			r.pool.putBuf(r.buf)
		}
		buf, ok := <-r.ch
		if !ok {
			r.buf = nil
			if r.nRead != r.index.numRecords && r.err.Err() == nil {
				r.err.Set(fmt.Errorf("%s: read %d records, expect %d", r.path, r.nRead, r.index.numRecords))
			}
			return false
		}
		r.buf = buf
		r.parser.reset(buf)
	}
	key := r.parser.key()
	if r.nRead > 0 && key.Compare(r.lastKey) < 0 {
		vlog.Fatalf("Key %v decreased, last %v", key, r.lastKey)
	}
	r.lastKey = key
	r.nRead++
	return true
}

// Drain should be called when quitting reads before reaching the end of
// shard. It cleans up the reader state.  It's ok to call drain() after
// successful end of reads.
func (r *sortShardReader) drain() {
	go func() {
		n := 0
		atomic.StoreInt32(&r.draining, 1)
		for range r.ch {
			n++
		}
		vlog.VI(1).Infof("drain %v: dropped %d blocks", r.path, n)
	}()
}

// Return the key of the current entry.
//
// REQUIRES: scan() returned true.
func (r *sortShardReader) key() interval.Entry {
	return r.parser.key()
}

// Read a sequence of raw sortShardBlocks and send them to "r.ch".
func (r *sortShardReader) asyncRead() {
	for r.rio.Scan() && atomic.LoadInt32(&r.draining) == 0 {
		sorted := r.pool.getBuf()
		rioData := r.rio.Get().([]byte)
		if r.index.snappy {
			var err error
			sorted, err = snappy.Decode(sorted, rioData)
			if err != nil {
				r.err.Set(err)
				break
			}
		} else {
			if len(sorted) < len(rioData) {
				// The writer limits blocks to sortShardBlockSize, so this is unexpected.
				sorted = make(sortShardBlock, len(rioData))
			}
			sorted = sorted[:len(rioData)]
			copy(sorted, rioData)
		}
		r.ch <- sorted // This may block
	}
	r.err.Set(r.rio.Err())
}

// Freepool of sortShardBlocks.
type sortShardBlockPool struct {
	sync.Pool
}

// Get a sortShardBlock from the pool. The caller should call putBuf(buf) after use.
func (p *sortShardBlockPool) getBuf() sortShardBlock {
	b := p.Get().(sortShardBlock)
	if cap(b) < sortShardBlockSize {
		b = make(sortShardBlock, sortShardBlockSize)
	} else {
		b = b[:sortShardBlockSize]
	}
	return b
}

func (p *sortShardBlockPool) putBuf(b sortShardBlock) {
	p.Put(b)
}

func newSortShardBlockPool() *sortShardBlockPool {
	return &sortShardBlockPool{sync.Pool{New: func() interface{} { return sortShardBlock{} }}}
}
