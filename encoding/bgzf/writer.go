// Package bgzf writes block-gzipped (.bgzf, "bgzip") files and tabix indexes
// for them.
//
// A .bgzf file is a series of complete gzip members. Each member holds at
// most 64KB of uncompressed data and its compressed size is at most 64KB. The
// BC extra subfield of every gzip header records the compressed block size,
// which lets readers seek by virtual offset: (compressed block start << 16) |
// (offset within the uncompressed block). A .bgzf file ends with an empty
// terminator block.
//
// See https://samtools.github.io/hts-specs/SAMv1.pdf for the format.
//
// Example:
//   var buf bytes.Buffer
//   w, err := NewWriter(&buf, DefaultCompressionLevel)
//   n, err := w.Write([]byte("chr1\t100\t300\n"))
//   err = w.Close()
package bgzf

import (
	"bytes"
	"fmt"
	"io"

	"github.com/grailbio/base/compress/libdeflate"
	"v.io/x/lib/vlog"
)

const (
	// DefaultUncompressedBlockSize is the block size used by bgzip, samtools
	// and biogo.
	DefaultUncompressedBlockSize = 0x0ff00

	// MaxUncompressedBlockSize is the largest legal uncompressed block size.
	MaxUncompressedBlockSize = 0x10000

	// DefaultCompressionLevel is the deflate level used by CompressBED.
	DefaultCompressionLevel = 6

	// compressedBlockSize is the largest legal compressed block size.
	compressedBlockSize = 0x10000

	// Offset of the BC extra subfield in the gzip header.
	extraOffset = 12
)

var (
	// bgzfExtra goes into the gzip Extra field: subfield id 'B','C',
	// length 2, then BSIZE (filled in after compression).
	bgzfExtra       = [...]byte{'B', 'C', 2, 0, 0, 0}
	bgzfExtraPrefix = [...]byte{'B', 'C', 2, 0}

	// terminator is the empty block that ends a .bgzf file.
	terminator = []byte{
		0x1f, 0x8b, 0x08, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0xff, 0x06, 0x00, 0x42, 0x43,
		0x02, 0x00, 0x1b, 0x00, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
)

// blockCompressor creates one gzip member per block. The libdeflate writer is
// reset between blocks instead of being reallocated.
type blockCompressor struct {
	level int
	gz    *libdeflate.Writer
}

func (c *blockCompressor) start(w io.Writer) (io.WriteCloser, error) {
	if c.gz == nil {
		var err error
		if c.gz, err = libdeflate.NewWriterLevel(w, c.level); err != nil {
			return nil, err
		}
	} else {
		c.gz.Reset(w)
	}
	c.gz.Header.Extra = make([]byte, len(bgzfExtra))
	copy(c.gz.Header.Extra, bgzfExtra[:])
	c.gz.Header.OS = 0xff // unknown
	return c.gz, nil
}

// Writer compresses data into .bgzf format. Thread compatible.
type Writer struct {
	compressor       blockCompressor
	uncompressedSize int
	w                io.Writer
	pending          bytes.Buffer // uncompressed bytes of the current block
	block            bytes.Buffer // compressed block being assembled
	coffset          uint64       // file offset of the current block
}

// NewWriter returns a .bgzf writer with the given deflate level and the
// default block size.
func NewWriter(w io.Writer, level int) (*Writer, error) {
	return NewWriterSize(w, level, DefaultUncompressedBlockSize)
}

// NewWriterSize returns a .bgzf writer that puts at most
// uncompressedBlockSize bytes in each block.
func NewWriterSize(w io.Writer, level, uncompressedBlockSize int) (*Writer, error) {
	if uncompressedBlockSize <= 0 || uncompressedBlockSize > MaxUncompressedBlockSize {
		return nil, fmt.Errorf("bgzf: uncompressed block size %d not in (0, %d]",
			uncompressedBlockSize, MaxUncompressedBlockSize)
	}
	return &Writer{
		compressor:       blockCompressor{level: level},
		uncompressedSize: uncompressedBlockSize,
		w:                w,
	}, nil
}

// Write appends buf to the payload. Full blocks are compressed and written
// out as they fill up.
func (w *Writer) Write(buf []byte) (int, error) {
	for i := 0; i < len(buf); {
		end := len(buf)
		if limit := i + w.uncompressedSize - w.pending.Len(); limit < end {
			end = limit
		}
		n, _ := w.pending.Write(buf[i:end])
		i += n
		if err := w.flushBlocks(false); err != nil {
			return i, err
		}
	}
	return len(buf), nil
}

// Flush compresses and writes out the current partial block, if any. The
// next Write starts a new block.
func (w *Writer) Flush() error {
	return w.flushBlocks(true)
}

// Close flushes the current block and appends the terminator.
func (w *Writer) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := w.w.Write(terminator)
	return err
}

// flushBlocks compresses full blocks from w.pending; if partial is set, it
// also compresses the remaining bytes.
func (w *Writer) flushBlocks(partial bool) error {
	for w.pending.Len() >= w.uncompressedSize || (partial && w.pending.Len() > 0) {
		gz, err := w.compressor.start(&w.block)
		if err != nil {
			return err
		}
		if _, err := gz.Write(w.pending.Next(w.uncompressedSize)); err != nil {
			return err
		}
		if err := gz.Close(); err != nil {
			return err
		}

		b := w.block.Bytes()
		bsize := len(b) - 1
		if bsize >= compressedBlockSize {
			return fmt.Errorf("bgzf: compressed block is too big: %d >= %d", bsize, compressedBlockSize)
		}
		if len(b) < extraOffset+len(bgzfExtra) ||
			!bytes.Equal(b[extraOffset:extraOffset+len(bgzfExtraPrefix)], bgzfExtraPrefix[:]) {
			vlog.Fatalf("bgzf: malformed gzip header in %d-byte block", len(b))
		}
		b[extraOffset+4] = byte(bsize)
		b[extraOffset+5] = byte(bsize >> 8)

		sz := len(b)
		if _, err := w.block.WriteTo(w.w); err != nil {
			return err
		}
		w.coffset += uint64(sz)
	}
	return nil
}

// VOffset returns the virtual offset of the next byte to be written.
func (w *Writer) VOffset() uint64 {
	return w.coffset<<16 | uint64(w.pending.Len())
}
