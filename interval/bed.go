package interval

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/klauspost/compress/gzip"
)

// getTokens identifies up to the first len(tokens) tokens from curLine,
// returning the number of tokens saved.  Any (group of) characters <= ' ' is
// treated as a delimiter.
func getTokens(tokens [][]byte, curLine []byte) int {
	posEnd := 0
	lineLen := len(curLine)
	for tokenIdx := range tokens {
		pos := posEnd
		for ; pos != lineLen; pos++ {
			if curLine[pos] > ' ' {
				break
			}
		}
		if pos == lineLen {
			return tokenIdx
		}
		posEnd = pos
		for ; posEnd != lineLen; posEnd++ {
			if curLine[posEnd] <= ' ' {
				break
			}
		}
		tokens[tokenIdx] = curLine[pos:posEnd]
	}
	return len(tokens)
}

// isHeaderLine reports whether the line is a BED comment, track or browser
// line.
func isHeaderLine(line []byte) bool {
	return bytes.HasPrefix(line, []byte("#")) ||
		bytes.HasPrefix(line, []byte("track")) ||
		bytes.HasPrefix(line, []byte("browser"))
}

// ParseBEDLine parses the first three columns of a BED line. It returns
// ok=false for header and blank lines. lineIdx is used in error messages only.
func ParseBEDLine(line []byte, lineIdx int) (e Entry, ok bool, err error) {
	if isHeaderLine(line) {
		return
	}
	var tokens [3][]byte
	nToken := getTokens(tokens[:], line)
	if nToken != 3 {
		if nToken != 0 {
			err = fmt.Errorf("interval.ParseBEDLine: line %d has fewer tokens than expected", lineIdx)
		}
		return
	}
	start, err := strconv.Atoi(gunsafe.BytesToString(tokens[1]))
	if err != nil {
		err = fmt.Errorf("interval.ParseBEDLine: line %d: %v", lineIdx, err)
		return
	}
	end, err := strconv.Atoi(gunsafe.BytesToString(tokens[2]))
	if err != nil {
		err = fmt.Errorf("interval.ParseBEDLine: line %d: %v", lineIdx, err)
		return
	}
	if start < 0 || end < start || end >= posTypeMax {
		err = fmt.Errorf("interval.ParseBEDLine: invalid coordinate pair on line %d", lineIdx)
		return
	}
	// The chromosome name must be copied; callers may reuse the line buffer.
	e = Entry{
		ChrName: string(tokens[0]),
		Start0:  PosType(start),
		End:     PosType(end),
	}
	ok = true
	return
}

// BEDScanner reads the first three columns of a BED file, one Entry per
// line.  Columns after the third are ignored.
//
// Example:
//   s := NewBEDScanner(r)
//   for s.Scan() {
//     use s.Entry()
//   }
//   if err := s.Err(); err != nil { ... }
type BEDScanner struct {
	scanner *bufio.Scanner
	lineIdx int
	entry   Entry
	err     error
}

// NewBEDScanner creates a BEDScanner that reads from r.
func NewBEDScanner(r io.Reader) *BEDScanner {
	return &BEDScanner{scanner: bufio.NewScanner(r)}
}

// Scan reads the next entry. It returns false on end of input or on error.
func (s *BEDScanner) Scan() bool {
	if s.err != nil {
		return false
	}
	for s.scanner.Scan() {
		s.lineIdx++
		e, ok, err := ParseBEDLine(s.scanner.Bytes(), s.lineIdx)
		if err != nil {
			s.err = err
			return false
		}
		if ok {
			s.entry = e
			return true
		}
	}
	s.err = s.scanner.Err()
	return false
}

// Entry returns the entry read by the last successful Scan.
func (s *BEDScanner) Entry() Entry { return s.entry }

// Err returns the first error encountered, or nil.
func (s *BEDScanner) Err() error { return s.err }

// ScanBEDFile calls fn for every entry of the BED file at path, in file
// order.  Gzip- and bgzip-compressed files are detected by extension.
// Scanning stops at the first error returned by fn.
func ScanBEDFile(ctx context.Context, path string, fn func(Entry) error) (err error) {
	var in file.File
	if in, err = file.Open(ctx, path); err != nil {
		return
	}
	defer file.CloseAndReport(ctx, in, &err)
	reader := io.Reader(in.Reader(ctx))
	if fileio.DetermineType(path) == fileio.Gzip {
		var gz *gzip.Reader
		if gz, err = gzip.NewReader(reader); err != nil {
			return
		}
		defer gz.Close()
		reader = gz
	}
	s := NewBEDScanner(reader)
	for s.Scan() {
		if err = fn(s.Entry()); err != nil {
			return
		}
	}
	err = s.Err()
	return
}

// ReadBEDEntries loads every entry of the BED file at path, in file order.
func ReadBEDEntries(ctx context.Context, path string) ([]Entry, error) {
	var entries []Entry
	err := ScanBEDFile(ctx, path, func(e Entry) error {
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
