package bamprovider

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
)

// Pair encapsulates a pair of SAM records for a pair of reads, and whether
// any error was encountered in retrieving them.
type Pair struct {
	R1  *sam.Record
	R2  *sam.Record
	Err error
}

// mates holds the records seen so far for one read name. Index 0 is read1,
// index 1 is read2.
type mates [2]*sam.Record

// PairIterator reads matched pairs of records from an Iterator. Only records
// accepted by IsFragmentRead take part in pairing. Use NewPairIterator to
// create an iterator.
type PairIterator struct {
	rec  Pair
	iter Iterator
	done bool

	localNameToMates map[string]*mates
}

// NewPairIterator creates a PairIterator that reads records from iter. A pair
// is yielded as soon as the second mate of a read name is read, so pairs come
// out in the order of their second mates. Records whose mate is never seen are
// kept in memory until the iterator is closed; Unpaired reports their count.
//
// The PairIterator is thread-compatible and is not restartable.
func NewPairIterator(iter Iterator) *PairIterator {
	return &PairIterator{
		iter:             iter,
		localNameToMates: make(map[string]*mates),
	}
}

func mateSlot(record *sam.Record) int {
	if record.Flags&sam.Read1 != 0 {
		return 0
	}
	return 1
}

// Record returns the current pair, or an error.
//
// REQUIRES: Scan() has been called and its last call returned true.
func (l *PairIterator) Record() Pair { return l.rec }

// Scan reads the next pair. It returns true if a pair or an error has been
// read, and false on end of data stream. An error of the underlying iterator
// is reported once, as a Pair with non-nil Err.
func (l *PairIterator) Scan() bool {
	if l.done {
		return false
	}
	for l.iter.Scan() {
		record := l.iter.Record()
		if !IsFragmentRead(record) {
			continue
		}
		slot := mateSlot(record)
		m, ok := l.localNameToMates[record.Name]
		if !ok {
			// Store the record for later, when we see its mate.
			m = &mates{}
			m[slot] = record
			l.localNameToMates[record.Name] = m
			continue
		}
		delete(l.localNameToMates, record.Name)
		if m[slot] != nil {
			l.rec = Pair{Err: errors.E(errors.Invalid,
				fmt.Sprintf("read %s: both mates are marked read%d", record.Name, slot+1))}
			return true
		}
		m[slot] = record
		l.rec = Pair{R1: m[0], R2: m[1]}
		return true
	}
	l.done = true
	if err := l.iter.Err(); err != nil {
		l.rec = Pair{Err: err}
		return true
	}
	return false
}

// Unpaired returns the number of records that are still waiting for their
// mates.
func (l *PairIterator) Unpaired() int {
	return len(l.localNameToMates)
}

// Close closes the underlying iterator and returns its error.
func (l *PairIterator) Close() error {
	return l.iter.Close()
}
