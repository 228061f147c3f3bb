package bamprovider

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/hts/sam"
)

// ProviderOpts defines options for NewProvider.
type ProviderOpts struct {
	// Index specifies the name of the BAM index file. If Index=="", it defaults
	// to path + ".bai".
	Index string
}

// Provider allows reading a coordinate-sorted, indexed BAM file. Thread safe.
type Provider interface {
	// GetHeader returns the header for the provided BAM data.  The callee
	// must not modify the returned header object.
	//
	// REQUIRES: Close has not been called.
	GetHeader() (*sam.Header, error)

	// NewIterator returns an iterator over every record in the file, in file
	// order.
	//
	// REQUIRES: Close has not been called.
	NewIterator() Iterator

	// NewRegionIterator returns an iterator over the records that overlap the
	// half-open range [start, end) of reference refName. Start and end are both
	// base zero. A record overlaps the range if its alignment span
	// [Pos, End()) intersects it.
	//
	// REQUIRES: Close has not been called.
	NewRegionIterator(refName string, start, end int) Iterator

	// Close must be called exactly once. It returns any error encountered
	// by the provider, or any iterator created by the provider.
	//
	// REQUIRES: All the iterators created by the provider have been closed.
	Close() error
}

// Iterator iterates over sam.Records, in file order. Thread compatible.
type Iterator interface {
	// Scan returns where there are any records remaining in the iterator,
	// and if so, advances the iterator to the next record. If the iterator
	// reaches the end of its range, Scan() returns false.  If an error
	// occurs, Scan() returns false and the error can be retrieved by
	// calling Err().
	//
	// REQUIRES: Close has not been called.
	Scan() bool

	// Record returns the current record in the iterator. This must be
	// called only after a call to Scan() returns true.
	//
	// REQUIRES: Close has not been called.
	Record() *sam.Record

	// Err returns the error encoutered during iteration, or nil if no error
	// occurred.  An io.EOF error will be translated to nil.
	Err() error

	// Close must be called exactly once. It returns the value of Err().
	Close() error
}

func mergeOpts(optList []ProviderOpts) ProviderOpts {
	opts := ProviderOpts{}
	for _, o := range optList {
		if o.Index != "" {
			opts.Index = o.Index
		}
	}
	return opts
}

// NewProvider creates a Provider object that reads the BAM file at the given
// path. The file must be sorted by coordinate and indexed.
func NewProvider(path string, optList ...ProviderOpts) Provider {
	opts := mergeOpts(optList)
	return &BAMProvider{Path: path, Index: opts.Index}
}

// IndexPath returns the index path used for bamPath: indexPath if it is
// nonempty, bamPath + ".bai" otherwise.
func IndexPath(bamPath, indexPath string) string {
	if indexPath != "" {
		return indexPath
	}
	return bamPath + ".bai"
}

// CheckIndex verifies that the index of the given BAM file exists. It returns
// an errors.NotExist error otherwise.
func CheckIndex(ctx context.Context, bamPath, indexPath string) error {
	indexPath = IndexPath(bamPath, indexPath)
	if _, err := file.Stat(ctx, indexPath); err != nil {
		return errors.E(errors.NotExist, fmt.Sprintf("index file %s for %s not found", indexPath, bamPath), err)
	}
	return nil
}
