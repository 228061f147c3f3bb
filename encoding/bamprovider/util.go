package bamprovider

import (
	"github.com/grailbio/hts/sam"
)

// RefByName finds a sam.Reference with the given name. It returns nil if a
// reference is not found.
func RefByName(h *sam.Header, refName string) *sam.Reference {
	for _, ref := range h.Refs() {
		if ref.Name() == refName {
			return ref
		}
	}
	return nil
}

const excludedFlags = sam.Unmapped | sam.MateUnmapped | sam.QCFail | sam.Duplicate |
	sam.Secondary | sam.Supplementary

// HasClip reports whether the CIGAR contains a soft clip, hard clip or
// padding operation.
func HasClip(cigar sam.Cigar) bool {
	for _, op := range cigar {
		switch op.Type() {
		case sam.CigarSoftClipped, sam.CigarHardClipped, sam.CigarPadded:
			return true
		}
	}
	return false
}

// IsFragmentRead reports whether r can contribute to a fragment: a mapped,
// primary, non-duplicate, QC-passing read of a proper pair whose mate maps to
// the same reference, with nonzero template length and an unclipped
// alignment.
func IsFragmentRead(r *sam.Record) bool {
	if r.Flags&excludedFlags != 0 {
		return false
	}
	if r.Flags&sam.Paired == 0 || r.Flags&sam.ProperPair == 0 {
		return false
	}
	if r.Ref.ID() < 0 || r.MateRef.ID() != r.Ref.ID() {
		return false
	}
	if r.TempLen == 0 {
		return false
	}
	return !HasClip(r.Cigar)
}
