// Package bamprovider provides utilities for scanning a coordinate-sorted,
// indexed BAM file, either whole or by genomic region.
//
// The Provider is an interface for reading a BAM file.
//
// PairIterator is implemented on top of Iterator to combine read pairs
// (R1+R2) of properly paired, unclipped fragment reads.
package bamprovider
