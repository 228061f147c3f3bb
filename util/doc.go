// Package util contains small helpers shared by the cfDNA tools: flattening
// nested slices, trimming file-name suffixes, decompressing gzip files and
// running shell command lines.
package util
