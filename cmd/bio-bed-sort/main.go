package main

// bio-bed-sort sorts the entries of a BED file by chromosome name, then start,
// then end. Only the first three columns are kept.
//
// Usage: bio-bed-sort [-tmp-dir dir] [-batch-size n] input.bed output.bed

import (
	"flag"
	"os"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/cfdna/cmd/bio-bed-sort/sorter"
)

var (
	tmpDirFlag      = flag.String("tmp-dir", "", "Directory for temporary sortshard files. Defaults to the system temp dir.")
	batchSizeFlag   = flag.Int("batch-size", sorter.DefaultSortBatchSize, "Number of entries sorted in memory before spilling to a sortshard.")
	parallelismFlag = flag.Int("parallelism", sorter.DefaultParallelism, "Number of background sorts.")
	noCompressFlag  = flag.Bool("no-compress-tmp-files", false, "Do not snappy-compress the sortshard files.")
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	flag.Usage = func() {
		os.Stderr.WriteString(`Usage: bio-bed-sort [flags] <input.bed> <output.bed>

Sorts the entries of input.bed (optionally gzipped) by chromosome name
(bytewise), then start, then end, and writes them to output.bed. Equal entries
keep their input order. Existing contents of output.bed, if any, are destroyed.
`)
		flag.PrintDefaults()
	}
	shutdown := grail.Init()
	defer shutdown()

	args := flag.Args()
	if len(args) != 2 {
		flag.Usage()
		os.Exit(1)
	}
	opts := sorter.SortOptions{
		SortBatchSize:      *batchSizeFlag,
		Parallelism:        *parallelismFlag,
		NoCompressTmpFiles: *noCompressFlag,
		TmpDir:             *tmpDirFlag,
	}
	if err := sorter.SortBEDFile(vcontext.Background(), args[0], args[1], opts); err != nil {
		log.Fatalf("sort %v to %v: %v", args[0], args[1], err)
	}
}
