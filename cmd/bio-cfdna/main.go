// bio-cfdna converts read pairs to fragments, summarizes fragment lengths,
// and computes regional methylation levels.
//
// Usage:
//   bio-cfdna bam2bed [-compress] [-force] [-region r] [-index p] in.bam out.bed
//   bio-cfdna fraglen [-max N] in.bed plot.png lengths.npy
//   bio-cfdna methyl in.bam regions.bed out.txt
//   bio-cfdna gunzip file.gz...
//   bio-cfdna run 'command line'
package main

import (
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/cfdna/cmd/bio-cfdna/cmd"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	shutdown := grail.Init()
	defer shutdown()
	cmd.Run()
}
