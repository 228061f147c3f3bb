/*Package interval reads and represents genomic intervals from BED files.
  An Entry is a single 0-based, half-open interval; entries are kept in file
  order and are never merged.
  It assumes every position fits in a PosType, which is currently defined as
  int32 since that's what BAM files are limited to.
*/
package interval
