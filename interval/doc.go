/*Package interval reads genomic target intervals and splits them into
  fixed-size chunks for parallel processing.
  Overlapping intervals are kept separately, in input order.  Every position
  is assumed to fit in a PosType, which is currently defined as int32 since
  that's what BAM files are limited to.
*/
package interval
