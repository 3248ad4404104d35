// Package crcseal computes the spare-area header checksum used to seal
// NAND ring pages: the reflected IEEE polynomial with initial value
// 0xFFFFFFFF and no final XOR.
//
// hash/crc32 runs the same shift register but complements the value on
// entry and exit, so undoing that complement yields this variant
// exactly.
package crcseal

import "hash/crc32"

// Update folds buf into the running checksum crc. Callers seed the
// first call with 0xFFFFFFFF and do not XOR the result on completion.
func Update(crc uint32, buf []byte) uint32 {
	return ^crc32.Update(^crc, crc32.IEEETable, buf)
}

// Checksum returns the seal checksum of buf, matching the single-shot
// convention used when sealing a page header: init 0xFFFFFFFF, no final
// XOR.
func Checksum(buf []byte) uint32 {
	return ^crc32.ChecksumIEEE(buf)
}
