// Package checksum implements the reflected CRC-32 used by GPT headers and
// partition arrays (CRC-32/ISO-HDLC, the UEFI variant).
package checksum

// Polynomial is the reversed form of 0x04C11DB7.
const Polynomial = 0xEDB88320

// CRC32 returns the checksum of buf.
func CRC32(buf []byte) uint32 {
	return Update(0, buf)
}

// Update extends a checksum previously returned by CRC32 or Update with
// more data. Update(0, buf) == CRC32(buf).
func Update(crc uint32, buf []byte) uint32 {
	crc = ^crc
	for _, b := range buf {
		crc ^= uint32(b)
		for i := 0; i < 8; i++ {
			mask := -(crc & 1)
			crc = (crc >> 1) ^ (Polynomial & mask)
		}
	}
	return ^crc
}
