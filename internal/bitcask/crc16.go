package bitcask

// CRC-16/IBM-SDLC (also known as X.25, the polynomial Bitcask's on-disk
// format checksums records with). No library in the retrieved pack exposes
// this particular table, so it is hand-built the same way the standard
// library builds hash/crc32's tables: a reflected 256-entry lookup table
// computed once at init time, walked a byte at a time per call.
const crc16Poly = 0x8408

var crc16Table [256]uint16

func init() {
	for i := 0; i < 256; i++ {
		crc := uint16(i)
		for j := 0; j < 8; j++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ crc16Poly
			} else {
				crc >>= 1
			}
		}
		crc16Table[i] = crc
	}
}

// crc16IBMSDLC computes the CRC-16/IBM-SDLC checksum of data.
func crc16IBMSDLC(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc = (crc >> 8) ^ crc16Table[byte(crc)^b]
	}
	return crc ^ 0xFFFF
}
