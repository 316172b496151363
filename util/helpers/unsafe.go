package helpers

import "unsafe"

// IsLittleEndian probes the byte order of the running host.
func IsLittleEndian() bool {
	var probe uint16 = 0x0102
	return *(*byte)(unsafe.Pointer(&probe)) == 0x02
}
