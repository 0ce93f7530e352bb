package wire

import "encoding/binary"

// LongToHash returns the 8-byte little-endian string form of v. Map keys of
// 64-bit kinds may arrive in this form instead of a decimal literal.
func LongToHash(v uint64) string {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return string(b[:])
}

// LongFromHash is the inverse of LongToHash. ok is false unless s is exactly
// eight bytes long.
func LongFromHash(s string) (v uint64, ok bool) {
	if len(s) != 8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64([]byte(s)), true
}
