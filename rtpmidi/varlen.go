package rtpmidi

// MaxVarLen is the largest value a variable length quantity can carry.
const MaxVarLen = 0x0fffffff

// VarLenSize returns the number of bytes EncodeVarLen writes for v.
func VarLenSize(v uint32) int {
	v &= MaxVarLen
	switch {
	case v < 1<<7:
		return 1
	case v < 1<<14:
		return 2
	case v < 1<<21:
		return 3
	default:
		return 4
	}
}

// EncodeVarLen writes v as a variable length quantity: 7 bit groups, most
// significant first, with the high bit set on every byte but the last. v is
// masked to 28 bits. It returns the number of bytes written, or 0 if buf is
// shorter than VarLenSize(v).
func EncodeVarLen(v uint32, buf []byte) int {
	v &= MaxVarLen
	size := VarLenSize(v)
	if len(buf) < size {
		return 0
	}
	for i := size - 1; i >= 0; i-- {
		b := byte(v & 0x7f)
		if i != size-1 {
			b |= 0x80
		}
		buf[i] = b
		v >>= 7
	}
	return size
}

// DecodeVarLen reads a variable length quantity from buf and returns its
// value and encoded size.
func DecodeVarLen(buf []byte) (uint32, int, error) {
	var v uint32
	for i := 0; i < 4; i++ {
		if i >= len(buf) {
			return 0, 0, ErrVarLenTruncated
		}
		v = v<<7 | uint32(buf[i]&0x7f)
		if buf[i]&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	return 0, 0, ErrVarLenTooLong
}
