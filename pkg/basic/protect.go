package basic

const (
	// SignatureProtected starts a program saved with SAVE "X",P
	SignatureProtected = 0xFE
	// SignatureTokenized starts an ordinary tokenized program
	SignatureTokenized = 0xFF
)

var (
	protectKey1 = [13]byte{0xA9, 0x84, 0x8D, 0xCD, 0x75, 0x83, 0x43, 0x63, 0x24, 0x83, 0x19, 0xF7, 0x9A}
	protectKey2 = [11]byte{0x1E, 0x1D, 0xC4, 0x77, 0x26, 0x97, 0xE0, 0x74, 0x59, 0x88, 0x7C}
)

// Unprotect decrypts a protected program into a new buffer starting with SignatureTokenized.
// Data without the protected signature is returned as is. A trailing EOF byte is left alone.
func Unprotect(data []byte) []byte {
	if len(data) == 0 || data[0] != SignatureProtected {
		return data
	}

	result := make([]byte, len(data))
	result[0] = SignatureTokenized

	index := 0
	for i := 1; i < len(data); i++ {
		b := data[i]
		if b != eofMarker || i < len(data)-1 {
			b -= byte(11 - index%11)
			b ^= protectKey1[index%13]
			b ^= protectKey2[index%11]
			b += byte(13 - index%13)
			index = (index + 1) % (13 * 11)
		}
		result[i] = b
	}
	return result
}

// Protect is the inverse of Unprotect. Data that does not start with SignatureTokenized is
// returned as is.
func Protect(data []byte) []byte {
	if len(data) == 0 || data[0] != SignatureTokenized {
		return data
	}

	result := make([]byte, len(data))
	result[0] = SignatureProtected

	index := 0
	for i := 1; i < len(data); i++ {
		b := data[i]
		if b != eofMarker || i < len(data)-1 {
			b -= byte(13 - index%13)
			b ^= protectKey2[index%11]
			b ^= protectKey1[index%13]
			b += byte(11 - index%11)
			index = (index + 1) % (13 * 11)
		}
		result[i] = b
	}
	return result
}
