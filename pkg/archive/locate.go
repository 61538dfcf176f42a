package archive

import (
	"encoding/binary"
	"strings"

	"github.com/spf13/cast"
)

const (
	// locatorSignature ("PK\xAA\x55") follows a PKARC self-extracting executable's archive
	locatorSignature = 0x55AA4B50
	// locatorWindow limits the backward scan for locatorSignature
	locatorWindow = 512
	// locatorSlack is the distance between the recorded archive size and the archive start.
	// The value was found empirically and is not derived from any documented layout.
	locatorSlack = 40
)

// Locate finds an ARC archive embedded in a self-extracting executable. It scans the last
// bytes of data backwards for the locator signature, takes the archive size stored right after it,
// and returns the archive offset, or -1 if there is no usable signature.
func Locate(data []byte) int64 {
	for o, n := len(data)-8, locatorWindow; o >= 0 && n > 0; o, n = o-1, n-1 {
		if binary.LittleEndian.Uint32(data[o:]) != locatorSignature {
			continue
		}
		size := int64(binary.LittleEndian.Uint32(data[o+4:]))
		end := int64(o + 8)
		if size > 0 && size < end {
			return end - size - locatorSlack
		}
		return -1
	}
	return -1
}

// ResolveOffset returns the archive offset inside the file name holding data. An explicit offset
// always wins and is parsed as an unsigned integer (invalid text means 0). Otherwise ARC
// archives inside .EXE files are located with Locate; anything else starts at 0.
func ResolveOffset(name string, data []byte, kind Kind, explicit string) int64 {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return int64(cast.ToUint32(explicit))
	}
	if kind == KindARC && strings.HasSuffix(strings.ToUpper(name), ".EXE") {
		return Locate(data)
	}
	return 0
}
