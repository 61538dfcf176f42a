package archive

import (
	"fmt"

	"github.com/klauspost/compress/zip"
)

var (
	arcMethods = []string{"Store", "Pack", "Squeeze", "Crunch5", "Crunch", "Crunch7", "Crush", "Squash"}
	zipMethods = []string{"Store", "Shrink", "Reduce1", "Reduce2", "Reduce3", "Reduce4", "Implode", "", "Deflate", "Deflate64", "Implode2"}
)

// MethodLabel names the compression method of an entry, with a "*" suffix for encrypted entries.
// ARC methods are the negated ARC codes stored in Entry.Method.
func MethodLabel(kind Kind, method int, encrypted bool) string {
	var label string
	switch kind {
	case KindARC:
		i := -method - 2
		if method == -arcStoreOld {
			i = 0
		}
		if i >= 0 && i < len(arcMethods) {
			label = arcMethods[i]
		}
	case KindZIP:
		if method >= 0 && method < len(zipMethods) {
			label = zipMethods[method]
		}
	}
	if label == "" {
		label = fmt.Sprintf("Method%d", abs(method))
	}
	if encrypted {
		label += "*"
	}
	return label
}

// Fetchable reports whether Fetch of the entry can succeed, apart from damaged data
func Fetchable(kind Kind, e Entry) bool {
	if e.IsDir {
		return true
	}
	switch kind {
	case KindARC:
		switch -e.Method {
		case arcStoreOld, arcStore, arcPack, arcSqueeze:
			return true
		}
	case KindZIP:
		return !e.Encrypted && (e.Method == int(zip.Store) || e.Method == int(zip.Deflate))
	}
	return false
}

// CRCWidth is the number of hex digits of a CRC of the given kind
func CRCWidth(kind Kind) int {
	if kind == KindARC {
		return 4
	}
	return 8
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
