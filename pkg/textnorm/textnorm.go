// Package textnorm converts text files between the host form (UTF-8, LF line endings) and the
// disk form (CP437, CR+LF line endings, optional EOF marker)
package textnorm

import (
	"bytes"
	"path"
	"regexp"
	"strings"

	"github.com/kirsrus/diskimage/pkg/charset"
	"github.com/thoas/go-funk"
)

// EOF is the legacy end-of-file marker
const EOF = 0x1A

// TextFileExts lists the extensions treated as text when normalizing
var TextFileExts = []string{".MD", ".ME", ".BAS", ".BAT", ".RAT", ".ASM", ".LRF", ".MAK", ".TXT", ".XML"}

var reCRRun = regexp.MustCompile(`\r+`)

// IsTextFile reports whether the file name carries one of TextFileExts (case-insensitive)
func IsTextFile(name string) bool {
	return funk.ContainsString(TextFileExts, strings.ToUpper(path.Ext(strings.ReplaceAll(name, "\\", "/"))))
}

// ForHost converts disk text for the host: CP437 is decoded to UTF-8, CR+LF and lone CR become
// LF, and everything from the first EOF marker on is dropped. Unless assumeText is set, the data
// is converted only when its first 4 bytes look like text; otherwise it is returned unchanged.
func ForHost(data []byte, assumeText bool) []byte {
	head := data
	if len(head) > 4 {
		head = head[:4]
	}
	if !assumeText && !charset.IsText(string(head)) {
		return data
	}

	s := charset.Decode(data, false)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	if i := strings.IndexByte(s, EOF); i >= 0 {
		s = s[:i]
	}
	return []byte(s)
}

// ForDisk converts host text for a disk. If data holds anything other than 7-bit ASCII and
// characters CP437 can show, data is returned unchanged with ok false. Otherwise the text is
// transliterated to CP437 and every LF becomes CR+LF, with any run of CRs collapsed to one, so
// converting already converted text changes nothing.
func ForDisk(data []byte) (result []byte, ok bool) {
	if !charset.IsText(string(data)) {
		return data, false
	}
	result = charset.Encode(string(data))
	result = bytes.ReplaceAll(result, []byte("\n"), []byte("\r\n"))
	result = reCRRun.ReplaceAll(result, []byte("\r"))
	return result, true
}
