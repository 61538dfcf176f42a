// Package basic decodes tokenized (and protected) GW-BASIC/BASICA program files into text
package basic

import (
	"bytes"
	"encoding/binary"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/kirsrus/diskimage/pkg/charset"
	"github.com/kirsrus/diskimage/pkg/textnorm"
	"github.com/sirupsen/logrus"
)

const (
	eofMarker = 0x1A

	opOctal     = 0x0B
	opHex       = 0x0C
	opUint16    = 0x0E
	opUint8     = 0x0F
	opInt16     = 0x1C
	opSingle    = 0x1D
	opDouble    = 0x1F
	opSeparator = 0x3A
	opElse      = 0xA1
	opRem       = 0x8F
	opRemQuote  = 0xD9
	opWhile     = 0xB1
	opPlus      = 0xE9
)

// IsBASICFile reports whether name has a .BAS extension (case-insensitive)
func IsBASICFile(name string) bool {
	return strings.EqualFold(path.Ext(strings.ReplaceAll(name, "\\", "/")), ".BAS")
}

// Decoder converts BASIC program files to text
type Decoder struct {
	log *logrus.Entry
}

// NewDecoder creates a decoder reporting diagnostics through log (nil discards them)
func NewDecoder(log *logrus.Logger) *Decoder {
	if log == nil {
		log = logrus.New()
		log.Out = io.Discard
	}
	return &Decoder{log: log.WithField("scope", "basic")}
}

// Convert decrypts (if protected) and detokenizes the program in data. Name is used for
// diagnostics only.
//
// When normalize is set, characters are converted from CP437 to UTF-8, lines end with LF and the
// trailing EOF byte is omitted; otherwise lines end with CR+LF and the EOF byte is kept. Data that
// is not a tokenized program is returned unchanged, or passed through textnorm.ForHost when
// normalizing.
func (d *Decoder) Convert(name string, data []byte, normalize bool) []byte {
	data = Unprotect(data)

	if len(data) == 0 || data[0] != SignatureTokenized {
		if normalize {
			return textnorm.ForHost(data, false)
		}
		return data
	}

	t := detokenizer{
		log:         d.log.WithField("file", name),
		name:        name,
		data:        data,
		pos:         1,
		normalize:   normalize,
		lineWarning: -1,
	}
	return t.run()
}

type detokenizer struct {
	log       *logrus.Entry
	name      string
	data      []byte
	pos       int
	normalize bool

	quote   bool
	comment bool
	inData  bool

	lineWarning int
	out         bytes.Buffer
}

func (t *detokenizer) eof() bool {
	return t.pos >= len(t.data)
}

func (t *detokenizer) readU8() byte {
	if t.pos < len(t.data) {
		t.pos++
		return t.data[t.pos-1]
	}
	return 0
}

func (t *detokenizer) peekU8(v byte) bool {
	return !t.eof() && t.data[t.pos] == v
}

func (t *detokenizer) peekU16(v1, v2 byte) bool {
	return t.pos < len(t.data)-1 && t.data[t.pos] == v1 && t.data[t.pos+1] == v2
}

func (t *detokenizer) readU16() uint16 {
	var v uint16
	if t.pos < len(t.data)-1 {
		v = binary.LittleEndian.Uint16(t.data[t.pos:])
	}
	t.pos += 2
	return v
}

func (t *detokenizer) readS16() int16 {
	return int16(t.readU16())
}

func (t *detokenizer) run() []byte {
	for !t.eof() {
		// Each line starts with the offset of the next line and its own line number. A zero offset
		// ends the program and is normally followed by an EOF byte.
		if off := t.readU16(); off == 0 {
			if t.peekU8(eofMarker) {
				if !t.normalize {
					t.out.WriteByte(eofMarker)
				}
			} else if !t.eof() {
				at := t.pos
				t.log.Warnf("%s contains non-EOF at offset %#x (%#x)", t.name, at, t.readU8())
			}
			break
		}

		line := int(t.readU16())
		t.out.WriteString(strconv.Itoa(line))
		t.out.WriteByte(' ')
		for t.token(line) {
		}
		if t.normalize {
			t.out.WriteByte('\n')
		} else {
			t.out.WriteString("\r\n")
		}

		// an open quote, comment or DATA statement never carries over to the next line
		t.quote, t.comment, t.inData = false, false, false
	}
	return t.out.Bytes()
}

// char writes a raw program byte, transliterated unless it must stay untouched
func (t *detokenizer) char(b byte) {
	if t.normalize {
		t.out.WriteRune(charset.DecodeByte(b, true))
	} else {
		t.out.WriteByte(b)
	}
}

// token decodes the next token of the current line and returns false at the end of the line
func (t *detokenizer) token(line int) bool {
	b := t.readU8()
	if b == 0 {
		return false
	}

	// Quoted strings, comments and DATA statements can hold almost any byte (IBM PC drawing
	// characters included), so they are copied as text. Inside DATA a colon still separates
	// statements.
	if (t.comment || t.quote || t.inData && b != opSeparator) && b < 0xFF || b >= 0x20 && b <= 0x7E && b != opSeparator {
		if b == '\t' {
			t.out.WriteByte(b)
		} else {
			t.char(b)
		}
		if b == '"' && !t.comment {
			t.quote = !t.quote
		}
		return true
	}

	v := uint16(b)
	second := t.pos
	if b >= 0xFD {
		v = v<<8 | uint16(t.readU8())
	}

	var (
		token string
		found = true
	)

	switch v {
	case opOctal:
		token = "&O" + strconv.FormatUint(uint64(t.readU16()), 8)
	case opHex:
		token = "&H" + strings.ToUpper(strconv.FormatUint(uint64(t.readU16()), 16))
	case opUint16:
		token = strconv.FormatUint(uint64(t.readU16()), 10)
	case opUint8:
		token = strconv.FormatUint(uint64(t.readU8()), 10)
	case opInt16:
		token = strconv.FormatInt(int64(t.readS16()), 10)
	case opSingle:
		var mbf [4]byte
		for i := range mbf {
			mbf[i] = t.readU8()
		}
		token = formatNumber(float64(MBF32(mbf)), 7)
	case opDouble:
		var mbf [8]byte
		for i := range mbf {
			mbf[i] = t.readU8()
		}
		token = formatNumber(MBF64(mbf), 15) + "#"
	case opSeparator:
		switch {
		case t.peekU8(opElse):
			token = "ELSE"
			t.pos++
		case t.peekU16(opRem, opRemQuote):
			token = "'"
			t.comment = true
			t.pos += 2
		default:
			// unlike REM, other statements can follow DATA after a colon
			token = ":"
			t.inData = false
		}
	default:
		if v == opWhile && t.peekU8(opPlus) {
			token = "WHILE"
			t.pos++
			break
		}
		token, found = tokens[v]
		switch token {
		case "REM":
			t.comment = true
		case "DATA":
			t.inData = true
		}
	}

	if found {
		t.out.WriteString(token)
		return true
	}

	switch v {
	case '\t':
		t.out.WriteByte('\t')
	case '\n':
		// embedded LFs are dropped
	default:
		// Anything else is emitted as raw text (DATA statements with odd bytes exist), after
		// un-reading the second byte of a two-byte opcode.
		if v >= 0xFD00 && t.pos > second {
			t.pos = second
		}
		t.char(b)
		if t.lineWarning != line {
			t.log.Warnf("%s contained unusual bytes (eg, %#x on line %d)", t.name, v, line)
			t.lineWarning = line
		}
	}
	return true
}
