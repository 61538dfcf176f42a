package archive

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"github.com/kirsrus/diskimage/pkg/manifest"
)

// ARC compression methods
const (
	arcEnd      = 0
	arcStoreOld = 1
	arcStore    = 2
	arcPack     = 3
	arcSqueeze  = 4

	arcHeaderSize    = 29
	arcHeaderSizeOld = 25
	arcNameSize      = 13

	arcRepeat = 0x90
	arcSqEOF  = 256
)

type arcMember struct {
	method int
	data   []byte
}

type arcReader struct {
	catalog
	log      *logrus.Entry
	password []byte
	members  []arcMember
	// guards Encrypted updates of entries by concurrent fetches
	mu sync.Mutex
}

func newARCReader(name string, data []byte, opts Options, log *logrus.Entry) (*arcReader, error) {
	if len(data) == 0 || data[0] != ARCMarker {
		return nil, errors.Annotate(ErrNotArchive, name)
	}

	encoding := opts.NameEncoding
	if encoding == "" {
		encoding = manifest.EncodingCP437
	}

	r := &arcReader{
		catalog:  catalog{name: name},
		log:      log,
		password: []byte(opts.Password),
	}

	pos := 0
	for pos < len(data) {
		if data[pos] != ARCMarker {
			r.note(fmt.Sprintf("%s: invalid header at offset %#x, %d bytes ignored", name, pos, len(data)-pos))
			break
		}
		if pos+1 >= len(data) {
			r.note(fmt.Sprintf("%s: archive ends without end marker", name))
			break
		}
		method := int(data[pos+1])
		if method == arcEnd {
			break
		}

		size := arcHeaderSize
		if method == arcStoreOld {
			size = arcHeaderSizeOld
		}
		if pos+size > len(data) {
			r.note(fmt.Sprintf("%s: truncated header at offset %#x", name, pos))
			break
		}
		h := data[pos : pos+size]

		e := Entry{
			Name:           cString(h[2 : 2+arcNameSize]),
			NameEncoding:   encoding,
			CompressedSize: int64(binary.LittleEndian.Uint32(h[15:])),
			Method:         -method,
			CRC:            uint32(binary.LittleEndian.Uint16(h[23:])),
			Time:           dosTime(binary.LittleEndian.Uint16(h[19:]), binary.LittleEndian.Uint16(h[21:])),
		}
		e.Size = e.CompressedSize
		if method != arcStoreOld {
			e.Size = int64(binary.LittleEndian.Uint32(h[25:]))
		}

		pos += size
		end := pos + int(e.CompressedSize)
		if end > len(data) {
			e.Messages = append(e.Messages, fmt.Sprintf("%s: %s is truncated (%d of %d bytes)", name, e.Name, len(data)-pos, e.CompressedSize))
			end = len(data)
		}

		r.add(e)
		r.members = append(r.members, arcMember{method: method, data: data[pos:end]})
		pos = end
	}
	return r, nil
}

// note attaches an archive-level diagnostic to the last entry read
func (r *arcReader) note(msg string) {
	if len(r.entries) == 0 {
		r.log.Warn(msg)
		return
	}
	last := &r.entries[len(r.entries)-1]
	last.Messages = append(last.Messages, msg)
}

func (r *arcReader) Kind() Kind { return KindARC }

func (r *arcReader) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	i, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	e, m := r.entries[i], r.members[i]

	if len(r.password) == 0 {
		return r.decode(name, e, m.method, m.data)
	}

	// A password garbles every entry of an archive; an entry that only checks out ungarbled
	// was stored in the clear
	data, err := r.decode(name, e, m.method, garble(m.data, r.password))
	if err != nil && errors.Cause(err) != ErrUnsupportedMethod {
		if plain, plainErr := r.decode(name, e, m.method, m.data); plainErr == nil {
			return plain, nil
		}
	}
	if err == nil || errors.Cause(err) == ErrChecksum {
		r.mu.Lock()
		r.entries[i].Encrypted = true
		r.mu.Unlock()
	}
	return data, err
}

func (r *arcReader) decode(name string, e Entry, method int, src []byte) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch method {
	case arcStoreOld, arcStore:
		data = append([]byte(nil), src...)
	case arcPack:
		data = unpack(src)
	case arcSqueeze:
		data, err = unsqueeze(src)
		if err != nil {
			return nil, errors.Annotatef(err, "%s: %s", r.name, name)
		}
		data = unpack(data)
	default:
		return nil, errors.Annotatef(ErrUnsupportedMethod, "%s: %s (%s)", r.name, name, MethodLabel(KindARC, e.Method, false))
	}

	if crc := crc16(data); uint32(crc) != e.CRC {
		r.log.Debugf("%s: CRC %04x, expected %04x", name, crc, e.CRC)
		return data, errors.Annotatef(ErrChecksum, "%s: %s", r.name, name)
	}
	return data, nil
}

// garble reverses ARC password encryption: every byte is XORed with the password, repeated
func garble(src, password []byte) []byte {
	result := make([]byte, len(src))
	for i, b := range src {
		result[i] = b ^ password[i%len(password)]
	}
	return result
}

// unpack expands run-length encoding. 0x90 N repeats the previous byte N-1 more times; 0x90 0x00
// is a literal 0x90.
func unpack(src []byte) []byte {
	result := make([]byte, 0, len(src))
	var last byte
	for i := 0; i < len(src); i++ {
		b := src[i]
		if b != arcRepeat {
			result = append(result, b)
			last = b
			continue
		}
		i++
		if i >= len(src) {
			break
		}
		n := int(src[i])
		if n == 0 {
			result = append(result, arcRepeat)
			continue
		}
		for ; n > 1; n-- {
			result = append(result, last)
		}
	}
	return result
}

// unsqueeze decodes Huffman "squeezed" data: a node count, the tree as pairs of signed children
// (negative values are leaves holding -(value+1)), then the bit stream, low bit first
func unsqueeze(src []byte) ([]byte, error) {
	if len(src) < 2 {
		return nil, errors.New("squeezed data too short")
	}
	count := int(binary.LittleEndian.Uint16(src))
	if count > arcSqEOF || 2+count*4 > len(src) {
		return nil, errors.Errorf("invalid squeeze tree (%d nodes)", count)
	}
	nodes := make([][2]int16, count)
	for i := range nodes {
		nodes[i][0] = int16(binary.LittleEndian.Uint16(src[2+i*4:]))
		nodes[i][1] = int16(binary.LittleEndian.Uint16(src[4+i*4:]))
	}
	bits := src[2+count*4:]

	result := make([]byte, 0, len(bits)*2)
	if count == 0 {
		return result, nil
	}

	node := 0
	for _, b := range bits {
		for bit := 0; bit < 8; bit++ {
			child := nodes[node][b>>bit&1]
			if child >= 0 {
				if int(child) >= count {
					return nil, errors.Errorf("invalid squeeze node %d", child)
				}
				node = int(child)
				continue
			}
			value := -(int(child) + 1)
			if value == arcSqEOF {
				return result, nil
			}
			result = append(result, byte(value))
			node = 0
		}
	}
	return result, nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// crc16 is CRC-16/ARC (reflected polynomial 0xA001, zero initial value)
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
