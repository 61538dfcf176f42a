package archive

import (
	"bytes"
	"context"
	"encoding/binary"
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/klauspost/compress/zip"
	"github.com/maxatome/go-testdeep/td"
	"github.com/spf13/afero"

	"github.com/kirsrus/diskimage/pkg/manifest"
)

const (
	fixtureDate = 9<<9 | 9<<5 | 27 // 1989-09-27
	fixtureTime = 3 << 11          // 03:00:00
)

type arcFile struct {
	name   string
	method byte
	data   []byte
	size   int
	crc    uint16
}

func arcImage(files ...arcFile) []byte {
	var data []byte
	for _, f := range files {
		data = append(data, ARCMarker, f.method)
		name := make([]byte, arcNameSize)
		copy(name, f.name)
		data = append(data, name...)
		data = binary.LittleEndian.AppendUint32(data, uint32(len(f.data)))
		data = binary.LittleEndian.AppendUint16(data, fixtureDate)
		data = binary.LittleEndian.AppendUint16(data, fixtureTime)
		data = binary.LittleEndian.AppendUint16(data, f.crc)
		if f.method != arcStoreOld {
			data = binary.LittleEndian.AppendUint32(data, uint32(f.size))
		}
		data = append(data, f.data...)
	}
	return append(data, ARCMarker, arcEnd)
}

func stored(name string, content []byte) arcFile {
	return arcFile{name: name, method: arcStore, data: content, size: len(content), crc: crc16(content)}
}

func TestCRC16(t *testing.T) {
	td.Cmp(t, crc16([]byte("123456789")), uint16(0xBB3D))
	td.Cmp(t, crc16(nil), uint16(0))
}

func TestSniff(t *testing.T) {
	td.Cmp(t, Sniff([]byte{0x1A, 0x02, 'A'}), KindARC)
	td.Cmp(t, Sniff([]byte("PK\x03\x04rest")), KindZIP)
	td.Cmp(t, Sniff([]byte("PK\x05\x06")), KindZIP)
	td.Cmp(t, Sniff([]byte("MZ\x90\x00")), KindUnknown)
	td.Cmp(t, Sniff(nil), KindUnknown)

	td.Cmp(t, KindFromName("GAMES.ARC"), KindARC)
	td.Cmp(t, KindFromName("dir/games.zip"), KindZIP)
	td.Cmp(t, KindFromName("GAMES.EXE"), KindUnknown)
	td.CmpTrue(t, IsArchiveFile("a\\b\\PAK.Zip"))
	td.CmpFalse(t, IsArchiveFile("README"))
	td.Cmp(t, KindZIP.String(), "ZIP")
}

func TestLocate(t *testing.T) {
	t.Run("no signature", func(t *testing.T) {
		td.Cmp(t, Locate(make([]byte, 2000)), int64(-1))
		td.Cmp(t, Locate([]byte{1, 2, 3}), int64(-1))
	})

	t.Run("valid signature", func(t *testing.T) {
		data := make([]byte, 1000)
		k := 900
		binary.LittleEndian.PutUint32(data[k:], locatorSignature)
		binary.LittleEndian.PutUint32(data[k+4:], 100)
		td.Cmp(t, Locate(data), int64(k+8-100-40))
	})

	t.Run("size out of range", func(t *testing.T) {
		data := make([]byte, 1000)
		binary.LittleEndian.PutUint32(data[900:], locatorSignature)
		binary.LittleEndian.PutUint32(data[904:], 5000)
		td.Cmp(t, Locate(data), int64(-1))
	})

	t.Run("outside the window", func(t *testing.T) {
		data := make([]byte, 2000)
		binary.LittleEndian.PutUint32(data[100:], locatorSignature)
		binary.LittleEndian.PutUint32(data[104:], 50)
		td.Cmp(t, Locate(data), int64(-1))
	})
}

func TestResolveOffset(t *testing.T) {
	exe := make([]byte, 600)
	binary.LittleEndian.PutUint32(exe[590:], locatorSignature)
	binary.LittleEndian.PutUint32(exe[594:], 200)

	td.Cmp(t, ResolveOffset("PK361.EXE", exe, KindARC, ""), int64(598-200-40))
	td.Cmp(t, ResolveOffset("pk361.exe", exe, KindARC, "1234"), int64(1234))
	td.Cmp(t, ResolveOffset("pk361.exe", exe, KindARC, "0x10"), int64(16))
	td.Cmp(t, ResolveOffset("pk361.exe", exe, KindARC, "junk"), int64(0))
	td.Cmp(t, ResolveOffset("PK361.EXE", exe, KindZIP, ""), int64(0))
	td.Cmp(t, ResolveOffset("GAMES.ARC", exe, KindARC, ""), int64(0))
}

func TestMethodLabel(t *testing.T) {
	td.Cmp(t, MethodLabel(KindARC, -2, false), "Store")
	td.Cmp(t, MethodLabel(KindARC, -1, false), "Store")
	td.Cmp(t, MethodLabel(KindARC, -3, true), "Pack*")
	td.Cmp(t, MethodLabel(KindARC, -9, false), "Squash")
	td.Cmp(t, MethodLabel(KindARC, -12, false), "Method12")
	td.Cmp(t, MethodLabel(KindZIP, 8, false), "Deflate")
	td.Cmp(t, MethodLabel(KindZIP, 7, false), "Method7")
	td.Cmp(t, MethodLabel(KindZIP, 99, true), "Method99*")
}

func TestFetchable(t *testing.T) {
	td.CmpTrue(t, Fetchable(KindARC, Entry{Method: -arcSqueeze}))
	td.CmpTrue(t, Fetchable(KindARC, Entry{Method: -arcStore, Encrypted: true}))
	td.CmpFalse(t, Fetchable(KindARC, Entry{Method: -8}))
	td.CmpTrue(t, Fetchable(KindZIP, Entry{Method: 8}))
	td.CmpFalse(t, Fetchable(KindZIP, Entry{Method: 0, Encrypted: true}))
	td.CmpFalse(t, Fetchable(KindZIP, Entry{Method: 6}))
	td.CmpTrue(t, Fetchable(KindZIP, Entry{Method: 6, IsDir: true}))
	td.Cmp(t, CRCWidth(KindARC), 4)
	td.Cmp(t, CRCWidth(KindZIP), 8)
}

func TestUnpack(t *testing.T) {
	td.Cmp(t, unpack([]byte{'A', 0x90, 5, 'B', 0x90, 0}), []byte("AAAAAB\x90"))
	td.Cmp(t, unpack([]byte{'A', 0x90}), []byte("A"), "dangling repeat marker")
}

func TestARC(t *testing.T) {
	ctx := context.Background()

	packed := []byte{'A', 0x90, 5, 'B', 0x90, 0}
	packedPlain := []byte("AAAAAB\x90")
	// A=0 B=10 EOF=11, written low bit first
	squeezed := []byte{
		2, 0,
		0xBE, 0xFF, 0x01, 0x00, // node 0: 'A', node 1
		0xBD, 0xFF, 0xFF, 0xFE, // node 1: 'B', EOF
		0x1A,
	}

	data := arcImage(
		stored("README.TXT", []byte("hello\r\n")),
		arcFile{name: "PACKED.DAT", method: arcPack, data: packed, size: len(packedPlain), crc: crc16(packedPlain)},
		arcFile{name: "SQ.DAT", method: arcSqueeze, data: squeezed, size: 2, crc: crc16([]byte("AB"))},
		arcFile{name: "CRUNCH.DAT", method: 8, data: []byte{1, 2, 3}, size: 10},
		arcFile{name: "BAD.DAT", method: arcStore, data: []byte("xyz"), size: 3, crc: 0x1234},
		arcFile{name: "OLD.DAT", method: arcStoreOld, data: []byte("old"), crc: crc16([]byte("old"))},
	)

	r, err := OpenBytes(ctx, "TEST.ARC", data, Options{}, nil)
	td.Require(t).CmpNoError(err)
	defer r.Close()

	td.Cmp(t, r.Kind(), KindARC)
	td.Cmp(t, r.Name(), "TEST.ARC")

	entries := r.Entries()
	td.Require(t).Cmp(entries, td.Len(6))
	td.Cmp(t, entries[0], td.SStruct(Entry{
		Name:           "README.TXT",
		NameEncoding:   manifest.EncodingCP437,
		Size:           7,
		CompressedSize: 7,
		Method:         -2,
		CRC:            uint32(crc16([]byte("hello\r\n"))),
	}, td.StructFields{"Time": td.Ignore()}))
	td.Cmp(t, entries[0].Time.Format("2006-01-02 15:04:05"), "1989-09-27 03:00:00")
	td.Cmp(t, entries[1].Method, -3)
	td.Cmp(t, entries[5].Size, int64(3), "old-style store has no original length")

	got, err := r.Fetch(ctx, "README.TXT")
	td.CmpNoError(t, err)
	td.Cmp(t, got, []byte("hello\r\n"))

	got, err = r.Fetch(ctx, "PACKED.DAT")
	td.CmpNoError(t, err)
	td.Cmp(t, got, packedPlain)

	got, err = r.Fetch(ctx, "SQ.DAT")
	td.CmpNoError(t, err)
	td.Cmp(t, got, []byte("AB"))

	_, err = r.Fetch(ctx, "CRUNCH.DAT")
	td.Cmp(t, errors.Cause(err), ErrUnsupportedMethod)
	td.Cmp(t, err.Error(), td.Contains("Crush"))

	got, err = r.Fetch(ctx, "BAD.DAT")
	td.Cmp(t, errors.Cause(err), ErrChecksum)
	td.Cmp(t, got, []byte("xyz"), "data kept on checksum error")

	got, err = r.Fetch(ctx, "OLD.DAT")
	td.CmpNoError(t, err)
	td.Cmp(t, got, []byte("old"))

	_, err = r.Fetch(ctx, "MISSING")
	td.Cmp(t, errors.Cause(err), ErrNotFound)
}

func TestARC_Password(t *testing.T) {
	ctx := context.Background()
	plain := []byte("secret data")
	f := stored("SECRET.TXT", garble(plain, []byte("PW")))
	f.crc = crc16(plain)
	data := arcImage(f)

	r, err := OpenBytes(ctx, "S.ARC", data, Options{Password: "PW"}, nil)
	td.Require(t).CmpNoError(err)
	td.CmpFalse(t, r.Entries()[0].Encrypted, "unknown until fetched")

	got, err := r.Fetch(ctx, "SECRET.TXT")
	td.CmpNoError(t, err)
	td.Cmp(t, got, plain)
	td.CmpTrue(t, r.Entries()[0].Encrypted)
	td.Cmp(t, MethodLabel(r.Kind(), r.Entries()[0].Method, r.Entries()[0].Encrypted), "Store*")

	r, err = OpenBytes(ctx, "S.ARC", data, Options{}, nil)
	td.Require(t).CmpNoError(err)
	_, err = r.Fetch(ctx, "SECRET.TXT")
	td.Cmp(t, errors.Cause(err), ErrChecksum)
}

func TestARC_PasswordOnClearArchive(t *testing.T) {
	ctx := context.Background()
	data := arcImage(
		stored("CLEAR.TXT", []byte("in the clear")),
		arcFile{name: "BAD.DAT", method: arcStore, data: []byte("xyz"), size: 3, crc: 0x1234},
	)

	r, err := OpenBytes(ctx, "C.ARC", data, Options{Password: "PW"}, nil)
	td.Require(t).CmpNoError(err)

	got, err := r.Fetch(ctx, "CLEAR.TXT")
	td.CmpNoError(t, err)
	td.Cmp(t, got, []byte("in the clear"))
	td.CmpFalse(t, r.Entries()[0].Encrypted)
	td.Cmp(t, MethodLabel(r.Kind(), r.Entries()[0].Method, r.Entries()[0].Encrypted), "Store")

	got, err = r.Fetch(ctx, "BAD.DAT")
	td.Cmp(t, errors.Cause(err), ErrChecksum)
	td.Cmp(t, got, garble([]byte("xyz"), []byte("PW")), "damaged data is returned garbled")
	td.CmpTrue(t, r.Entries()[1].Encrypted)
}

func TestARC_Damaged(t *testing.T) {
	ctx := context.Background()

	data := arcImage(stored("A.TXT", []byte("abc")))
	data = append(data[:len(data)-2], 'J', 'U', 'N', 'K')
	r, err := OpenBytes(ctx, "D.ARC", data, Options{}, nil)
	td.Require(t).CmpNoError(err)
	td.Cmp(t, r.Entries(), td.Len(1))
	td.Cmp(t, r.Entries()[0].Messages, []string{"D.ARC: invalid header at offset 0x20, 4 bytes ignored"})

	data = arcImage(stored("A.TXT", []byte("abcdef")))
	data = data[:len(data)-5]
	r, err = OpenBytes(ctx, "T.ARC", data, Options{}, nil)
	td.Require(t).CmpNoError(err)
	td.Cmp(t, r.Entries()[0].Messages, td.Contains("T.ARC: A.TXT is truncated (3 of 6 bytes)"))

	_, err = OpenBytes(ctx, "X.ARC", []byte("not an archive"), Options{Kind: KindARC}, nil)
	td.Cmp(t, errors.Cause(err), ErrNotArchive)

	_, err = OpenBytes(ctx, "X.BIN", []byte("not an archive"), Options{}, nil)
	td.Cmp(t, errors.Cause(err), ErrNotArchive)
}

func TestARC_EmbeddedInEXE(t *testing.T) {
	arc := arcImage(stored("INSIDE.TXT", []byte("inside")))

	exe := append([]byte("MZ"), make([]byte, 100)...)
	exe = append(exe, arc...)
	// 40 bytes of trailer follow the archive, ending with the signature and the archive size
	exe = append(exe, make([]byte, 40-8)...)
	exe = binary.LittleEndian.AppendUint32(exe, locatorSignature)
	exe = binary.LittleEndian.AppendUint32(exe, uint32(len(arc)))
	td.Require(t).Cmp(Locate(exe), int64(102))

	r, err := OpenBytes(context.Background(), "SFX.EXE", exe, Options{Kind: KindARC}, nil)
	td.Require(t).CmpNoError(err)
	td.Cmp(t, r.Entries()[0].Name, "INSIDE.TXT")
}

type zipFile struct {
	zip.FileHeader
	content string
}

func zipImage(t *testing.T, files ...zipFile) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for i := range files {
		f, err := w.CreateHeader(&files[i].FileHeader)
		td.Require(t).CmpNoError(err)
		if files[i].content != "" {
			_, err = f.Write([]byte(files[i].content))
			td.Require(t).CmpNoError(err)
		}
	}
	td.Require(t).CmpNoError(w.Close())
	return buf.Bytes()
}

func TestZIP(t *testing.T) {
	ctx := context.Background()
	date := time.Date(1991, 5, 6, 7, 8, 10, 0, time.Local)

	data := zipImage(t,
		zipFile{FileHeader: zip.FileHeader{Name: "DOCS/", Modified: date}},
		zipFile{FileHeader: zip.FileHeader{Name: "DOCS/README.TXT", Method: zip.Deflate, Modified: date}, content: strings.Repeat("read me ", 64)},
		zipFile{FileHeader: zip.FileHeader{Name: "STORED.BIN", Method: zip.Store, Modified: date}, content: "raw"},
		zipFile{FileHeader: zip.FileHeader{Name: "LOCKED.TXT", Method: zip.Store, Modified: date, Flags: 0x1}, content: "x"},
		zipFile{FileHeader: zip.FileHeader{Name: "ПРИВЕТ.TXT", Method: zip.Store, Modified: date}, content: "utf"},
	)
	td.Require(t).Cmp(Sniff(data), KindZIP)

	fs := afero.NewMemMapFs()
	td.Require(t).CmpNoError(afero.WriteFile(fs, "/in/TEST.ZIP", data, 0o644))

	r, err := Open(ctx, fs, "/in/TEST.ZIP", Options{}, nil)
	td.Require(t).CmpNoError(err)
	defer r.Close()

	td.Cmp(t, r.Kind(), KindZIP)
	entries := r.Entries()
	td.Require(t).Cmp(entries, td.Len(5))

	td.CmpTrue(t, entries[0].IsDir)
	td.Cmp(t, entries[0].Size, int64(0))
	td.Cmp(t, entries[1], td.Struct(Entry{
		Name:   "DOCS/README.TXT",
		Size:   512,
		Method: int(zip.Deflate),
	}, td.StructFields{
		"CompressedSize": td.Between(int64(1), int64(100)),
		"CRC":            td.NotZero(),
	}))
	td.Cmp(t, entries[1].Time.Format("2006-01-02 15:04:05"), "1991-05-06 07:08:10")
	td.Cmp(t, entries[2].NameEncoding, manifest.EncodingCP437)
	td.Cmp(t, entries[4].NameEncoding, manifest.EncodingUTF8)
	td.CmpTrue(t, entries[3].Encrypted)
	td.Cmp(t, MethodLabel(KindZIP, entries[3].Method, entries[3].Encrypted), "Store*")

	got, err := r.Fetch(ctx, "DOCS/README.TXT")
	td.CmpNoError(t, err)
	td.Cmp(t, string(got), strings.Repeat("read me ", 64))

	got, err = r.Fetch(ctx, "STORED.BIN")
	td.CmpNoError(t, err)
	td.Cmp(t, got, []byte("raw"))

	_, err = r.Fetch(ctx, "LOCKED.TXT")
	td.Cmp(t, errors.Cause(err), ErrEncrypted)

	_, err = r.Fetch(ctx, "NOPE")
	td.Cmp(t, errors.Cause(err), ErrNotFound)

	_, err = Open(ctx, fs, "/in/MISSING.ZIP", Options{}, nil)
	td.CmpError(t, err)
}

func TestZIP_Corrupt(t *testing.T) {
	_, err := OpenBytes(context.Background(), "BAD.ZIP", []byte("PK\x03\x04garbage"), Options{}, nil)
	td.Cmp(t, errors.Cause(err), ErrNotArchive)
}

func TestFetchCanceled(t *testing.T) {
	data := arcImage(stored("A.TXT", []byte("abc")))
	r, err := OpenBytes(context.Background(), "A.ARC", data, Options{}, nil)
	td.Require(t).CmpNoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Fetch(ctx, "A.TXT")
	td.Cmp(t, errors.Cause(err), context.Canceled)
}
