// Package archive reads the two legacy container kinds found on old diskettes: ARC archives
// (SEA ARC/PKARC/PKPAK) and ZIP archives.
package archive

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/thoas/go-funk"
)

var (
	ErrNotArchive        = errors.New("not an archive")
	ErrUnsupportedMethod = errors.New("unsupported compression method")
	ErrChecksum          = errors.New("checksum error")
	ErrEncrypted         = errors.New("encrypted entry")
	ErrNotFound          = errors.New("entry not found")
)

// Kind of archive container. The zero value asks Open to detect it.
type Kind int

const (
	KindUnknown Kind = iota
	KindARC
	KindZIP
)

func (k Kind) String() string {
	switch k {
	case KindARC:
		return "ARC"
	case KindZIP:
		return "ZIP"
	}
	return "unknown"
}

const ARCMarker = 0x1A

var archiveExts = []string{".ARC", ".ZIP"}

// IsArchiveFile reports whether name has a known archive extension (case-insensitive)
func IsArchiveFile(name string) bool {
	return funk.ContainsString(archiveExts, strings.ToUpper(path.Ext(strings.ReplaceAll(name, "\\", "/"))))
}

// KindFromName returns the kind implied by the extension of name
func KindFromName(name string) Kind {
	switch strings.ToUpper(path.Ext(strings.ReplaceAll(name, "\\", "/"))) {
	case ".ARC":
		return KindARC
	case ".ZIP":
		return KindZIP
	}
	return KindUnknown
}

// Sniff detects the kind of archive starting at data[0]
func Sniff(data []byte) Kind {
	switch {
	case len(data) >= 2 && data[0] == ARCMarker && data[1] < 0x80:
		return KindARC
	case len(data) >= 4 && data[0] == 'P' && data[1] == 'K' && (data[2] == 3 && data[3] == 4 ||
		data[2] == 5 && data[3] == 6 || data[2] == 7 && data[3] == 8):
		return KindZIP
	}
	return KindUnknown
}

// Entry describes one archive member in archive order
type Entry struct {
	Name           string
	NameEncoding   string
	Size           int64
	CompressedSize int64
	// Method is the ZIP method code, or the negated ARC method code for ARC entries
	Method    int
	CRC uint32
	// Encrypted is read from ZIP headers. ARC headers do not record it, so for ARC entries it
	// is set by a Fetch that found the entry garbled with the password.
	Encrypted bool
	// Time is the local time stored in the entry
	Time     time.Time
	IsDir    bool
	Messages []string
}

// Reader is an opened archive. Fetch is safe for concurrent use.
type Reader interface {
	Name() string
	Kind() Kind
	Entries() []Entry
	// Fetch returns the decompressed bytes of the named entry. On ErrChecksum the data is
	// returned along with the error. Fetch may update the entry's Encrypted flag, so Entries
	// is read again after fetching.
	Fetch(ctx context.Context, name string) ([]byte, error)
	Close() error
}

// Options of Open
type Options struct {
	// Kind forces the container kind; KindUnknown detects it from the data and then the name
	Kind Kind
	// Offset of the archive inside the file; "" locates ARC archives embedded in .EXE files
	Offset string
	// Password for garbled ARC entries
	Password string
	// NameEncoding of names which do not declare one (manifest.EncodingCP437 when empty)
	NameEncoding string
}

// Open reads the archive file name from fsys
func Open(ctx context.Context, fsys afero.Fs, name string, opts Options, log *logrus.Logger) (Reader, error) {
	if _, err := fsys.Stat(name); err != nil {
		return nil, errors.Annotate(err, name)
	}
	data, err := afero.ReadFile(fsys, name)
	if err != nil {
		return nil, errors.Annotate(err, name)
	}
	return OpenBytes(ctx, name, data, opts, log)
}

// OpenBytes opens an archive held in memory; name is used for offset resolution and diagnostics
func OpenBytes(ctx context.Context, name string, data []byte, opts Options, log *logrus.Logger) (Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	if log == nil {
		log = logrus.New()
		log.Out = io.Discard
	}

	offset := ResolveOffset(name, data, opts.Kind, opts.Offset)
	if offset < 0 || offset > int64(len(data)) {
		return nil, errors.Annotatef(ErrNotArchive, "%s: no archive at offset %d", name, offset)
	}
	data = data[offset:]

	kind := opts.Kind
	if kind == KindUnknown {
		kind = Sniff(data)
	}
	if kind == KindUnknown {
		kind = KindFromName(name)
	}

	entry := log.WithField("scope", "archive").WithField("archive", path.Base(strings.ReplaceAll(name, "\\", "/")))

	var (
		r   Reader
		err error
	)
	switch kind {
	case KindARC:
		r, err = newARCReader(name, data, opts, entry)
	case KindZIP:
		r, err = newZIPReader(name, data, opts, entry)
	default:
		return nil, errors.Annotate(ErrNotArchive, name)
	}
	if err != nil {
		return nil, errors.Trace(err)
	}

	entry.Debugf("opened %s archive at offset %d: %d entries", kind, offset, len(r.Entries()))
	return r, nil
}

// catalog is the part shared by both readers
type catalog struct {
	name    string
	entries []Entry
	index   map[string]int
}

func (c *catalog) add(e Entry) {
	if c.index == nil {
		c.index = make(map[string]int)
	}
	if _, ok := c.index[e.Name]; !ok {
		c.index[e.Name] = len(c.entries)
	}
	c.entries = append(c.entries, e)
}

func (c *catalog) lookup(name string) (int, error) {
	i, ok := c.index[name]
	if !ok {
		return 0, errors.Annotatef(ErrNotFound, "%s: %s", c.name, name)
	}
	return i, nil
}

func (c *catalog) Name() string { return c.name }

func (c *catalog) Entries() []Entry { return c.entries }

func (c *catalog) Close() error { return nil }

// dosTime converts MS-DOS date and time words into a local time
func dosTime(date, tm uint16) time.Time {
	return time.Date(
		int(date>>9)+1980,
		time.Month(date>>5&0x0F),
		int(date&0x1F),
		int(tm>>11),
		int(tm>>5&0x3F),
		int(tm&0x1F)*2,
		0,
		time.Local,
	)
}
