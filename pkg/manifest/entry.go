package manifest

import (
	"strings"
	"time"

	"github.com/juju/errors"
)

var (
	ErrContentOnDir = errors.New("directory or volume entry cannot carry content")
	ErrSizeMismatch = errors.New("file size does not match content length")
)

// Attr holds entry attribute bits, laid out like FAT directory attributes
type Attr uint8

const (
	AttrReadOnly Attr = 0x01
	AttrHidden   Attr = 0x02
	AttrSystem   Attr = 0x04
	AttrVolume   Attr = 0x08
	AttrSubdir   Attr = 0x10
	AttrArchive  Attr = 0x20
	AttrMetadata Attr = 0x80
)

// Has returns true when every bit of flag is set
func (a Attr) Has(flag Attr) bool {
	return a&flag == flag
}

func (a Attr) String() string {
	var b strings.Builder
	for _, v := range []struct {
		flag Attr
		char byte
	}{
		{AttrArchive, 'A'}, {AttrSubdir, 'D'}, {AttrVolume, 'V'}, {AttrSystem, 'S'},
		{AttrHidden, 'H'}, {AttrReadOnly, 'R'}, {AttrMetadata, 'M'},
	} {
		if a.Has(v.flag) {
			b.WriteByte(v.char)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

const (
	EncodingUTF8  = "utf8"
	EncodingCP437 = "cp437"
)

// Entry is one manifest node. A manifest root is a plain ordered []Entry.
//
// Size equals len(Content) for plain files, -1 for directories and 0 for a volume label.
type Entry struct {
	Path         string    `json:"path"`
	Name         string    `json:"name"`
	NameEncoding string    `json:"nameEncoding,omitempty"`
	Attr         Attr      `json:"attr"`
	ModTime      time.Time `json:"date"`
	Size         int64     `json:"size"`
	Content      []byte    `json:"-"`

	Children []Entry `json:"files,omitempty"`
}

// NewFile creates a plain file entry owning content
func NewFile(path, name string, attr Attr, modTime time.Time, content []byte) Entry {
	if content == nil {
		content = []byte{}
	}
	return Entry{
		Path:         path,
		Name:         name,
		NameEncoding: EncodingUTF8,
		Attr:         attr | AttrArchive,
		ModTime:      modTime,
		Size:         int64(len(content)),
		Content:      content,
	}
}

// New builds an entry from raw fields and rejects anything NewFile/NewDir/NewVolume could not
// have produced
func New(path, name string, attr Attr, modTime time.Time, size int64, content []byte) (Entry, error) {
	e := Entry{
		Path:         path,
		Name:         name,
		NameEncoding: EncodingUTF8,
		Attr:         attr,
		ModTime:      modTime,
		Size:         size,
		Content:      content,
	}
	if e.IsDir() {
		e.Children = make([]Entry, 0)
	} else if !e.IsVolume() && e.Content == nil {
		e.Content = []byte{}
	}
	if err := e.Validate(); err != nil {
		return Entry{}, errors.Trace(err)
	}
	return e, nil
}

// NewDir creates a SUBDIR entry. Children may be nil; later siblings can be appended.
func NewDir(path, name string, modTime time.Time, children []Entry) Entry {
	if children == nil {
		children = make([]Entry, 0)
	}
	return Entry{
		Path:         path,
		Name:         name,
		NameEncoding: EncodingUTF8,
		Attr:         AttrSubdir,
		ModTime:      modTime,
		Size:         -1,
		Children:     children,
	}
}

// NewVolume creates a volume label pseudo-entry
func NewVolume(path, label string, modTime time.Time) Entry {
	return Entry{
		Path:         path,
		Name:         label,
		NameEncoding: EncodingUTF8,
		Attr:         AttrVolume,
		ModTime:      modTime,
		Size:         0,
	}
}

func (e Entry) IsDir() bool {
	return e.Attr.Has(AttrSubdir)
}

func (e Entry) IsVolume() bool {
	return e.Attr.Has(AttrVolume)
}

// Validate checks the entry (not its children) is well formed
func (e Entry) Validate() error {
	if e.IsDir() || e.IsVolume() {
		if len(e.Content) != 0 {
			return errors.Annotate(ErrContentOnDir, e.Path)
		}
		if e.IsDir() && e.Size != -1 {
			return errors.Annotatef(ErrSizeMismatch, "%s: directory size %d", e.Path, e.Size)
		}
		if e.IsVolume() && e.Size != 0 {
			return errors.Annotatef(ErrSizeMismatch, "%s: volume size %d", e.Path, e.Size)
		}
		return nil
	}
	if e.Size != int64(len(e.Content)) {
		return errors.Annotatef(ErrSizeMismatch, "%s: size %d, content %d", e.Path, e.Size, len(e.Content))
	}
	return nil
}

// Validate checks the whole tree: every entry, and that a volume label, if any, is the first
// top-level entry and appears nowhere else
func Validate(entries []Entry) error {
	for i, e := range entries {
		if e.IsVolume() && i != 0 {
			return errors.Errorf("volume label '%s' must be the first entry", e.Name)
		}
	}
	return Walk(entries, func(e *Entry, depth int) error {
		if depth > 0 && e.IsVolume() {
			return errors.Errorf("volume label '%s' inside directory", e.Name)
		}
		return e.Validate()
	})
}
