// Package extract writes manifests back to the host filesystem, expanding nested archives
package extract

import (
	"context"
	"encoding/binary"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/kirsrus/diskimage/pkg/archive"
	"github.com/kirsrus/diskimage/pkg/basic"
	"github.com/kirsrus/diskimage/pkg/builder"
	"github.com/kirsrus/diskimage/pkg/charset"
	"github.com/kirsrus/diskimage/pkg/manifest"
	"github.com/kirsrus/diskimage/pkg/textnorm"
)

const (
	zipExtendedSignature = 0x08074B50

	readOnlyPerm = 0o444
	filePerm     = 0o644
	dirPerm      = 0o755
)

// housekeeping matches bookkeeping files foreign operating systems leave on mounted disks
var housekeeping = []func(p string) bool{
	func(p string) bool { return strings.HasSuffix(p, "~1.TRA") },
	func(p string) bool { return strings.HasSuffix(p, "TRASHE~1") },
	func(p string) bool { return strings.Contains(p, "FSEVEN~1") },
}

// IsHousekeeping reports whether the entry path is a bookkeeping file that is never extracted
func IsHousekeeping(p string) bool {
	for _, match := range housekeeping {
		if match(p) {
			return true
		}
	}
	return false
}

// OpenFunc opens an archive held in memory, archive.OpenBytes by default
type OpenFunc func(ctx context.Context, name string, data []byte, opts archive.Options, log *logrus.Logger) (archive.Reader, error)

// Options of an Engine
type Options struct {
	// Overwrite replaces existing files, and files standing where a directory must be created
	Overwrite bool
	// Quiet suppresses the "extracting" and "expanding" progress lines
	Quiet bool
	// Normalize converts BASIC programs and text files to host text
	Normalize bool
	// Expand extracts the contents of .ARC and .ZIP entries instead of the archives themselves
	Expand bool
	// Password for garbled ARC archives
	Password string
	// Verbose is the listing mode used for nested archives
	Verbose builder.Verbosity
	// Out receives nested archive listings; nil discards them
	Out io.Writer
}

// Summary counts what one Extract call did
type Summary struct {
	Files    int
	Dirs     int
	Expanded int
	Skipped  int
	Failed   int
}

// Engine extracts manifests. It is not safe for concurrent use.
type Engine struct {
	log     *logrus.Entry
	logger  *logrus.Logger
	fs      afero.Fs
	opts    Options
	open    OpenFunc
	basic   *basic.Decoder
	builder *builder.Builder

	summary Summary
}

// New creates an engine writing through fs (nil means the OS filesystem) and reporting through
// log (nil discards it)
func New(fs afero.Fs, opts Options, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.New()
		log.Out = io.Discard
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	return &Engine{
		log:     log.WithField("scope", "extract"),
		logger:  log,
		fs:      fs,
		opts:    opts,
		open:    archive.OpenBytes,
		basic:   basic.NewDecoder(log),
		builder: builder.New(fs, log),
	}
}

// SetOpener replaces the function used to open nested archives
func (m *Engine) SetOpener(open OpenFunc) {
	m.open = open
}

// Extract writes the entries below dir. Failures are reported and skip the failed entry with its
// children; only cancellation of ctx is returned as an error.
func (m *Engine) Extract(ctx context.Context, entries []manifest.Entry, dir string) (Summary, error) {
	m.summary = Summary{}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return m.summary, errors.Trace(err)
		}
		m.extract(ctx, dir, "", e, false)
	}
	return m.summary, errors.Trace(ctx.Err())
}

// ExtractNamed writes, directly below dir, every file of the tree whose name is name
func (m *Engine) ExtractNamed(ctx context.Context, entries []manifest.Entry, dir, name string) (Summary, error) {
	matched := make([]manifest.Entry, 0)
	err := manifest.Walk(entries, func(e *manifest.Entry, _ int) error {
		if !e.IsDir() && !e.IsVolume() && hostName(*e) == name {
			match := *e
			match.Path = path.Base(match.Path)
			matched = append(matched, match)
		}
		return nil
	})
	if err != nil {
		return Summary{}, errors.Trace(err)
	}
	if len(matched) == 0 {
		m.log.Warnf("%s not found", name)
	}
	return m.Extract(ctx, matched, dir)
}

// extract writes one entry, at dir/sub/entry path, then its children. It reports false when the
// entry or one of its children failed; a file kept because it already exists is not a failure.
// A directory that cannot be created is not descended into, its siblings are still written.
func (m *Engine) extract(ctx context.Context, dir, sub string, e manifest.Entry, noExpand bool) bool {
	if IsHousekeeping(e.Path) {
		m.summary.Skipped++
		return true
	}
	if e.IsVolume() {
		return true
	}

	rel := path.Join(sub, strings.TrimPrefix(hostPath(e), "/"))
	full := filepath.Join(dir, filepath.FromSlash(rel))

	if err := m.makeDir(filepath.Dir(full), m.opts.Overwrite); err != nil {
		m.log.Warn(err)
	}

	switch {
	case e.IsDir():
		if err := m.makeDir(full, m.opts.Overwrite); err != nil {
			m.log.Warn(err)
			m.summary.Failed++
			return false
		}
		m.summary.Dirs++
	default:
		if kind := archive.KindFromName(e.Name); m.opts.Expand && !noExpand && kind != archive.KindUnknown {
			m.expand(ctx, dir, sub, rel, kind, e)
			return true
		}
		if !m.opts.Quiet {
			m.log.Infof("extracting: %s", rel)
		}
		switch m.writeFile(full, m.convert(rel, e.Content), e.Attr.Has(manifest.AttrReadOnly)) {
		case writeSkipped:
			return true
		case writeFailed:
			return false
		}
	}

	if err := m.fs.Chtimes(full, e.ModTime, e.ModTime); err != nil {
		m.log.Warn(errors.Annotate(err, full))
	}
	ok := true
	for _, child := range e.Children {
		if !m.extract(ctx, dir, sub, child, false) {
			ok = false
		}
	}
	return ok
}

// expand extracts the contents of an archive entry into a directory named after it. If the
// archive cannot be read in full, the entry is written as a plain file instead.
func (m *Engine) expand(ctx context.Context, dir, sub, rel string, kind archive.Kind, e manifest.Entry) {
	if !m.opts.Quiet {
		m.log.Infof("expanding: %s", rel)
	}
	data := e.Content
	if kind == archive.KindZIP && len(data) > 0 && data[0] == archive.ARCMarker {
		kind = archive.KindARC
		m.log.Warnf("overriding %s as type ARC", rel)
	}
	if kind == archive.KindZIP && len(data) >= 4 && binary.LittleEndian.Uint32(data) == zipExtendedSignature {
		m.log.Warnf("ZIP extended header signature detected (%#08x)", zipExtendedSignature)
	}

	entries, err := m.readArchive(ctx, rel, kind, data)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.log.Warn(err)
		m.extract(ctx, dir, sub, e, true)
		return
	}

	m.summary.Expanded++
	for _, child := range entries {
		m.extract(ctx, dir, rel, child, false)
	}
}

func (m *Engine) readArchive(ctx context.Context, name string, kind archive.Kind, data []byte) ([]manifest.Entry, error) {
	r, err := m.open(ctx, name, data, archive.Options{
		Kind:         kind,
		Password:     m.opts.Password,
		NameEncoding: manifest.EncodingCP437,
	}, m.logger)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer r.Close()

	for _, ae := range r.Entries() {
		if !archive.Fetchable(r.Kind(), ae) {
			return nil, errors.Annotatef(archive.ErrUnsupportedMethod, "%s: %s (%s)",
				name, ae.Name, archive.MethodLabel(r.Kind(), ae.Method, ae.Encrypted))
		}
	}

	entries, err := m.builder.FromArchive(ctx, r, m.opts.Verbose, m.opts.Out)
	return entries, errors.Trace(err)
}

// convert applies the normalize option to file data about to be written
func (m *Engine) convert(name string, data []byte) []byte {
	if !m.opts.Normalize {
		return data
	}
	if basic.IsBASICFile(name) {
		return m.basic.Convert(name, data, true)
	}
	if textnorm.IsTextFile(name) {
		return textnorm.ForHost(data, false)
	}
	return data
}

// makeDir creates dir and its parents. A file standing at dir is deleted first when deleteFile
// is set.
func (m *Engine) makeDir(dir string, deleteFile bool) error {
	info, err := m.fs.Stat(dir)
	if err == nil && !info.IsDir() {
		if !deleteFile {
			return errors.Errorf("%s exists and is not a directory", dir)
		}
		if err := m.fs.Remove(dir); err != nil {
			return errors.Annotate(err, dir)
		}
	}
	return errors.Annotate(m.fs.MkdirAll(dir, dirPerm), dir)
}

type writeResult int

const (
	writeDone writeResult = iota
	// the file exists and overwrite is off
	writeSkipped
	writeFailed
)

func (m *Engine) writeFile(name string, data []byte, readOnly bool) writeResult {
	if _, err := m.fs.Stat(name); err == nil {
		if !m.opts.Overwrite {
			if !m.opts.Quiet {
				m.log.Warnf("%s exists, use --overwrite to replace", name)
			}
			m.summary.Skipped++
			return writeSkipped
		}
		if err := m.fs.Remove(name); err != nil {
			m.log.Warn(errors.Annotate(err, name))
			m.summary.Failed++
			return writeFailed
		}
	} else if !os.IsNotExist(errors.Cause(err)) {
		m.log.Warn(errors.Annotate(err, name))
		m.summary.Failed++
		return writeFailed
	}

	if err := afero.WriteFile(m.fs, name, data, filePerm); err != nil {
		m.log.Warn(errors.Annotate(err, name))
		m.summary.Failed++
		return writeFailed
	}
	if readOnly {
		if err := m.fs.Chmod(name, readOnlyPerm); err != nil {
			m.log.Warn(errors.Annotate(err, name))
		}
	}
	m.summary.Files++
	return writeDone
}

// hostPath is the entry path as a host name, CP437 names decoded to UTF-8
func hostPath(e manifest.Entry) string {
	p := strings.ReplaceAll(e.Path, "\\", "/")
	if e.NameEncoding == manifest.EncodingCP437 {
		p = charset.Decode([]byte(p), false)
	}
	return p
}

func hostName(e manifest.Entry) string {
	if e.NameEncoding == manifest.EncodingCP437 {
		return charset.Decode([]byte(e.Name), false)
	}
	return e.Name
}
