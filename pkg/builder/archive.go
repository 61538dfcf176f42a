package builder

import (
	"context"
	"fmt"
	"io"
	"math"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/juju/errors"
	"golang.org/x/sync/errgroup"

	"github.com/kirsrus/diskimage/pkg/archive"
	"github.com/kirsrus/diskimage/pkg/charset"
	"github.com/kirsrus/diskimage/pkg/manifest"
)

// VerboseMode selects the archive listing and decompression behaviour of FromArchive
type VerboseMode int

const (
	// VerboseOff decompresses everything quietly
	VerboseOff VerboseMode = iota
	// VerboseOn also prints a table row per entry
	VerboseOn
	// VerboseSkip prints the table and decompresses nothing
	VerboseSkip
	// VerboseNamed prints the table and decompresses only the entry named Verbosity.Name
	VerboseNamed
)

// Verbosity of FromArchive
type Verbosity struct {
	Mode VerboseMode
	Name string
}

// ParseVerbosity reads the --verbose flag value: "" and "off" (or "false") are VerboseOff, "on"
// (or "true") is VerboseOn, "skip" is VerboseSkip and any other value names the only entry to
// decompress
func ParseVerbosity(value string) Verbosity {
	switch strings.ToLower(value) {
	case "", "off", "false":
		return Verbosity{Mode: VerboseOff}
	case "on", "true":
		return Verbosity{Mode: VerboseOn}
	case "skip":
		return Verbosity{Mode: VerboseSkip}
	}
	return Verbosity{Mode: VerboseNamed, Name: value}
}

// skips reports whether the entry must not be decompressed
func (v Verbosity) skips(name string) bool {
	return v.Mode == VerboseSkip || v.Mode == VerboseNamed && v.Name != name
}

const (
	tableHeader = "Filename        Length   Method       Size  Ratio   Date       Time       CRC\n" +
		"--------        ------   ------       ----  -----   ----       ----       ---\n"
	tableNameWidth = 14
)

type fetched struct {
	data []byte
	err  error
}

type node struct {
	entry    manifest.Entry
	children []*node
}

func (n *node) build() manifest.Entry {
	e := n.entry
	if e.IsDir() {
		e.Children = make([]manifest.Entry, 0, len(n.children))
		for _, child := range n.children {
			e.Children = append(e.Children, child.build())
		}
	}
	return e
}

// FromArchive builds a manifest of an opened archive. Entries are placed under a directory entry
// seen earlier whose path is their parent path, and at the top level otherwise; an entry that
// precedes its directory stays at the top level. Unless v is VerboseOff, a listing table is
// written to out. Reader messages and decompression errors are reported after all entries.
func (b *Builder) FromArchive(ctx context.Context, r archive.Reader, v Verbosity, out io.Writer) ([]manifest.Entry, error) {
	if out == nil {
		out = io.Discard
	}
	entries := r.Entries()

	results, err := b.fetchAll(ctx, r, entries, v)
	if err != nil {
		return nil, errors.Annotate(err, r.Name())
	}
	// fetching tells which ARC entries were garbled
	entries = r.Entries()

	if v.Mode != VerboseOff {
		if _, err := fmt.Fprintf(out, "reading: %s\n%s", r.Name(), tableHeader); err != nil {
			return nil, errors.Trace(err)
		}
	}

	top := make([]*node, 0, len(entries))
	dirs := make(map[string]*node)
	messages := make([]string, 0)

	for i, ae := range entries {
		entryPath := strings.TrimSuffix(ae.Name, "/")
		name := path.Base(entryPath)

		n := &node{}
		if ae.IsDir {
			n.entry = manifest.NewDir(entryPath, name, ae.Time, nil)
			if _, ok := dirs[entryPath+"/"]; !ok {
				dirs[entryPath+"/"] = n
			}
		} else {
			data := results[i].data
			if data == nil {
				data = make([]byte, 0)
			}
			n.entry = manifest.NewFile(entryPath, name, 0, ae.Time, data)
		}
		if ae.NameEncoding != "" {
			n.entry.NameEncoding = ae.NameEncoding
		}

		messages = append(messages, ae.Messages...)
		if results[i].err != nil {
			messages = append(messages, results[i].err.Error())
		}

		if parent, ok := dirs[path.Dir(entryPath)+"/"]; ok && parent != n {
			parent.children = append(parent.children, n)
		} else {
			top = append(top, n)
		}

		if v.Mode != VerboseOff {
			if err := b.row(out, r.Kind(), ae, n.entry, results[i].err); err != nil {
				return nil, errors.Trace(err)
			}
		}
	}

	for _, msg := range messages {
		b.log.Warn(msg)
	}

	result := make([]manifest.Entry, 0, len(top))
	for _, n := range top {
		result = append(result, n.build())
	}
	return result, nil
}

// fetchAll decompresses the entries v allows, a few at a time, keeping results by entry index.
// Decompression errors are kept with the result; only cancellation fails the whole fetch.
func (b *Builder) fetchAll(ctx context.Context, r archive.Reader, entries []archive.Entry, v Verbosity) ([]fetched, error) {
	results := make([]fetched, len(entries))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.fetchers)
	for i, e := range entries {
		if e.IsDir {
			continue
		}
		if v.skips(e.Name) {
			results[i].data = make([]byte, e.Size)
			continue
		}
		i, name := i, e.Name
		g.Go(func() error {
			data, err := r.Fetch(ctx, name)
			if err != nil && errors.Cause(err) == ctx.Err() {
				return err
			}
			results[i] = fetched{data: data, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Trace(err)
	}
	return results, nil
}

func (b *Builder) row(out io.Writer, kind archive.Kind, ae archive.Entry, e manifest.Entry, fetchErr error) error {
	name := e.Name
	if e.NameEncoding == manifest.EncodingCP437 {
		name = charset.Decode([]byte(name), false)
	}
	if utf8.RuneCountInString(name) > tableNameWidth {
		runes := []rune(name)
		name = "..." + string(runes[len(runes)-(tableNameWidth-3):])
	}

	size := e.Size
	if size < 0 {
		size = 0
		name += "/"
	}

	ratio := 0
	if size > ae.CompressedSize {
		ratio = int(math.Round(100 * float64(size-ae.CompressedSize) / float64(size)))
	}
	if fetchErr != nil {
		size = -1
	}

	_, err := fmt.Fprintf(out, "%-14s %7d   %-9s %7d   %3d%%   %s   %0*x\n",
		name, size, archive.MethodLabel(kind, ae.Method, ae.Encrypted), ae.CompressedSize, ratio,
		e.ModTime.Format("2006-01-02 15:04:05"), archive.CRCWidth(kind), ae.CRC)
	return errors.Trace(err)
}
