package manifest

import (
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/juju/errors"
)

// WalkFunc is called for every entry, parents before children. Depth is 0 for top-level entries.
type WalkFunc func(e *Entry, depth int) error

// Walk visits entries depth-first in manifest order
func Walk(entries []Entry, fn WalkFunc) error {
	return walk(entries, 0, fn)
}

func walk(entries []Entry, depth int, fn WalkFunc) error {
	for i := range entries {
		if err := fn(&entries[i], depth); err != nil {
			return err
		}
		if len(entries[i].Children) != 0 {
			if err := walk(entries[i].Children, depth+1, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Count returns the number of plain files and directories in the tree
func Count(entries []Entry) (files int, dirs int) {
	_ = Walk(entries, func(e *Entry, _ int) error {
		switch {
		case e.IsDir():
			dirs++
		case !e.IsVolume():
			files++
		}
		return nil
	})
	return files, dirs
}

// Label returns the volume label of the manifest, or "" if it has none
func Label(entries []Entry) string {
	if len(entries) != 0 && entries[0].IsVolume() {
		return entries[0].Name
	}
	return ""
}

// Rebase returns a copy of the tree with prefix stripped from every Path and the result made
// relative with forward slashes. Content buffers are shared with the source tree, so the source
// must not be mutated afterwards.
func Rebase(entries []Entry, prefix string) []Entry {
	prefix = strings.TrimSuffix(strings.ReplaceAll(prefix, "\\", "/"), "/")

	result := make([]Entry, 0, len(entries))
	for _, e := range entries {
		p := strings.ReplaceAll(e.Path, "\\", "/")
		if prefix != "" && prefix != "." {
			p = strings.TrimPrefix(p, prefix)
		}
		e.Path = strings.TrimPrefix(p, "/")
		if e.Children != nil {
			e.Children = Rebase(e.Children, prefix)
		}
		result = append(result, e)
	}
	return result
}

// Find resolves a slash separated path inside the tree. For a file it returns the file entry;
// for a directory (or "" for the root) it returns nil and the directory listing with directories
// first, both groups sorted by name. If the path does not exist, the error is os.ErrNotExist.
func Find(entries []Entry, pathDirOrFile string) (*Entry, []Entry, error) {
	pathItem := strings.ReplaceAll(strings.TrimSpace(pathDirOrFile), "\\", "/")
	pathItem = strings.Trim(pathItem, "/")

	currentLevel := entries

	if pathItem != "" {
		parts := strings.Split(pathItem, "/")
		for i, part := range parts {
			found := false
			for j := range currentLevel {
				if currentLevel[j].Name != part || currentLevel[j].IsVolume() {
					continue
				}
				if !currentLevel[j].IsDir() {
					if i != len(parts)-1 {
						break
					}
					return &currentLevel[j], make([]Entry, 0), nil
				}
				currentLevel = currentLevel[j].Children
				found = true
				break
			}
			if !found {
				return nil, nil, errors.Annotate(os.ErrNotExist, pathDirOrFile)
			}
		}
	}

	inDirs := make([]Entry, 0)
	inFiles := make([]Entry, 0)

	for _, v := range currentLevel {
		switch {
		case v.IsVolume():
		case v.IsDir():
			inDirs = append(inDirs, v)
		default:
			inFiles = append(inFiles, v)
		}
	}

	sort.Slice(inDirs, func(i, j int) bool { return inDirs[i].Name < inDirs[j].Name })
	sort.Slice(inFiles, func(i, j int) bool { return inFiles[i].Name < inFiles[j].Name })

	return nil, append(inDirs, inFiles...), nil
}

// Listing prints an indented directory listing of the tree. Names are passed through display,
// which lets the caller transliterate names read in a legacy encoding.
func Listing(out io.Writer, entries []Entry, display func(e Entry) string) error {
	if display == nil {
		display = func(e Entry) string { return e.Name }
	}
	if label := Label(entries); label != "" {
		if _, err := fmt.Fprintf(out, " Volume label is %s\n\n", label); err != nil {
			return errors.Trace(err)
		}
	}

	err := Walk(entries, func(e *Entry, depth int) error {
		if e.IsVolume() {
			return nil
		}
		indent := strings.Repeat("  ", depth)
		var err error
		if e.IsDir() {
			_, err = fmt.Fprintf(out, "%s%-24s %10s  %s  %s\n", indent, display(*e)+"/", "<DIR>",
				e.ModTime.Format("2006-01-02 15:04:05"), e.Attr)
		} else {
			_, err = fmt.Fprintf(out, "%s%-24s %10s  %s  %s\n", indent, display(*e),
				humanize.Bytes(uint64(e.Size)), e.ModTime.Format("2006-01-02 15:04:05"), e.Attr)
		}
		return errors.Trace(err)
	})
	if err != nil {
		return err
	}

	files, dirs := Count(entries)
	_, err = fmt.Fprintf(out, "\n%d file(s), %d dir(s), %s\n", files, dirs, humanize.Bytes(uint64(TotalSize(entries))))
	return errors.Trace(err)
}

// TotalSize sums the sizes of every plain file in the tree
func TotalSize(entries []Entry) int64 {
	var total int64
	_ = Walk(entries, func(e *Entry, _ int) error {
		if !e.IsDir() && !e.IsVolume() {
			total += e.Size
		}
		return nil
	})
	return total
}

// Base returns the last element of a manifest path, whichever separator it uses
func Base(p string) string {
	return path.Base(strings.ReplaceAll(p, "\\", "/"))
}
