package builder

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
	"github.com/spf13/afero"

	"github.com/kirsrus/diskimage/pkg/manifest"
	"github.com/kirsrus/diskimage/pkg/textnorm"
)

// archiveSuffixes are checked, in order, next to a directory; a directory with an archive of the
// same name is that archive's expanded copy
var archiveSuffixes = []string{".ZIP", ".zip", ".ARC", ".arc"}

// Options of FromDir and FromFiles
type Options struct {
	// Label is the volume label: "" derives one from the directory name (FromDir only),
	// LabelNone omits it, LabelDefault uses CanonicalLabel, anything else is used verbatim
	Label string
	// Normalize converts text files to CP437 with CR+LF line endings
	Normalize bool
	// Budget shared by the whole build; nil means NewBudget(DefaultMaxFiles)
	Budget *Budget
}

// FromDir builds a manifest of everything below dir
func (b *Builder) FromDir(dir string, opts Options) ([]manifest.Entry, error) {
	info, err := b.fs.Stat(dir)
	if err != nil {
		return nil, errors.Annotate(err, dir)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("%s is not a directory", dir)
	}

	dir = filepath.Clean(dir)
	label := DefaultLabel(filepath.Base(dir))

	budget := opts.Budget
	if budget == nil {
		budget = NewBudget(DefaultMaxFiles)
	}

	return WithLabel(b.readDir(dir, opts.Normalize, budget), dir, opts.Label, label), nil
}

// FromFiles builds a flat manifest of a comma separated list of files. A file given without a
// directory is taken from the directory of the last file that had one.
func (b *Builder) FromFiles(list string, opts Options) ([]manifest.Entry, error) {
	dir := "."
	paths := make([]string, 0)
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if d := filepath.Dir(item); d != "." {
			dir = d
		}
		paths = append(paths, filepath.Join(dir, filepath.Base(item)))
	}
	if len(paths) == 0 {
		return nil, errors.New("empty file list")
	}

	budget := opts.Budget
	if budget == nil {
		budget = NewBudget(DefaultMaxFiles)
	}

	return WithLabel(b.readList(paths, opts.Normalize, budget), dir, opts.Label, ""), nil
}

func (b *Builder) readDir(dir string, normalize bool, budget *Budget) []manifest.Entry {
	infos, err := afero.ReadDir(b.fs, dir)
	if err != nil {
		b.log.Warn(errors.Annotate(err, dir))
		return make([]manifest.Entry, 0)
	}
	paths := make([]string, 0, len(infos))
	for _, info := range infos {
		paths = append(paths, filepath.Join(dir, info.Name()))
	}
	return b.readList(paths, normalize, budget)
}

// readList reads the given host paths in order. Every path visited, hidden or skipped ones
// included, takes one unit of budget.
func (b *Builder) readList(paths []string, normalize bool, budget *Budget) []manifest.Entry {
	result := make([]manifest.Entry, 0, len(paths))

	i := 0
	for ; i < len(paths); i++ {
		if !budget.take() {
			break
		}

		p := paths[i]
		name := filepath.Base(p)
		if strings.HasPrefix(name, ".") {
			continue
		}

		info, err := b.fs.Stat(p)
		if err != nil {
			b.log.Warn(errors.Annotate(err, p))
			continue
		}

		if info.IsDir() {
			if archive := b.archiveBeside(p); archive != "" {
				b.log.Debugf("skipping directory %s, it matches archive %s", p, archive)
				continue
			}
			result = append(result, manifest.NewDir(p, name, info.ModTime(), b.readDir(p, normalize, budget)))
			continue
		}

		data, err := afero.ReadFile(b.fs, p)
		if err != nil {
			b.log.Warn(errors.Annotate(err, p))
			continue
		}
		if int64(len(data)) != info.Size() {
			b.log.Warnf("file data length (%d) does not match file size (%d)", len(data), info.Size())
		}
		if normalize && textnorm.IsTextFile(name) {
			data = b.normalize(name, data)
		}
		result = append(result, manifest.NewFile(p, name, 0, info.ModTime(), data))
	}

	if i < len(paths) {
		budget.exhausted(b.log)
	}
	return result
}

func (b *Builder) normalize(name string, data []byte) []byte {
	converted, ok := textnorm.ForDisk(data)
	if !ok {
		b.log.Warnf("non-ASCII data in %s (line endings unchanged)", name)
		return data
	}
	if !bytes.Equal(converted, data) {
		b.log.Infof("replaced line endings in %s (size changed from %d to %d bytes)", name, len(data), len(converted))
	}
	return converted
}

func (b *Builder) archiveBeside(dir string) string {
	for _, suffix := range archiveSuffixes {
		if exists, _ := afero.Exists(b.fs, dir+suffix); exists {
			return dir + suffix
		}
	}
	return ""
}
