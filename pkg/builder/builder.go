// Package builder turns host directories, file lists and archives into manifests
package builder

import (
	"io"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/kirsrus/diskimage/pkg/manifest"
)

const (
	// DefaultMaxFiles is the file budget of one build when none is given
	DefaultMaxFiles = 512
	// DefaultFetchers bounds concurrent archive entry decompression
	DefaultFetchers = 4

	// LabelNone asks for no volume label
	LabelNone = "none"
	// LabelDefault asks for CanonicalLabel
	LabelDefault = "default"
	// CanonicalLabel is the label used for LabelDefault
	CanonicalLabel = "PCJS"
)

var reLabelSuffix = regexp.MustCompile(`^.*-([^0-9][^-]+)$`)

// labelTime stamps generated volume labels (1989-09-27 03:00:00 local), so rebuilding the same
// files produces the same disk
func labelTime() time.Time {
	return time.Date(1989, time.September, 27, 3, 0, 0, 0, time.Local)
}

// DefaultLabel derives a volume label from a directory name: "PCSIG-GAMES" becomes "GAMES",
// names without such a suffix are used as is
func DefaultLabel(dirName string) string {
	return reLabelSuffix.ReplaceAllString(dirName, "$1")
}

// resolveLabel maps the label option to the label to emit ("" for none)
func resolveLabel(label, fallback string) string {
	switch label {
	case "":
		return fallback
	case LabelNone:
		return ""
	case LabelDefault:
		return CanonicalLabel
	}
	return label
}

// WithLabel prepends the volume label entry the label option asks for (see Options.Label) to
// entries. Fallback is the label used when the option is empty.
func WithLabel(entries []manifest.Entry, volumePath, label, fallback string) []manifest.Entry {
	label = resolveLabel(label, fallback)
	if label == "" {
		return entries
	}
	return append([]manifest.Entry{manifest.NewVolume(volumePath, label, labelTime())}, entries...)
}

// Budget is the number of directory entries one top-level build may still visit. It is shared by
// every recursive call of that build and must not be shared between builds.
type Budget struct {
	initial   int
	remaining int
	warned    bool
}

// NewBudget creates a budget of limit entries (DefaultMaxFiles if limit <= 0)
func NewBudget(limit int) *Budget {
	if limit <= 0 {
		limit = DefaultMaxFiles
	}
	return &Budget{initial: limit, remaining: limit}
}

// Remaining returns the number of entries left
func (b *Budget) Remaining() int {
	return b.remaining
}

func (b *Budget) take() bool {
	if b.remaining <= 0 {
		return false
	}
	b.remaining--
	return true
}

// exhausted emits the limit diagnostic once per budget
func (b *Budget) exhausted(log *logrus.Entry) {
	if b.warned {
		return
	}
	b.warned = true
	log.Warnf("warning: %d file limit reached, use --maxfiles # to increase", b.initial)
}

// Builder builds manifests. It is not safe for concurrent use by several builds.
type Builder struct {
	log      *logrus.Entry
	fs       afero.Fs
	fetchers int
}

// New creates a builder reading host files through fs (nil means the OS filesystem) and reporting
// diagnostics through log (nil discards them)
func New(fs afero.Fs, log *logrus.Logger) *Builder {
	if log == nil {
		log = logrus.New()
		log.Out = io.Discard
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Builder{
		log:      log.WithField("scope", "builder"),
		fs:       fs,
		fetchers: DefaultFetchers,
	}
}

// SetFetchers sets how many archive entries may be decompressed at once
func (b *Builder) SetFetchers(n int) {
	if n < 1 {
		n = 1
	}
	b.fetchers = n
}
