// Package disk is the boundary to disk image assembly. Sector level image building lives outside
// this module; JSONWriter records what would go on the disk.
package disk

import (
	"context"
	"encoding/json"
	"io"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"github.com/kirsrus/diskimage/pkg/manifest"
)

// Params of a disk build
type Params struct {
	// TargetKB is the requested disk size in kilobytes, 0 picks the smallest that fits
	TargetKB int `json:"targetKB,omitempty"`
	// Label is the volume label, "" for none
	Label string `json:"label,omitempty"`
	// Overrides holds per-sector replacements, keyed by "cylinder:head:sector"
	Overrides map[string][]byte `json:"-"`
}

// Builder turns a finished manifest into a disk
type Builder interface {
	Build(ctx context.Context, entries []manifest.Entry, params Params) error
}

// Descriptor is the JSON form of a built manifest
type Descriptor struct {
	Params
	Files     int              `json:"fileCount"`
	Dirs      int              `json:"dirCount"`
	TotalSize int64            `json:"totalSize"`
	Entries   []manifest.Entry `json:"files"`
}

// NewDescriptor summarizes entries. An empty params.Label is taken from the manifest.
func NewDescriptor(entries []manifest.Entry, params Params) Descriptor {
	if params.Label == "" {
		params.Label = manifest.Label(entries)
	}
	d := Descriptor{
		Params:    params,
		TotalSize: manifest.TotalSize(entries),
		Entries:   entries,
	}
	d.Files, d.Dirs = manifest.Count(entries)
	return d
}

// JSONWriter is a Builder writing the manifest as an indented JSON Descriptor. File contents are
// not written.
type JSONWriter struct {
	log *logrus.Entry
	out io.Writer
}

// NewJSONWriter creates a JSONWriter writing to out
func NewJSONWriter(out io.Writer, log *logrus.Logger) *JSONWriter {
	if log == nil {
		log = logrus.New()
		log.Out = io.Discard
	}
	return &JSONWriter{
		log: log.WithField("scope", "disk"),
		out: out,
	}
}

// Build validates the manifest and writes its descriptor
func (w *JSONWriter) Build(ctx context.Context, entries []manifest.Entry, params Params) error {
	if err := ctx.Err(); err != nil {
		return errors.Trace(err)
	}
	if err := manifest.Validate(entries); err != nil {
		return errors.Trace(err)
	}
	if len(params.Overrides) != 0 {
		w.log.Warnf("%d sector override(s) ignored by the JSON descriptor", len(params.Overrides))
	}

	d := NewDescriptor(entries, params)

	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return errors.Trace(err)
	}
	w.log.Debugf("descriptor written: %d file(s), %d dir(s)", d.Files, d.Dirs)
	return nil
}

// ReadJSON reads a descriptor written by JSONWriter. Entries come back without contents.
func ReadJSON(r io.Reader) (*Descriptor, error) {
	var d Descriptor
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, errors.Annotate(err, "disk descriptor")
	}
	return &d, nil
}
