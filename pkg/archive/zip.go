package archive

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/juju/errors"
	"github.com/klauspost/compress/zip"
	"github.com/sirupsen/logrus"

	"github.com/kirsrus/diskimage/pkg/manifest"
)

const (
	zipFlagEncrypted = 0x1
	zipFlagUTF8      = 0x800
)

type zipReader struct {
	catalog
	log   *logrus.Entry
	files []*zip.File
}

func newZIPReader(name string, data []byte, opts Options, log *logrus.Entry) (*zipReader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Annotatef(ErrNotArchive, "%s: %v", name, err)
	}

	defaultEncoding := opts.NameEncoding
	if defaultEncoding == "" {
		defaultEncoding = manifest.EncodingCP437
	}

	r := &zipReader{
		catalog: catalog{name: name},
		log:     log,
	}
	for _, f := range zr.File {
		e := Entry{
			Name:           f.Name,
			NameEncoding:   defaultEncoding,
			Size:           int64(f.UncompressedSize64),
			CompressedSize: int64(f.CompressedSize64),
			Method:         int(f.Method),
			CRC:            f.CRC32,
			Encrypted:      f.Flags&zipFlagEncrypted != 0,
			Time:           dosTime(f.ModifiedDate, f.ModifiedTime),
			IsDir:          strings.HasSuffix(f.Name, "/") || f.Mode().IsDir(),
		}
		if f.Flags&zipFlagUTF8 != 0 {
			e.NameEncoding = manifest.EncodingUTF8
		}
		if e.IsDir {
			e.Size = 0
		}
		r.add(e)
		r.files = append(r.files, f)
	}
	return r, nil
}

func (r *zipReader) Kind() Kind { return KindZIP }

func (r *zipReader) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	i, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	e := r.entries[i]
	if e.Encrypted {
		return nil, errors.Annotatef(ErrEncrypted, "%s: %s", r.name, name)
	}

	rc, err := r.files[i].Open()
	if err != nil {
		if errors.Cause(err) == zip.ErrAlgorithm {
			return nil, errors.Annotatef(ErrUnsupportedMethod, "%s: %s (%s)", r.name, name, MethodLabel(KindZIP, e.Method, false))
		}
		return nil, errors.Annotatef(err, "%s: %s", r.name, name)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		if errors.Cause(err) == zip.ErrChecksum {
			r.log.Debugf("%s: CRC mismatch", name)
			return data, errors.Annotatef(ErrChecksum, "%s: %s", r.name, name)
		}
		return nil, errors.Annotatef(err, "%s: %s", r.name, name)
	}
	return data, nil
}
