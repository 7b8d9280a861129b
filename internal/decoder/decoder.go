// Package decoder reads binary trace logs back into records.
package decoder

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/jittakal/gctrace/internal/errors"
	"github.com/jittakal/gctrace/internal/validator"
	"github.com/jittakal/gctrace/pkg/catalog"
	"github.com/jittakal/gctrace/pkg/event"
)

// Reader decodes records from one trace file.
type Reader struct {
	r       *bufio.Reader
	source  string
	catalog *catalog.Catalog
	header  event.Header
	order   binary.ByteOrder
	ptrSize int
	offset  int64

	continued bool
}

// NewReader reads and validates the header record of r. source names the
// stream in errors and records.
func NewReader(r io.Reader, source string, cat *catalog.Catalog) (*Reader, error) {
	dr := newReader(r, source, cat)
	if err := dr.readHeader(); err != nil {
		return nil, err
	}
	return dr, nil
}

// NewContinuationReader reads a rotated trace file. Only the first file of a
// trace starts with a header record, so a file that does not is decoded with
// h, the header of the file before it. A file that does start with a header
// is read as by NewReader.
func NewContinuationReader(r io.Reader, source string, cat *catalog.Catalog, h event.Header) (*Reader, error) {
	dr := newReader(r, source, cat)

	first, err := dr.r.Peek(1)
	if err == nil && event.Tag(first[0]).Kind() == event.KindHeader {
		if err := dr.readHeader(); err != nil {
			return nil, err
		}
		return dr, nil
	}
	if err != nil && err != io.EOF {
		return nil, dr.headerError(err)
	}

	if err := validator.NewHeaderValidator().Validate(h); err != nil {
		return nil, dr.headerError(fmt.Errorf("%w: %v", apperrors.ErrBadHeader, err))
	}
	dr.setHeader(h)
	dr.continued = true
	return dr, nil
}

func newReader(r io.Reader, source string, cat *catalog.Catalog) *Reader {
	if cat == nil {
		cat = catalog.Default()
	}
	return &Reader{
		r:       bufio.NewReaderSize(r, 64*1024),
		source:  source,
		catalog: cat,
	}
}

func (r *Reader) readHeader() error {
	var raw [1 + event.HeaderPayloadSize]byte
	if _, err := io.ReadFull(r.r, raw[:]); err != nil {
		return r.headerError(fmt.Errorf("%w: %v", apperrors.ErrBadHeader, err))
	}
	if tag := event.Tag(raw[0]); tag.Kind() != event.KindHeader || tag.Background() {
		return r.headerError(fmt.Errorf("%w: first record has tag %s", apperrors.ErrBadHeader, tag))
	}

	h, err := event.ParseHeader(raw[1:])
	if err != nil {
		return r.headerError(fmt.Errorf("%w: %v", apperrors.ErrBadHeader, err))
	}
	if err := validator.NewHeaderValidator().Validate(h); err != nil {
		return r.headerError(fmt.Errorf("%w: %v", apperrors.ErrBadHeader, err))
	}

	r.setHeader(h)
	r.offset = int64(len(raw))
	return nil
}

func (r *Reader) setHeader(h event.Header) {
	r.header = h
	r.order = h.ByteOrder()
	r.ptrSize = int(h.PointerSize)
}

func (r *Reader) headerError(err error) error {
	return &apperrors.DecodeError{Source: r.source, Offset: 0, Kind: event.KindHeader, Err: err}
}

// Header returns the file header.
func (r *Reader) Header() event.Header {
	return r.header
}

// Continued reports whether the file had no header of its own.
func (r *Reader) Continued() bool {
	return r.continued
}

// Offset returns the file offset of the next record.
func (r *Reader) Offset() int64 {
	return r.offset
}

// Next returns the next record, or io.EOF at the end of the file.
func (r *Reader) Next() (event.Record, error) {
	start := r.offset

	b, err := r.r.ReadByte()
	if err == io.EOF {
		return event.Record{}, io.EOF
	}
	if err != nil {
		return event.Record{}, &apperrors.DecodeError{Source: r.source, Offset: start, Err: err}
	}
	tag := event.Tag(b)

	desc, ok := r.catalog.Lookup(tag.Kind())
	if !ok {
		return event.Record{}, &apperrors.DecodeError{
			Source: r.source, Offset: start, Kind: tag.Kind(), Err: apperrors.ErrUnknownKind,
		}
	}

	payload := make([]byte, desc.PayloadSizeFor(r.ptrSize))
	if _, err := io.ReadFull(r.r, payload); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			err = apperrors.ErrTruncated
		}
		return event.Record{}, &apperrors.DecodeError{
			Source: r.source, Offset: start, Kind: tag.Kind(), Err: err,
		}
	}

	fields, err := desc.Decode(payload, r.order, r.ptrSize)
	if err != nil {
		return event.Record{}, &apperrors.DecodeError{
			Source: r.source, Offset: start, Kind: tag.Kind(), Err: err,
		}
	}

	r.offset += int64(1 + len(payload))
	return event.Record{
		Source:  r.source,
		Offset:  start,
		Tag:     tag,
		Name:    desc.Name,
		Fields:  fields,
		Payload: payload,
	}, nil
}

// ReadAll decodes the remaining records.
func (r *Reader) ReadAll() ([]event.Record, error) {
	var records []event.Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}

// ReadFile decodes every record of the file at path. On a decode error the
// records before it are returned along with the error.
func ReadFile(path string, cat *catalog.Catalog) (event.Header, []event.Record, error) {
	return readFile(path, func(f io.Reader) (*Reader, error) {
		return NewReader(f, path, cat)
	})
}

// ReadRotatedFile is ReadFile for a file that may continue a trace whose
// header was h. See NewContinuationReader.
func ReadRotatedFile(path string, cat *catalog.Catalog, h event.Header) (event.Header, []event.Record, error) {
	return readFile(path, func(f io.Reader) (*Reader, error) {
		return NewContinuationReader(f, path, cat, h)
	})
}

func readFile(path string, open func(io.Reader) (*Reader, error)) (event.Header, []event.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return event.Header{}, nil, err
	}
	defer f.Close()

	r, err := open(f)
	if err != nil {
		return event.Header{}, nil, err
	}
	records, err := r.ReadAll()
	return r.Header(), records, err
}

// Files expands a trace path into the files to read. A path naming an
// existing file is returned as is; otherwise it is treated as the prefix of
// rotated files, which are returned in rotation order.
func Files(path string) ([]string, error) {
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return []string{path}, nil
	}

	matches, err := filepath.Glob(globEscape(path) + ".*")
	if err != nil {
		return nil, err
	}

	type indexed struct {
		name  string
		index int
	}
	var files []indexed
	for _, m := range matches {
		idx, err := strconv.Atoi(strings.TrimPrefix(m, path+"."))
		if err != nil || idx < 0 {
			continue
		}
		files = append(files, indexed{m, idx})
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no trace files found for %s", path)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].index < files[j].index })
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.name
	}
	return out, nil
}

func globEscape(s string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`)
	return r.Replace(s)
}
