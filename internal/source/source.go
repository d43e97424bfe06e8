// Copyright (c) 2024 Netskope, Inc. All rights reserved.

// Package source reads list rows from CSV files stored locally or in S3.
package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/netSkope/list-import-tool/internal/config"
	"github.com/netSkope/list-import-tool/internal/importer"
	"github.com/netSkope/list-import-tool/internal/s3"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
)

var (
	ErrEmptyInput   = errors.New("CSV input has no header row")
	ErrBadDelimiter = errors.New("CSV delimiter must be a single character")
)

// Opener opens an object stored in S3.
type Opener interface {
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// Options controls CSV decoding.
type Options struct {
	Delimiter string
	Encoding  string
}

// Reader turns CSV input into importer rows for a given set of fields.
type Reader struct {
	opts   Options
	s3     Opener
	logger *zap.Logger
}

// NewReader creates a CSV reader. s3 may be nil when only local paths are used.
func NewReader(opts Options, s3 Opener, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{opts: opts, s3: s3, logger: logger}
}

// Open opens a local path or an s3://bucket/key URI.
func (r *Reader) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if !config.IsS3URI(path) {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open file: %w", err)
		}
		return f, nil
	}
	if r.s3 == nil {
		return nil, fmt.Errorf("no S3 client configured for %s", path)
	}
	bucket, key, err := s3.ParseURI(path)
	if err != nil {
		return nil, err
	}
	return r.s3.Open(ctx, bucket, key)
}

// Load opens path and parses it against fields.
func (r *Reader) Load(ctx context.Context, path string, fields []importer.FieldDescriptor) (*Data, error) {
	rc, err := r.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := r.Parse(ctx, rc, fields)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return data, nil
}

// Parse reads a header row plus records. Columns that match no writable
// field are dropped; a required field without a column fails the parse
// before any row is returned. Empty cells are left out of the row.
func (r *Reader) Parse(ctx context.Context, in io.Reader, fields []importer.FieldDescriptor) (*Data, error) {
	decoded, err := decode(in, r.opts.Encoding)
	if err != nil {
		return nil, err
	}

	delim := r.opts.Delimiter
	if delim == "" {
		delim = ","
	}
	if utf8.RuneCountInString(delim) != 1 {
		return nil, ErrBadDelimiter
	}

	cr := csv.NewReader(decoded)
	cr.Comma, _ = utf8.DecodeRuneInString(delim)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmptyInput
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	mapping := MapHeader(header, fields)
	for _, h := range mapping.Unmapped {
		r.logger.Warn("Unmapped CSV column", zap.String("header", h))
	}
	if len(mapping.MissingRequired) > 0 {
		return &Data{Mapping: mapping}, &MissingRequiredError{Fields: mapping.MissingRequired}
	}

	data := &Data{Mapping: mapping, Rows: []importer.Row{}}
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		row := importer.Row{}
		for _, col := range mapping.Columns {
			if col.Index >= len(record) {
				continue
			}
			if v := strings.TrimSpace(record[col.Index]); v != "" {
				row[col.Field.InternalName] = v
			}
		}
		if len(row) == 0 {
			continue
		}
		data.Rows = append(data.Rows, row)
	}

	r.logger.Info("CSV parsed",
		zap.Int("rows", len(data.Rows)),
		zap.Int("columns", len(mapping.Columns)),
		zap.Int("unmapped", len(mapping.Unmapped)))
	return data, nil
}

// MapHeader matches each header to a field by internal name first, then by
// display name, both case-insensitive. A field is bound to at most one column.
func MapHeader(header []string, fields []importer.FieldDescriptor) Mapping {
	byInternal := make(map[string]int, len(fields))
	byDisplay := make(map[string]int, len(fields))
	for i, f := range fields {
		byInternal[strings.ToLower(f.InternalName)] = i
		if _, dup := byDisplay[strings.ToLower(f.DisplayName)]; !dup {
			byDisplay[strings.ToLower(f.DisplayName)] = i
		}
	}

	var m Mapping
	bound := make(map[int]bool, len(fields))
	for col, raw := range header {
		h := cleanHeader(raw, col)
		key := strings.ToLower(h)

		idx, ok := byInternal[key]
		if !ok || bound[idx] {
			idx, ok = byDisplay[key]
		}
		if !ok || bound[idx] {
			if h != "" {
				m.Unmapped = append(m.Unmapped, h)
			}
			continue
		}
		bound[idx] = true
		m.Columns = append(m.Columns, Column{Index: col, Header: h, Field: fields[idx]})
	}

	for i, f := range fields {
		if f.Required && !bound[i] {
			m.MissingRequired = append(m.MissingRequired, f.InternalName)
		}
	}
	return m
}

func cleanHeader(h string, col int) string {
	if col == 0 {
		h = strings.TrimPrefix(h, "\ufeff")
	}
	return strings.TrimSpace(h)
}

func decode(in io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(encoding) {
	case "", "utf-8", "utf8":
		return in, nil
	case "windows-1252":
		return charmap.Windows1252.NewDecoder().Reader(in), nil
	case "windows-1251":
		return charmap.Windows1251.NewDecoder().Reader(in), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}
