// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package source

import (
	"strings"

	"github.com/netSkope/list-import-tool/internal/importer"
)

// Column binds a CSV column to a writable list field.
type Column struct {
	Index  int
	Header string
	Field  importer.FieldDescriptor
}

// Mapping is the outcome of matching a header row against list fields.
type Mapping struct {
	Columns         []Column
	Unmapped        []string // headers that match no writable field
	MissingRequired []string // internal names of required fields absent from the header
}

// Data is a parsed CSV input.
type Data struct {
	Mapping Mapping
	Rows    []importer.Row
}

// MissingRequiredError reports required fields with no CSV column.
type MissingRequiredError struct {
	Fields []string
}

func (e *MissingRequiredError) Error() string {
	return "required fields missing from CSV header: " + strings.Join(e.Fields, ", ")
}
