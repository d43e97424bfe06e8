// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package importer

import (
	"context"
)

// ListInfo identifies the target list and the base path used to build the
// write endpoint.
type ListInfo struct {
	Title        string
	ParentWebURL string
}

// FolderPath returns the server-relative path items are created in:
// {ParentWebURL}/Lists/{Title}, with a root web ("/") contributing nothing.
func (l ListInfo) FolderPath() string {
	parent := l.ParentWebURL
	if parent == "/" {
		parent = ""
	}
	return parent + "/Lists/" + l.Title
}

// FieldKind classifies a field definition for the writable-field filter.
type FieldKind int

const (
	KindOther FieldKind = iota
	KindAttachments
	KindComputed
)

// FieldDefinition is a raw field as listed by the store.
type FieldDefinition struct {
	InternalName string
	Title        string
	Required     bool
	TypeName     string
	Kind         FieldKind
	ReadOnly     bool
	Hidden       bool
}

// Writable reports whether rows may carry a value for the field.
func (f FieldDefinition) Writable() bool {
	return !f.ReadOnly &&
		!f.Hidden &&
		f.Kind != KindAttachments &&
		f.Kind != KindComputed
}

// FieldDescriptor describes one writable field.
type FieldDescriptor struct {
	InternalName string
	DisplayName  string
	Required     bool
	TypeName     string
}

// Row maps field internal names to values. Values are serialized to strings on write.
type Row map[string]any

// FormValue is a single serialized field assignment.
type FormValue struct {
	FieldName  string
	FieldValue string
}

// FieldWriteResult is the outcome of writing one field of one row. Entries
// synthesized from row-level or run-level failures carry only ErrorMessage
// and HasException.
type FieldWriteResult struct {
	FieldName    string
	FieldValue   string
	ErrorMessage string
	HasException bool
}

// Failed reports whether the entry describes an error.
func (r FieldWriteResult) Failed() bool {
	return r.HasException || r.ErrorMessage != ""
}

func errorEntry(err error) FieldWriteResult {
	return FieldWriteResult{ErrorMessage: err.Error(), HasException: true}
}

// Store is the remote list store.
type Store interface {
	List(ctx context.Context, listID string) (*ListInfo, error)
	Fields(ctx context.Context, listID string) ([]FieldDefinition, error)
	NewBatch() Batch
}

// Batch queues item writes and submits them as one network request.
type Batch interface {
	AddItem(listID, folderPath string, values []FormValue) PendingWrite
	Execute(ctx context.Context) error
}

// PendingWrite resolves once its batch has been executed.
type PendingWrite interface {
	Wait(ctx context.Context) ([]FieldWriteResult, error)
}
