// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package importer

import (
	"context"
)

// Schema reads list metadata and writable field definitions.
//
// A nil store stands for "no active session": like an empty list ID it is a
// silent precondition failure, and both methods return nil without an error.
type Schema struct {
	store Store
}

// NewSchema creates a schema reader over store (which may be nil).
func NewSchema(store Store) *Schema {
	return &Schema{store: store}
}

// FetchListInfo returns the title and parent web URL of the list.
func (s *Schema) FetchListInfo(ctx context.Context, listID string) (*ListInfo, error) {
	if s.store == nil || listID == "" {
		return nil, nil
	}
	return s.store.List(ctx, listID)
}

// FetchFields returns the writable fields of the list in store order.
func (s *Schema) FetchFields(ctx context.Context, listID string) ([]FieldDescriptor, error) {
	if s.store == nil || listID == "" {
		return nil, nil
	}

	defs, err := s.store.Fields(ctx, listID)
	if err != nil {
		return nil, err
	}

	fields := make([]FieldDescriptor, 0, len(defs))
	for _, def := range defs {
		if !def.Writable() {
			continue
		}
		fields = append(fields, FieldDescriptor{
			InternalName: def.InternalName,
			DisplayName:  def.Title,
			Required:     def.Required,
			TypeName:     def.TypeName,
		})
	}
	return fields, nil
}
