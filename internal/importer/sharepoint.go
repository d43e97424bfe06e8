// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package importer

import (
	"context"

	"github.com/netSkope/list-import-tool/internal/sharepoint"
)

// sharePointStore adapts sharepoint.Client to the Store interface.
type sharePointStore struct {
	client *sharepoint.Client
}

// NewSharePointStore creates a Store backed by a SharePoint client.
// A nil client yields a nil Store (no session).
func NewSharePointStore(client *sharepoint.Client) Store {
	if client == nil {
		return nil
	}
	return &sharePointStore{client: client}
}

func (s *sharePointStore) List(ctx context.Context, listID string) (*ListInfo, error) {
	list, err := s.client.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}
	return &ListInfo{Title: list.Title, ParentWebURL: list.ParentWebURL}, nil
}

func (s *sharePointStore) Fields(ctx context.Context, listID string) ([]FieldDefinition, error) {
	fields, err := s.client.GetFields(ctx, listID)
	if err != nil {
		return nil, err
	}

	defs := make([]FieldDefinition, 0, len(fields))
	for _, f := range fields {
		kind := KindOther
		switch f.FieldTypeKind {
		case sharepoint.FieldAttachments:
			kind = KindAttachments
		case sharepoint.FieldComputed:
			kind = KindComputed
		}
		defs = append(defs, FieldDefinition{
			InternalName: f.InternalName,
			Title:        f.Title,
			Required:     f.Required,
			TypeName:     f.TypeAsString,
			Kind:         kind,
			ReadOnly:     f.ReadOnlyField,
			Hidden:       f.Hidden,
		})
	}
	return defs, nil
}

func (s *sharePointStore) NewBatch() Batch {
	return &sharePointBatch{batch: s.client.NewBatch()}
}

type sharePointBatch struct {
	batch *sharepoint.Batch
}

func (b *sharePointBatch) AddItem(listID, folderPath string, values []FormValue) PendingWrite {
	formValues := make([]sharepoint.FormValue, len(values))
	for i, v := range values {
		formValues[i] = sharepoint.FormValue{FieldName: v.FieldName, FieldValue: v.FieldValue}
	}
	return &sharePointPending{pending: b.batch.AddValidateUpdateItemUsingPath(listID, folderPath, formValues)}
}

func (b *sharePointBatch) Execute(ctx context.Context) error {
	return b.batch.Execute(ctx)
}

type sharePointPending struct {
	pending *sharepoint.Pending
}

func (p *sharePointPending) Wait(ctx context.Context) ([]FieldWriteResult, error) {
	fields, err := p.pending.Wait(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]FieldWriteResult, len(fields))
	for i, f := range fields {
		msg := ""
		if f.ErrorMessage != nil {
			msg = *f.ErrorMessage
		}
		results[i] = FieldWriteResult{
			FieldName:    f.FieldName,
			FieldValue:   f.FieldValue,
			ErrorMessage: msg,
			HasException: f.HasException,
		}
	}
	return results, nil
}
