// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package sharepoint

import (
	"context"
	"errors"
	"fmt"
)

// FieldType mirrors the remote FieldTypeKind enumeration.
type FieldType int

const (
	FieldInvalid     FieldType = 0
	FieldInteger     FieldType = 1
	FieldText        FieldType = 2
	FieldNote        FieldType = 3
	FieldDateTime    FieldType = 4
	FieldCounter     FieldType = 5
	FieldChoice      FieldType = 6
	FieldLookup      FieldType = 7
	FieldBoolean     FieldType = 8
	FieldNumber      FieldType = 9
	FieldCurrency    FieldType = 10
	FieldURL         FieldType = 11
	FieldComputed    FieldType = 12
	FieldThreading   FieldType = 13
	FieldGUID        FieldType = 14
	FieldMultiChoice FieldType = 15
	FieldGridChoice  FieldType = 16
	FieldCalculated  FieldType = 17
	FieldFile        FieldType = 18
	FieldAttachments FieldType = 19
	FieldUser        FieldType = 20
)

var ErrEmptyListID = errors.New("list ID is required")

// List is the subset of list metadata needed to target writes.
type List struct {
	Title        string `json:"Title"`
	ParentWebURL string `json:"ParentWebUrl"`
}

// Field is one field definition as returned by the fields endpoint.
type Field struct {
	InternalName  string    `json:"InternalName"`
	Title         string    `json:"Title"`
	Required      bool      `json:"Required"`
	TypeAsString  string    `json:"TypeAsString"`
	FieldTypeKind FieldType `json:"FieldTypeKind"`
	ReadOnlyField bool      `json:"ReadOnlyField"`
	Hidden        bool      `json:"Hidden"`
}

// GetList fetches the title and parent web URL of a list.
func (c *Client) GetList(ctx context.Context, listID string) (*List, error) {
	if listID == "" {
		return nil, ErrEmptyListID
	}

	var list List
	path := listPath(listID) + "?$select=Title,ParentWebUrl"
	if err := c.getJSON(ctx, path, &list); err != nil {
		return nil, fmt.Errorf("get list %s: %w", listID, err)
	}
	return &list, nil
}

// GetFields fetches every field definition of a list in server order.
func (c *Client) GetFields(ctx context.Context, listID string) ([]Field, error) {
	if listID == "" {
		return nil, ErrEmptyListID
	}

	var payload struct {
		Value []Field `json:"value"`
	}
	if err := c.getJSON(ctx, listPath(listID)+"/fields", &payload); err != nil {
		return nil, fmt.Errorf("get fields of list %s: %w", listID, err)
	}
	return payload.Value, nil
}
