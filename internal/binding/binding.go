// Copyright (c) 2024 Netskope, Inc. All rights reserved.

// Package binding keeps a list's title and writable fields in sync with the
// list currently selected by the caller.
package binding

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/netSkope/list-import-tool/internal/importer"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// State is the load state of a ListBinding.
type State int

const (
	// Unloaded is the initial state: nothing has been loaded yet.
	Unloaded State = iota
	// Loaded means title and fields reflect a successful load.
	Loaded
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "UNLOADED"
	case Loaded:
		return "LOADED"
	default:
		return "UNKNOWN"
	}
}

// ErrSuperseded is returned by SetListID when a later call replaced the list
// before this load finished. Its result is discarded.
var ErrSuperseded = errors.New("list load superseded by a newer list ID")

// SchemaReader is the subset of importer.Schema the binding needs.
type SchemaReader interface {
	FetchListInfo(ctx context.Context, listID string) (*importer.ListInfo, error)
	FetchFields(ctx context.Context, listID string) ([]importer.FieldDescriptor, error)
}

// Transition describes the outcome of one load.
//
// On success To is Loaded and Title/Fields carry the new values. On failure
// Err is set, From == To, and the previously exposed title and fields are
// kept unchanged.
type Transition struct {
	From      State
	To        State
	ListID    string
	Title     string
	Fields    []importer.FieldDescriptor
	Err       error
	Timestamp time.Time
}

// ChangeHandler is called after every load, successful or not.
type ChangeHandler func(Transition)

// ListBinding exposes the title and fields of the selected list.
type ListBinding struct {
	reader SchemaReader
	logger *zap.Logger

	mu         sync.RWMutex
	state      State
	listID     string
	title      string
	fields     []importer.FieldDescriptor
	generation uint64
	handlers   []ChangeHandler
}

// New creates a binding in the Unloaded state.
func New(reader SchemaReader, logger *zap.Logger) *ListBinding {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListBinding{
		reader: reader,
		logger: logger,
		state:  Unloaded,
	}
}

// OnChange registers a handler for load outcomes.
func (b *ListBinding) OnChange(h ChangeHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// SetListID selects a list and loads its title and fields. The first call
// plays the role of the initial load; every later call reloads. Title and
// fields are fetched concurrently.
func (b *ListBinding) SetListID(ctx context.Context, listID string) error {
	b.mu.Lock()
	b.generation++
	gen := b.generation
	b.listID = listID
	b.mu.Unlock()

	var (
		info   *importer.ListInfo
		fields []importer.FieldDescriptor
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		info, err = b.reader.FetchListInfo(gctx, listID)
		return err
	})
	g.Go(func() error {
		var err error
		fields, err = b.reader.FetchFields(gctx, listID)
		return err
	})
	err := g.Wait()
	if err == nil && info == nil {
		err = importer.ErrListUnavailable
	}

	b.mu.Lock()
	if gen != b.generation {
		b.mu.Unlock()
		return ErrSuperseded
	}

	t := Transition{
		From:      b.state,
		ListID:    listID,
		Timestamp: time.Now(),
	}
	if err != nil {
		t.To = b.state
		t.Title = b.title
		t.Fields = b.fields
		t.Err = err
	} else {
		b.state = Loaded
		b.title = info.Title
		b.fields = fields
		t.To = Loaded
		t.Title = info.Title
		t.Fields = fields
	}
	handlers := append([]ChangeHandler(nil), b.handlers...)
	b.mu.Unlock()

	if err != nil {
		b.logger.Error("Failed to load list schema",
			zap.String("list_id", listID),
			zap.String("state", t.From.String()),
			zap.Error(err))
	} else {
		b.logger.Info("List schema loaded",
			zap.String("list_id", listID),
			zap.String("title", t.Title),
			zap.Int("fields", len(fields)))
	}

	for _, h := range handlers {
		h(t)
	}
	return err
}

// State returns the current load state.
func (b *ListBinding) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// ListID returns the most recently selected list ID.
func (b *ListBinding) ListID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.listID
}

// Title returns the title from the last successful load.
func (b *ListBinding) Title() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.title
}

// Fields returns a copy of the fields from the last successful load.
func (b *ListBinding) Fields() []importer.FieldDescriptor {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]importer.FieldDescriptor(nil), b.fields...)
}
