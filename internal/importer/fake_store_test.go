// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package importer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// fakeStore records every batch submission. writeFn decides the outcome of
// each item; executeFn, when set, replaces the default batch submission.
type fakeStore struct {
	list      *ListInfo
	listErr   error
	fields    []FieldDefinition
	fieldsErr error

	writeFn   func(values []FormValue) ([]FieldWriteResult, error)
	executeFn func(ctx context.Context, batchNo int) error
	delay     time.Duration

	mu          sync.Mutex
	batchSizes  [][]FormValue
	folderPaths []string
	listCalls   int
	inFlight    int32
	overlapped  bool
	events      []string
}

func (s *fakeStore) List(ctx context.Context, listID string) (*ListInfo, error) {
	s.mu.Lock()
	s.listCalls++
	s.mu.Unlock()
	return s.list, s.listErr
}

func (s *fakeStore) Fields(ctx context.Context, listID string) ([]FieldDefinition, error) {
	return s.fields, s.fieldsErr
}

func (s *fakeStore) NewBatch() Batch {
	return &fakeBatch{store: s}
}

func (s *fakeStore) submissions() [][]FormValue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batchSizes
}

type fakeItem struct {
	values  []FormValue
	pending *fakePending
}

type fakeBatch struct {
	store *fakeStore
	items []fakeItem
}

func (b *fakeBatch) AddItem(listID, folderPath string, values []FormValue) PendingWrite {
	p := &fakePending{done: make(chan struct{})}
	b.items = append(b.items, fakeItem{values: values, pending: p})
	b.store.mu.Lock()
	b.store.folderPaths = append(b.store.folderPaths, folderPath)
	b.store.mu.Unlock()
	return p
}

func (b *fakeBatch) Execute(ctx context.Context) error {
	s := b.store
	if atomic.AddInt32(&s.inFlight, 1) > 1 {
		s.mu.Lock()
		s.overlapped = true
		s.mu.Unlock()
	}
	defer atomic.AddInt32(&s.inFlight, -1)

	s.mu.Lock()
	batchNo := len(s.batchSizes)
	var values [][]FormValue
	for _, it := range b.items {
		values = append(values, it.values)
	}
	s.batchSizes = append(s.batchSizes, flatten(values))
	s.events = append(s.events, "start")
	s.mu.Unlock()

	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	if s.executeFn != nil {
		if err := s.executeFn(ctx, batchNo); err != nil {
			return err
		}
	}

	// Resolve in reverse to show that completion order is not submission order.
	for i := len(b.items) - 1; i >= 0; i-- {
		it := b.items[i]
		var res []FieldWriteResult
		var err error
		if s.writeFn != nil {
			res, err = s.writeFn(it.values)
		}
		it.pending.results, it.pending.err = res, err
		close(it.pending.done)
	}

	s.mu.Lock()
	s.events = append(s.events, "end")
	s.mu.Unlock()
	return nil
}

// flatten keeps one marker per row so len() reports the batch size.
func flatten(rows [][]FormValue) []FormValue {
	out := make([]FormValue, 0, len(rows))
	for _, r := range rows {
		if len(r) > 0 {
			out = append(out, r[0])
		} else {
			out = append(out, FormValue{})
		}
	}
	return out
}

type fakePending struct {
	done    chan struct{}
	results []FieldWriteResult
	err     error
}

func (p *fakePending) Wait(ctx context.Context) ([]FieldWriteResult, error) {
	select {
	case <-p.done:
		return p.results, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var errNetwork = errors.New("network unreachable")

func valueOf(values []FormValue, field string) string {
	for _, v := range values {
		if v.FieldName == field {
			return v.FieldValue
		}
	}
	return ""
}

// acceptAll echoes every field back without errors.
func acceptAll(values []FormValue) ([]FieldWriteResult, error) {
	res := make([]FieldWriteResult, len(values))
	for i, v := range values {
		res[i] = FieldWriteResult{FieldName: v.FieldName, FieldValue: v.FieldValue}
	}
	return res, nil
}
