// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/netSkope/list-import-tool/internal/chunk"
	"go.uber.org/zap"
)

var (
	ErrInvalidChunkSize = errors.New("chunk size must be positive")
	ErrListUnavailable  = errors.New("list is unavailable (no session or empty list ID)")
)

// Importer writes rows into a list in fixed-size batches.
type Importer struct {
	*Schema

	store     Store
	chunkSize int
	logger    *zap.Logger
}

// Result summarizes one import run.
type Result struct {
	List    *ListInfo
	Rows    int
	Batches int // batches submitted
	Errors  []FieldWriteResult
	Err     error // cause of a run-level abort, nil when every chunk was attempted
}

// New creates an importer that submits at most chunkSize writes per batch.
// store may be nil, in which case every import fails with ErrListUnavailable.
func New(store Store, chunkSize int, logger *zap.Logger) (*Importer, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidChunkSize, chunkSize)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{
		Schema:    NewSchema(store),
		store:     store,
		chunkSize: chunkSize,
		logger:    logger,
	}, nil
}

// ChunkSize returns the maximum number of writes per batch.
func (im *Importer) ChunkSize() int {
	return im.chunkSize
}

// ImportRows writes rows into the list and returns every error collected.
// An empty result means all rows were written.
func (im *Importer) ImportRows(ctx context.Context, listID string, rows []Row) []FieldWriteResult {
	return im.Run(ctx, listID, rows).Errors
}

// Run imports rows chunk by chunk. Chunks are submitted strictly one after
// another. Row failures are collected and do not stop the run; a failure to
// resolve the list or to submit a batch is recorded as a single entry and
// stops the run, leaving the remaining chunks unattempted.
func (im *Importer) Run(ctx context.Context, listID string, rows []Row) *Result {
	res := &Result{Rows: len(rows), Errors: []FieldWriteResult{}}

	if err := im.run(ctx, listID, rows, res); err != nil {
		res.Err = err
		res.Errors = append(res.Errors, errorEntry(err))
		im.logger.Error("Import aborted",
			zap.String("list_id", listID),
			zap.Int("batches_submitted", res.Batches),
			zap.Error(err))
	}
	return res
}

func (im *Importer) run(ctx context.Context, listID string, rows []Row, res *Result) error {
	info, err := im.FetchListInfo(ctx, listID)
	if err != nil {
		return fmt.Errorf("failed to resolve list: %w", err)
	}
	if info == nil {
		return ErrListUnavailable
	}
	res.List = info

	chunks, err := chunk.Partition(len(rows), im.chunkSize)
	if err != nil {
		return err
	}

	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}

		im.logger.Info("Processing batch",
			zap.String("list_id", listID),
			zap.Int("batch", c.Index+1),
			zap.Int("batch_start", c.Start),
			zap.Int("batch_end", c.End),
			zap.Int("total_rows", len(rows)))

		res.Batches++
		batchErrors, err := im.writeBatch(ctx, listID, *info, chunk.Slice(rows, c))
		if err != nil {
			return fmt.Errorf("batch %d failed: %w", c.Index+1, err)
		}
		res.Errors = append(res.Errors, batchErrors...)
	}

	return nil
}

// writeBatch queues every row on one store batch, waits for each row's
// outcome in its own goroutine, submits the batch and joins. Errors are
// appended in completion order, not row order.
func (im *Importer) writeBatch(ctx context.Context, listID string, info ListInfo, rows []Row) ([]FieldWriteResult, error) {
	batch := im.store.NewBatch()
	folderPath := info.FolderPath()

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		result []FieldWriteResult
		mu     sync.Mutex
		wg     sync.WaitGroup
	)

	for _, row := range rows {
		pending := batch.AddItem(listID, folderPath, FormValues(row))

		wg.Add(1)
		go func(p PendingWrite) {
			defer wg.Done()

			fields, err := p.Wait(waitCtx)
			if err != nil {
				mu.Lock()
				result = append(result, errorEntry(err))
				mu.Unlock()

				im.logger.Error("Item write failed",
					zap.String("list_id", listID),
					zap.Error(err))
				return
			}

			var failed []FieldWriteResult
			for _, f := range fields {
				if f.Failed() {
					failed = append(failed, f)
				}
			}
			if len(failed) == 0 {
				return
			}

			mu.Lock()
			result = append(result, failed...)
			mu.Unlock()

			im.logger.Error("Item rejected by list validation",
				zap.String("list_id", listID),
				zap.Any("errors", failed))
		}(pending)
	}

	if err := batch.Execute(ctx); err != nil {
		// Release row waiters that a failed submission left unresolved.
		cancel()
		wg.Wait()
		return nil, err
	}

	wg.Wait()
	return result, nil
}
