// Copyright (c) 2024 Netskope, Inc. All rights reserved.

// Package report writes the errors of an import run as CSV.
package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/netSkope/list-import-tool/internal/config"
	"github.com/netSkope/list-import-tool/internal/importer"
	"github.com/netSkope/list-import-tool/internal/s3"
	"go.uber.org/zap"
)

// Header is the first row of every report.
var Header = []string{"field_name", "field_value", "error_message"}

// Uploader stores a report in S3.
type Uploader interface {
	UploadWithRetry(ctx context.Context, bucket, key string, data []byte) error
}

// Render encodes errs as CSV, one line per entry, in the given order.
func Render(errs []importer.FieldWriteResult) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header); err != nil {
		return nil, err
	}
	for _, e := range errs {
		if err := w.Write([]string{e.FieldName, e.FieldValue, e.ErrorMessage}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}
	return buf.Bytes(), nil
}

// Destination resolves dest for a run. A destination ending in "/" is a
// directory or prefix and gets a per-run file name.
func Destination(dest, runID string) string {
	if strings.HasSuffix(dest, "/") {
		return dest + "errors-" + runID + ".csv"
	}
	return dest
}

// WriteFile writes report data to a local file.
func WriteFile(data []byte, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// Publish renders errs and stores the report at dest, a local path or an
// s3:// URI. It returns the resolved destination.
func Publish(ctx context.Context, errs []importer.FieldWriteResult, dest, runID string, up Uploader, logger *zap.Logger) (string, error) {
	data, err := Render(errs)
	if err != nil {
		return "", err
	}

	dest = Destination(dest, runID)
	if !config.IsS3URI(dest) {
		if err := WriteFile(data, dest); err != nil {
			return "", err
		}
	} else {
		if up == nil {
			return "", fmt.Errorf("no S3 client configured for %s", dest)
		}
		bucket, key, err := s3.ParseURI(dest)
		if err != nil {
			return "", err
		}
		if err := up.UploadWithRetry(ctx, bucket, key, data); err != nil {
			return "", err
		}
	}

	logger.Info("Error report written",
		zap.String("destination", dest),
		zap.Int("errors", len(errs)))
	return dest, nil
}
