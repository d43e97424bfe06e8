// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/netSkope/list-import-tool/internal/binding"
	"github.com/netSkope/list-import-tool/internal/config"
	"github.com/netSkope/list-import-tool/internal/importer"
	fislog "github.com/netSkope/list-import-tool/internal/log"
	"github.com/netSkope/list-import-tool/internal/report"
	"github.com/netSkope/list-import-tool/internal/s3"
	"github.com/netSkope/list-import-tool/internal/sharepoint"
	"github.com/netSkope/list-import-tool/internal/source"
	"github.com/netSkope/list-import-tool/internal/store"
	"github.com/netSkope/list-import-tool/internal/util"
	"go.uber.org/zap"
)

// Exit codes
const (
	exitOK         = 0
	exitFailure    = 1 // setup failure or aborted import
	exitUsage      = 2
	exitRowsFailed = 3 // every chunk attempted, some rows rejected
)

// maxPrintedErrors caps the error listing in the summary.
const maxPrintedErrors = 20

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout io.Writer) int {
	// Load configuration
	cfg, err := config.LoadConfig(args)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return exitUsage
	}

	// Initialize logger
	logger, closeLog, err := fislog.NewLogger(fislog.Options{
		Dir:    cfg.LogDir,
		Name:   cfg.LogName,
		Debug:  cfg.Debug,
		Stdout: cfg.LogStdout,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return exitFailure
	}
	defer closeLog()
	defer logger.Sync() //nolint:errcheck

	runID := uuid.New()
	logger = logger.With(zap.String("run_id", runID.String()))
	logger.Info("Starting list import",
		zap.String("site_url", cfg.SiteURL),
		zap.String("list_id", cfg.ListID),
		zap.Int("chunk_size", cfg.ChunkSize))

	awsOpts := util.AWSOptions{
		Region:          cfg.AWSRegion,
		Endpoint:        cfg.AWSEndpoint,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		SessionToken:    cfg.AWSSessionToken,
	}

	token, err := util.ResolveAccessToken(ctx, cfg.AccessToken, cfg.AccessTokenSecret, awsOpts)
	if err != nil {
		logger.Error("Failed to resolve access token", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Failed to resolve access token: %v\n", err)
		return exitFailure
	}

	client, err := sharepoint.NewClient(cfg.SiteURL, sharepoint.StaticToken(token),
		sharepoint.WithTimeout(cfg.Timeout()),
		sharepoint.WithLogger(logger))
	if err != nil {
		logger.Error("Failed to create site client", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Failed to create site client: %v\n", err)
		return exitFailure
	}

	im, err := importer.New(importer.NewSharePointStore(client), cfg.ChunkSize, logger)
	if err != nil {
		logger.Error("Failed to create importer", zap.Error(err))
		return exitFailure
	}

	// Load list title and writable fields
	list := binding.New(im, logger)
	list.OnChange(func(t binding.Transition) {
		if t.Err == nil && !cfg.Quiet {
			fmt.Fprintf(stdout, "List: %s (%d writable fields)\n", t.Title, len(t.Fields))
		}
	})
	if err := list.SetListID(ctx, cfg.ListID); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load list %s: %v\n", cfg.ListID, err)
		return exitFailure
	}

	if cfg.Describe {
		printSchema(stdout, cfg.ListID, list)
		return exitOK
	}

	// S3 is only needed for s3:// input or report destinations
	var (
		opener   source.Opener
		uploader report.Uploader
	)
	if config.IsS3URI(cfg.Input) || config.IsS3URI(cfg.ReportPath) {
		s3Client, err := s3.NewClient(ctx, awsOpts, logger)
		if err != nil {
			logger.Error("Failed to create S3 client", zap.Error(err))
			fmt.Fprintf(os.Stderr, "Failed to create S3 client: %v\n", err)
			return exitFailure
		}
		opener, uploader = s3Client, s3Client
	}

	reader := source.NewReader(source.Options{
		Delimiter: cfg.CSVDelimiter,
		Encoding:  cfg.CSVEncoding,
	}, opener, logger)

	data, err := reader.Load(ctx, cfg.Input, list.Fields())
	if err != nil {
		logger.Error("Failed to load input", zap.String("input", cfg.Input), zap.Error(err))
		fmt.Fprintf(os.Stderr, "Failed to load input: %v\n", err)
		return exitFailure
	}

	// Import
	started := time.Now()
	res := im.Run(ctx, cfg.ListID, data.Rows)
	finished := time.Now()

	var reportDest string
	if cfg.ReportPath != "" && len(res.Errors) > 0 {
		reportDest, err = report.Publish(ctx, res.Errors, cfg.ReportPath, runID.String(), uploader, logger)
		if err != nil {
			logger.Warn("Failed to write error report", zap.Error(err))
		}
	}

	if cfg.HistoryEnabled() {
		recordHistory(ctx, cfg, logger, store.Run{
			ID:          runID,
			ListID:      cfg.ListID,
			Title:       list.Title(),
			Rows:        len(data.Rows),
			Batches:     res.Batches,
			Errors:      len(res.Errors),
			AbortReason: errString(res.Err),
			StartedAt:   started,
			FinishedAt:  finished,
		})
	}

	printSummary(stdout, cfg, runID, list.Title(), data, res, reportDest, finished.Sub(started))

	switch {
	case res.Err != nil:
		logger.Error("List import aborted", zap.Error(res.Err))
		return exitFailure
	case len(res.Errors) > 0:
		logger.Warn("List import completed with errors", zap.Int("errors", len(res.Errors)))
		return exitRowsFailed
	default:
		logger.Info("List import completed successfully")
		return exitOK
	}
}

// recordHistory stores the run. Failures are logged, not fatal.
func recordHistory(ctx context.Context, cfg *config.Config, logger *zap.Logger, r store.Run) {
	sc, err := store.NewSQLClient(cfg.HistoryDBHostPort(), cfg.HistoryDBUser, cfg.HistoryDBPassword, 0, cfg.HistoryDBDatabase)
	if err != nil {
		logger.Warn("Failed to connect to history database", zap.Error(err))
		return
	}
	defer sc.Close()

	if err := sc.EnsureSchema(ctx); err != nil {
		logger.Warn("Failed to prepare history table", zap.Error(err))
		return
	}
	if err := sc.RecordRun(ctx, r); err != nil {
		logger.Warn("Failed to record run", zap.Error(err))
		return
	}
	logger.Info("Run recorded", zap.String("database", sc.Name()))
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func printSchema(w io.Writer, listID string, list *binding.ListBinding) {
	fields := list.Fields()
	fmt.Fprintf(w, "\n=== List Schema ===\n")
	fmt.Fprintf(w, "List ID: %s\n", listID)
	fmt.Fprintf(w, "Title: %s\n", list.Title())
	fmt.Fprintf(w, "Writable fields: %d\n", len(fields))
	for i, f := range fields {
		required := ""
		if f.Required {
			required = " (required)"
		}
		fmt.Fprintf(w, "  %d. %s [%s] %q%s\n", i+1, f.InternalName, f.TypeName, f.DisplayName, required)
	}
	fmt.Fprintf(w, "===================\n")
}

func printSummary(w io.Writer, cfg *config.Config, runID uuid.UUID, title string, data *source.Data,
	res *importer.Result, reportDest string, elapsed time.Duration) {
	fmt.Fprintf(w, "\n=== Import Summary ===\n")
	fmt.Fprintf(w, "Run ID: %s\n", runID)
	fmt.Fprintf(w, "List: %s (%s)\n", title, cfg.ListID)
	fmt.Fprintf(w, "Input: %s\n", cfg.Input)
	fmt.Fprintf(w, "Rows: %d\n", len(data.Rows))
	fmt.Fprintf(w, "Batches: %d (chunk size %d)\n", res.Batches, cfg.ChunkSize)
	fmt.Fprintf(w, "Errors: %d\n", len(res.Errors))
	fmt.Fprintf(w, "Elapsed: %s\n", elapsed.Round(time.Millisecond))
	if len(data.Mapping.Unmapped) > 0 {
		fmt.Fprintf(w, "Ignored columns: %v\n", data.Mapping.Unmapped)
	}
	if res.Err != nil {
		fmt.Fprintf(w, "Status: ABORTED (%v)\n", res.Err)
	} else {
		fmt.Fprintf(w, "Status: COMPLETED\n")
	}
	if reportDest != "" {
		fmt.Fprintf(w, "Error report: %s\n", reportDest)
	}

	if len(res.Errors) > 0 && !cfg.Quiet {
		fmt.Fprintf(w, "\nErrors:\n")
		for i, e := range res.Errors {
			if i == maxPrintedErrors {
				fmt.Fprintf(w, "  ... (%d more) ...\n", len(res.Errors)-maxPrintedErrors)
				break
			}
			if e.FieldName != "" {
				fmt.Fprintf(w, "  %d. %s=%q: %s\n", i+1, e.FieldName, e.FieldValue, e.ErrorMessage)
			} else {
				fmt.Fprintf(w, "  %d. %s\n", i+1, e.ErrorMessage)
			}
		}
	}
	fmt.Fprintf(w, "======================\n")
}
