// Copyright (c) 2022 Netskope, Inc. All rights reserved.

package log

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLogger_Writer(t *testing.T) {
	var buf bytes.Buffer
	logger, closeLog, err := NewLogger(Options{Writer: &buf})
	require.NoError(t, err)
	defer closeLog()

	logger.Debug("hidden")
	logger.Info("Processing batch", zap.Int("batch", 2))
	require.NoError(t, logger.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1, "debug must be filtered at info level")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "IN", entry["lv"])
	assert.Equal(t, "Processing batch", entry["msg"])
	assert.EqualValues(t, 2, entry["batch"])
	assert.NotContains(t, entry, "call")
}

func TestNewLogger_DebugAddsCaller(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := NewLogger(Options{Writer: &buf, Debug: true})
	require.NoError(t, err)

	logger.Debug("visible")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "DE", entry["lv"])
	assert.Contains(t, entry["call"], "log_test.go")
}

func TestNewLogger_File(t *testing.T) {
	dir := t.TempDir()
	logger, closeLog, err := NewLogger(Options{Dir: dir, Name: "listimport"})
	require.NoError(t, err)

	logger.Warn("Unmapped column")
	require.NoError(t, logger.Sync())
	require.NoError(t, closeLog())

	data, err := os.ReadFile(filepath.Join(dir, "listimport.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"lv":"WA"`)
}

func TestLogFile_Defaults(t *testing.T) {
	assert.Equal(t, "/tmp/x.log", LogFile("", "x"))
	assert.Equal(t, filepath.Join("/var/log", filepath.Base(os.Args[0])+".log"), LogFile("/var/log", ""))
}
