// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return p
}

// noConfigFile keeps a stray list-import.yaml in the working directory out of the tests.
func noConfigFile(t *testing.T) string {
	return "-config-file=" + filepath.Join(t.TempDir(), "absent.yaml")
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig([]string{
		noConfigFile(t),
		"-site-url", "https://contoso.sharepoint.com/sites/ops",
		"-list-id", "{8A3F0C2E-0000-4000-8000-000000000001}",
		"-access-token", "tok",
		"-input", "rows.csv",
	})
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.ChunkSize != DefaultChunkSize {
		t.Errorf("ChunkSize = %d, want %d", cfg.ChunkSize, DefaultChunkSize)
	}
	if cfg.RequestTimeout != DefaultRequestTimeout {
		t.Errorf("RequestTimeout = %d, want %d", cfg.RequestTimeout, DefaultRequestTimeout)
	}
	if cfg.CSVDelimiter != "," || cfg.CSVEncoding != "utf-8" {
		t.Errorf("unexpected CSV defaults %q %q", cfg.CSVDelimiter, cfg.CSVEncoding)
	}
	if cfg.HistoryDBDatabase != DefaultHistoryDB {
		t.Errorf("HistoryDBDatabase = %q", cfg.HistoryDBDatabase)
	}
	if cfg.HistoryEnabled() {
		t.Error("history must be disabled without a host")
	}
	if cfg.Timeout().Seconds() != 60 {
		t.Errorf("Timeout() = %v", cfg.Timeout())
	}
}

func TestLoadConfig_Priority(t *testing.T) {
	yamlPath := writeFile(t, "list-import.yaml", `
site_url: https://yaml.example.com
list_id: yaml-list
chunk_size: 25
input: yaml.csv
csv_encoding: windows-1252
`)
	t.Setenv("LIST_IMPORT_LIST_ID", "env-list")
	t.Setenv("LIST_IMPORT_CHUNK_SIZE", "50")
	t.Setenv("LIST_IMPORT_ACCESS_TOKEN", "env-token")

	cfg, err := LoadConfig([]string{"-config-file", yamlPath, "-chunk-size", "10"})
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"yaml only", cfg.SiteURL, "https://yaml.example.com"},
		{"env over yaml", cfg.ListID, "env-list"},
		{"flag over env", cfg.ChunkSize, 10},
		{"env token", cfg.AccessToken, "env-token"},
		{"yaml encoding", cfg.CSVEncoding, "windows-1252"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoadConfig_AccessTokenFile(t *testing.T) {
	tokenPath := writeFile(t, "token", "  file-token\n")

	cfg, err := LoadConfig([]string{
		noConfigFile(t),
		"-site-url", "https://contoso.sharepoint.com",
		"-list-id", "L1",
		"-access-token-file", tokenPath,
		"-describe",
	})
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.AccessToken != "file-token" {
		t.Errorf("AccessToken = %q", cfg.AccessToken)
	}
	if !cfg.Describe {
		t.Error("Describe should be set")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			SiteURL:      "https://contoso.sharepoint.com",
			ListID:       "L1",
			ChunkSize:    100,
			AccessToken:  "tok",
			Input:        "rows.csv",
			CSVDelimiter: ",",
			CSVEncoding:  "utf-8",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing site", func(c *Config) { c.SiteURL = "" }, "site-url"},
		{"missing list", func(c *Config) { c.ListID = "" }, "list-id"},
		{"zero chunk", func(c *Config) { c.ChunkSize = 0 }, "chunk-size"},
		{"negative chunk", func(c *Config) { c.ChunkSize = -1 }, "chunk-size"},
		{"no token", func(c *Config) { c.AccessToken = "" }, "access token"},
		{"secret without region", func(c *Config) { c.AccessToken = ""; c.AccessTokenSecret = "sp/token" }, "aws-region"},
		{"missing input", func(c *Config) { c.Input = "" }, "input"},
		{"describe needs no input", func(c *Config) { c.Input = ""; c.Describe = true }, ""},
		{"long delimiter", func(c *Config) { c.CSVDelimiter = ";;" }, "csv-delimiter"},
		{"tab delimiter", func(c *Config) { c.CSVDelimiter = "\t" }, ""},
		{"bad encoding", func(c *Config) { c.CSVEncoding = "latin-9" }, "csv-encoding"},
		{"s3 without region", func(c *Config) { c.Input = "s3://bucket/rows.csv" }, "aws-region"},
		{"s3 report with region", func(c *Config) { c.ReportPath = "s3://bucket/r.csv"; c.AWSRegion = "us-east-1" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_HistoryDBHostPort(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"localhost", 3306, "localhost"},
		{"localhost", 0, "localhost"},
		{"localhost", 3307, "localhost:3307"},
	}
	for _, tt := range tests {
		c := &Config{HistoryDBHost: tt.host, HistoryDBPort: tt.port}
		if got := c.HistoryDBHostPort(); got != tt.want {
			t.Errorf("HistoryDBHostPort() = %q, want %q", got, tt.want)
		}
	}
}

func TestConfig_ReadHistoryDBAuth(t *testing.T) {
	authPath := writeFile(t, "auth.json", `{"user": "testuser", "password": "testpass"}`)

	cfg := &Config{}
	if err := cfg.ReadHistoryDBAuth(authPath); err != nil {
		t.Errorf("ReadHistoryDBAuth() error = %v", err)
	}

	if cfg.HistoryDBUser != "testuser" {
		t.Errorf("expected user testuser, got %s", cfg.HistoryDBUser)
	}
	if cfg.HistoryDBPassword != "testpass" {
		t.Errorf("expected password testpass, got %s", cfg.HistoryDBPassword)
	}
}
