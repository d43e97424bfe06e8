// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultChunkSize      = 100 // remote $batch operation limit
	DefaultRequestTimeout = 60
	DefaultHistoryDB      = "list_import"
	DefaultConfigFile     = "list-import.yaml"

	envPrefix = "LIST_IMPORT_"
)

// Config holds all configuration for the list import tool.
type Config struct {
	// Target list
	SiteURL string
	ListID  string

	// Batching
	ChunkSize      int // Default: 100
	RequestTimeout int // Seconds, default: 60

	// Authentication
	AccessToken       string
	AccessTokenSecret string // AWS Secrets Manager secret holding {"access_token": "..."}
	AWSRegion         string

	// Optional static AWS credentials; the SDK default chain is used otherwise
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSSessionToken    string
	AWSEndpoint        string // Custom endpoint (e.g. LocalStack)

	// Input / output
	Input        string // Local CSV path or s3://bucket/key
	CSVDelimiter string // Default: ","
	CSVEncoding  string // utf-8 (default), windows-1252, windows-1251
	ReportPath   string // Local path or s3://bucket/key, empty disables the report

	// Optional: run history in MySQL/MariaDB
	HistoryDBHost     string
	HistoryDBPort     int
	HistoryDBUser     string
	HistoryDBPassword string
	HistoryDBDatabase string

	// Logging
	LogDir    string
	LogName   string
	LogStdout bool
	Debug     bool

	// Modes
	Describe bool // Print the list schema and exit
	Quiet    bool // Suppress the per-error summary on stdout
}

// Timeout returns the per-request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// HistoryEnabled reports whether runs should be recorded.
func (c *Config) HistoryEnabled() bool {
	return c.HistoryDBHost != ""
}

// LoadConfig loads configuration from CLI flags, environment variables, and YAML file.
// Priority: CLI flags > environment variables > YAML file > defaults
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("listimport", flag.ContinueOnError)

	siteURL := fs.String("site-url", "", "Site URL, e.g. https://contoso.sharepoint.com/sites/ops")
	listID := fs.String("list-id", "", "Target list ID (GUID)")
	chunkSize := fs.Int("chunk-size", 0, "Max item writes per batch request (default: 100)")
	requestTimeout := fs.Int("request-timeout", 0, "HTTP request timeout in seconds (default: 60)")
	accessToken := fs.String("access-token", "", "Bearer access token")
	accessTokenFile := fs.String("access-token-file", "", "File containing the bearer access token")
	accessTokenSecret := fs.String("access-token-secret", "", "AWS Secrets Manager secret holding the access token")
	awsRegion := fs.String("aws-region", "", "AWS region (Secrets Manager, S3)")
	awsAccessKeyID := fs.String("aws-access-key-id", "", "AWS access key ID (optional)")
	awsSecretAccessKey := fs.String("aws-secret-access-key", "", "AWS secret access key (optional)")
	awsSessionToken := fs.String("aws-session-token", "", "AWS session token (optional)")
	awsEndpoint := fs.String("aws-endpoint", "", "Custom AWS endpoint URL (optional)")
	input := fs.String("input", "", "CSV input: local path or s3://bucket/key")
	delimiter := fs.String("csv-delimiter", "", "CSV delimiter (default: ,)")
	encoding := fs.String("csv-encoding", "", "CSV encoding: utf-8, windows-1252, windows-1251 (default: utf-8)")
	reportPath := fs.String("report", "", "Error report destination: local path or s3://bucket/key")
	historyHost := fs.String("history-db-host", "", "MySQL/MariaDB host for run history (optional)")
	historyPort := fs.Int("history-db-port", 0, "History DB port (default: 3306)")
	historyUser := fs.String("history-db-user", "", "History DB username")
	historyPassword := fs.String("history-db-password", "", "History DB password")
	historyAuth := fs.String("history-db-auth", "", "History DB auth file path (JSON with user and password)")
	historyDatabase := fs.String("history-db-database", "", "History DB name (default: list_import)")
	logDir := fs.String("log-dir", "", "Log directory (default: /tmp)")
	logStdout := fs.Bool("log-stdout", false, "Log to stdout instead of a file")
	debug := fs.Bool("debug", false, "Enable debug logging")
	describe := fs.Bool("describe", false, "Print the list title and writable fields, then exit")
	quiet := fs.Bool("quiet", false, "Suppress the error listing on stdout")
	configFile := fs.String("config-file", DefaultConfigFile, "Config file path")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Load from YAML file if it exists
	if *configFile != "" {
		if err := loadFromYAML(cfg, *configFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Override with environment variables
	loadFromEnv(cfg)

	// Override with CLI flags (highest priority)
	if *siteURL != "" {
		cfg.SiteURL = *siteURL
	}
	if *listID != "" {
		cfg.ListID = *listID
	}
	if *chunkSize != 0 {
		cfg.ChunkSize = *chunkSize
	}
	if *requestTimeout > 0 {
		cfg.RequestTimeout = *requestTimeout
	}
	if *accessToken != "" {
		cfg.AccessToken = *accessToken
	}
	if *accessTokenFile != "" {
		if err := cfg.ReadAccessToken(*accessTokenFile); err != nil {
			return nil, fmt.Errorf("failed to read access token file: %w", err)
		}
	}
	if *accessTokenSecret != "" {
		cfg.AccessTokenSecret = *accessTokenSecret
	}
	if *awsRegion != "" {
		cfg.AWSRegion = *awsRegion
	}
	if *awsAccessKeyID != "" {
		cfg.AWSAccessKeyID = *awsAccessKeyID
	}
	if *awsSecretAccessKey != "" {
		cfg.AWSSecretAccessKey = *awsSecretAccessKey
	}
	if *awsSessionToken != "" {
		cfg.AWSSessionToken = *awsSessionToken
	}
	if *awsEndpoint != "" {
		cfg.AWSEndpoint = *awsEndpoint
	}
	if *input != "" {
		cfg.Input = *input
	}
	if *delimiter != "" {
		cfg.CSVDelimiter = *delimiter
	}
	if *encoding != "" {
		cfg.CSVEncoding = *encoding
	}
	if *reportPath != "" {
		cfg.ReportPath = *reportPath
	}
	if *historyHost != "" {
		cfg.HistoryDBHost = *historyHost
	}
	if *historyPort > 0 {
		cfg.HistoryDBPort = *historyPort
	}
	if *historyUser != "" {
		cfg.HistoryDBUser = *historyUser
	}
	if *historyPassword != "" {
		cfg.HistoryDBPassword = *historyPassword
	}
	if *historyAuth != "" {
		if err := cfg.ReadHistoryDBAuth(*historyAuth); err != nil {
			return nil, fmt.Errorf("failed to read history DB auth file: %w", err)
		}
	}
	if *historyDatabase != "" {
		cfg.HistoryDBDatabase = *historyDatabase
	}
	if *logDir != "" {
		cfg.LogDir = *logDir
	}
	if *logStdout {
		cfg.LogStdout = true
	}
	if *debug {
		cfg.Debug = true
	}
	if *describe {
		cfg.Describe = true
	}
	if *quiet {
		cfg.Quiet = true
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.CSVDelimiter == "" {
		c.CSVDelimiter = ","
	}
	if c.CSVEncoding == "" {
		c.CSVEncoding = "utf-8"
	}
	if c.HistoryDBPort == 0 {
		c.HistoryDBPort = 3306
	}
	if c.HistoryDBDatabase == "" {
		c.HistoryDBDatabase = DefaultHistoryDB
	}
	if c.LogDir == "" {
		c.LogDir = "/tmp"
	}
	if c.LogName == "" {
		c.LogName = "listimport"
	}
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.SiteURL == "" {
		return fmt.Errorf("site-url is required")
	}
	if c.ListID == "" {
		return fmt.Errorf("list-id is required")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk-size must be positive, got %d", c.ChunkSize)
	}
	if c.AccessToken == "" && c.AccessTokenSecret == "" {
		return fmt.Errorf("an access token is required (access-token, access-token-file or access-token-secret)")
	}
	if c.AccessTokenSecret != "" && c.AWSRegion == "" {
		return fmt.Errorf("aws-region is required when access-token-secret is set")
	}
	if !c.Describe && c.Input == "" {
		return fmt.Errorf("input is required")
	}
	if len([]rune(c.CSVDelimiter)) != 1 {
		return fmt.Errorf("csv-delimiter must be a single character, got %q", c.CSVDelimiter)
	}
	switch strings.ToLower(c.CSVEncoding) {
	case "utf-8", "utf8", "windows-1252", "windows-1251":
	default:
		return fmt.Errorf("unsupported csv-encoding %q", c.CSVEncoding)
	}
	if (IsS3URI(c.Input) || IsS3URI(c.ReportPath)) && c.AWSRegion == "" {
		return fmt.Errorf("aws-region is required for s3:// input or report")
	}
	return nil
}

// IsS3URI reports whether p names an S3 object.
func IsS3URI(p string) bool {
	return strings.HasPrefix(p, "s3://")
}

// loadFromYAML loads configuration from a YAML file.
func loadFromYAML(cfg *Config, filepath string) error {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return err
	}

	var yamlCfg struct {
		SiteURL           string `yaml:"site_url"`
		ListID            string `yaml:"list_id"`
		ChunkSize         int    `yaml:"chunk_size"`
		RequestTimeout    int    `yaml:"request_timeout"`
		AccessTokenSecret string `yaml:"access_token_secret"`
		AWSRegion         string `yaml:"aws_region"`
		AWSEndpoint       string `yaml:"aws_endpoint"`
		Input             string `yaml:"input"`
		CSVDelimiter      string `yaml:"csv_delimiter"`
		CSVEncoding       string `yaml:"csv_encoding"`
		ReportPath        string `yaml:"report"`
		HistoryDBHost     string `yaml:"history_db_host"`
		HistoryDBPort     int    `yaml:"history_db_port"`
		HistoryDBUser     string `yaml:"history_db_user"`
		HistoryDBPassword string `yaml:"history_db_password"`
		HistoryDBDatabase string `yaml:"history_db_database"`
		LogDir            string `yaml:"log_dir"`
		LogStdout         bool   `yaml:"log_stdout"`
		Debug             bool   `yaml:"debug"`
	}

	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return err
	}

	if yamlCfg.SiteURL != "" {
		cfg.SiteURL = yamlCfg.SiteURL
	}
	if yamlCfg.ListID != "" {
		cfg.ListID = yamlCfg.ListID
	}
	if yamlCfg.ChunkSize != 0 {
		cfg.ChunkSize = yamlCfg.ChunkSize
	}
	if yamlCfg.RequestTimeout > 0 {
		cfg.RequestTimeout = yamlCfg.RequestTimeout
	}
	if yamlCfg.AccessTokenSecret != "" {
		cfg.AccessTokenSecret = yamlCfg.AccessTokenSecret
	}
	if yamlCfg.AWSRegion != "" {
		cfg.AWSRegion = yamlCfg.AWSRegion
	}
	if yamlCfg.AWSEndpoint != "" {
		cfg.AWSEndpoint = yamlCfg.AWSEndpoint
	}
	if yamlCfg.Input != "" {
		cfg.Input = yamlCfg.Input
	}
	if yamlCfg.CSVDelimiter != "" {
		cfg.CSVDelimiter = yamlCfg.CSVDelimiter
	}
	if yamlCfg.CSVEncoding != "" {
		cfg.CSVEncoding = yamlCfg.CSVEncoding
	}
	if yamlCfg.ReportPath != "" {
		cfg.ReportPath = yamlCfg.ReportPath
	}
	if yamlCfg.HistoryDBHost != "" {
		cfg.HistoryDBHost = yamlCfg.HistoryDBHost
	}
	if yamlCfg.HistoryDBPort > 0 {
		cfg.HistoryDBPort = yamlCfg.HistoryDBPort
	}
	if yamlCfg.HistoryDBUser != "" {
		cfg.HistoryDBUser = yamlCfg.HistoryDBUser
	}
	if yamlCfg.HistoryDBPassword != "" {
		cfg.HistoryDBPassword = yamlCfg.HistoryDBPassword
	}
	if yamlCfg.HistoryDBDatabase != "" {
		cfg.HistoryDBDatabase = yamlCfg.HistoryDBDatabase
	}
	if yamlCfg.LogDir != "" {
		cfg.LogDir = yamlCfg.LogDir
	}
	cfg.LogStdout = yamlCfg.LogStdout
	cfg.Debug = yamlCfg.Debug

	return nil
}

// loadFromEnv loads configuration from environment variables.
func loadFromEnv(cfg *Config) {
	if val := os.Getenv(envPrefix + "SITE_URL"); val != "" {
		cfg.SiteURL = val
	}
	if val := os.Getenv(envPrefix + "LIST_ID"); val != "" {
		cfg.ListID = val
	}
	if val := os.Getenv(envPrefix + "CHUNK_SIZE"); val != "" {
		if size, err := strconv.Atoi(val); err == nil {
			cfg.ChunkSize = size
		}
	}
	if val := os.Getenv(envPrefix + "REQUEST_TIMEOUT"); val != "" {
		if timeout, err := strconv.Atoi(val); err == nil {
			cfg.RequestTimeout = timeout
		}
	}
	if val := os.Getenv(envPrefix + "ACCESS_TOKEN"); val != "" {
		cfg.AccessToken = val
	}
	if val := os.Getenv(envPrefix + "ACCESS_TOKEN_SECRET"); val != "" {
		cfg.AccessTokenSecret = val
	}
	if val := os.Getenv(envPrefix + "AWS_REGION"); val != "" {
		cfg.AWSRegion = val
	}
	if val := os.Getenv(envPrefix + "AWS_ENDPOINT"); val != "" {
		cfg.AWSEndpoint = val
	}
	if val := os.Getenv(envPrefix + "INPUT"); val != "" {
		cfg.Input = val
	}
	if val := os.Getenv(envPrefix + "CSV_DELIMITER"); val != "" {
		cfg.CSVDelimiter = val
	}
	if val := os.Getenv(envPrefix + "CSV_ENCODING"); val != "" {
		cfg.CSVEncoding = val
	}
	if val := os.Getenv(envPrefix + "REPORT"); val != "" {
		cfg.ReportPath = val
	}
	if val := os.Getenv(envPrefix + "HISTORY_DB_HOST"); val != "" {
		cfg.HistoryDBHost = val
	}
	if val := os.Getenv(envPrefix + "HISTORY_DB_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.HistoryDBPort = port
		}
	}
	if val := os.Getenv(envPrefix + "HISTORY_DB_USER"); val != "" {
		cfg.HistoryDBUser = val
	}
	if val := os.Getenv(envPrefix + "HISTORY_DB_PASSWORD"); val != "" {
		cfg.HistoryDBPassword = val
	}
	if val := os.Getenv(envPrefix + "HISTORY_DB_DATABASE"); val != "" {
		cfg.HistoryDBDatabase = val
	}
	if val := os.Getenv(envPrefix + "DEBUG"); val != "" {
		cfg.Debug = (val == "true" || val == "1")
	}
}

// HistoryDBHostPort returns host[:port], omitting the default MySQL port.
func (c *Config) HistoryDBHostPort() string {
	if c.HistoryDBPort > 0 && c.HistoryDBPort != 3306 {
		return fmt.Sprintf("%s:%d", c.HistoryDBHost, c.HistoryDBPort)
	}
	return c.HistoryDBHost
}

// ReadHistoryDBAuth reads history DB credentials from an auth file (JSON format).
func (c *Config) ReadHistoryDBAuth(authFile string) error {
	if authFile == "" {
		return nil
	}

	data, err := os.ReadFile(authFile)
	if err != nil {
		return fmt.Errorf("failed to read auth file: %w", err)
	}

	var auth struct {
		User     string `json:"user"`
		Password string `json:"password"`
	}

	if err := json.Unmarshal(data, &auth); err != nil {
		return fmt.Errorf("failed to parse auth file: %w", err)
	}

	c.HistoryDBUser = auth.User
	c.HistoryDBPassword = auth.Password
	return nil
}

// ReadAccessToken reads a bearer token from a file, trimming surrounding whitespace.
func (c *Config) ReadAccessToken(tokenFile string) error {
	data, err := os.ReadFile(tokenFile)
	if err != nil {
		return err
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return fmt.Errorf("token file %s is empty", tokenFile)
	}
	c.AccessToken = token
	return nil
}
