package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Pagination selects how the page cursor advances between requests
type Pagination string

const (
	// PaginationCursor requests `id_gt: <last id>` and moves the cursor to the last id of each page
	PaginationCursor Pagination = "cursor"
	// PaginationOffset requests `skip: <n>` and moves the offset forward by the page size
	PaginationOffset Pagination = "offset"
)

const (
	DefaultEndpoint    = "https://graph.circles.garden/subgraphs/name/CirclesUBI/circles-subgraph"
	DefaultExplorerURL = "https://blockscout.com/poa/xdai/api?module=block&action=eth_block_number"
	DefaultOutputPath  = "safes.json"
	DefaultPageSize    = 1000
	// The subgraph rejects `first` larger than this
	MaxPageSize = 1000
)

// Config holds all application configuration
type Config struct {
	// Subgraph settings
	Endpoint   string
	PageSize   int
	Pagination Pagination

	// Block explorer settings
	WithBlockNumber bool
	ExplorerURL     string

	// HTTP settings
	HTTPTimeout time.Duration

	// Output settings
	OutputPath  string
	MetricsFile string
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{
		Endpoint:        DefaultEndpoint,
		PageSize:        DefaultPageSize,
		Pagination:      PaginationCursor,
		WithBlockNumber: true,
		ExplorerURL:     DefaultExplorerURL,
		HTTPTimeout:     60 * time.Second,
		OutputPath:      DefaultOutputPath,
	}
}

// LoadFromEnvironment loads configuration from environment variables
func (c *Config) LoadFromEnvironment() {
	if endpoint := os.Getenv("SAFES_ENDPOINT"); endpoint != "" {
		c.Endpoint = endpoint
	}

	if pageSize := os.Getenv("SAFES_PAGE_SIZE"); pageSize != "" {
		if p, err := strconv.Atoi(pageSize); err == nil {
			c.PageSize = p
		}
	}

	if pagination := os.Getenv("SAFES_PAGINATION"); pagination != "" {
		c.Pagination = Pagination(strings.ToLower(pagination))
	}

	if withBlock := os.Getenv("SAFES_WITH_BLOCK_NUMBER"); withBlock != "" {
		if b, err := strconv.ParseBool(withBlock); err == nil {
			c.WithBlockNumber = b
		}
	}

	if explorer := os.Getenv("SAFES_EXPLORER_URL"); explorer != "" {
		c.ExplorerURL = explorer
	}

	if timeout := os.Getenv("SAFES_HTTP_TIMEOUT"); timeout != "" {
		if t, err := strconv.Atoi(timeout); err == nil {
			c.HTTPTimeout = time.Duration(t) * time.Second
		}
	}

	if output := os.Getenv("SAFES_OUTPUT"); output != "" {
		c.OutputPath = output
	}

	if metricsFile := os.Getenv("SAFES_METRICS_FILE"); metricsFile != "" {
		c.MetricsFile = metricsFile
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validateURL(c.Endpoint); err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}

	if c.PageSize < 1 || c.PageSize > MaxPageSize {
		return fmt.Errorf("page size must be between 1 and %d, got: %d", MaxPageSize, c.PageSize)
	}

	switch c.Pagination {
	case PaginationCursor, PaginationOffset:
	default:
		return fmt.Errorf("pagination must be %q or %q, got: %q", PaginationCursor, PaginationOffset, c.Pagination)
	}

	if c.WithBlockNumber {
		if err := validateURL(c.ExplorerURL); err != nil {
			return fmt.Errorf("invalid explorer URL: %w", err)
		}
	}

	if c.HTTPTimeout < 0 {
		return fmt.Errorf("HTTP timeout must be non-negative, got: %s", c.HTTPTimeout)
	}

	if c.OutputPath == "" {
		return fmt.Errorf("output path cannot be empty")
	}

	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL has no host: %q", raw)
	}
	return nil
}
