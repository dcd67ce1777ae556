package services

import (
	"context"
	"fmt"

	"github.com/kelsos/safes-dump/internal/blockchain"
	"github.com/kelsos/safes-dump/internal/client"
	"github.com/kelsos/safes-dump/internal/config"
	"github.com/kelsos/safes-dump/internal/logger"
	"github.com/kelsos/safes-dump/internal/metrics"
	"github.com/kelsos/safes-dump/internal/storage"
)

// DumpResult summarizes a finished run
type DumpResult struct {
	BlockNumber string
	SafeCount   int
	OutputPath  string
}

// DumpService orchestrates a download: block number, all safe pages, one output file
type DumpService struct {
	config  *config.Config
	client  *client.APIClient
	metrics *metrics.Metrics
	safes   *SafeService
	onBlock func(blockNumber string)
}

// NewDumpService creates a new dump service with all dependencies
func NewDumpService(cfg *config.Config, m *metrics.Metrics) *DumpService {
	apiClient := client.NewAPIClient(cfg)

	return &DumpService{
		config:  cfg,
		client:  apiClient,
		metrics: m,
		safes:   NewSafeService(apiClient, cfg, m),
	}
}

// Safes returns the underlying safe service, e.g. to register a page observer
func (s *DumpService) Safes() *SafeService {
	return s.safes
}

// OnBlockNumber registers a callback invoked once the block number is captured
func (s *DumpService) OnBlockNumber(callback func(blockNumber string)) {
	s.onBlock = callback
}

// GetConfig returns the current configuration
func (s *DumpService) GetConfig() *config.Config {
	return s.config
}

// Run downloads every safe and writes the output file once at the end.
// Nothing is written when any request fails.
func (s *DumpService) Run(ctx context.Context) (*DumpResult, error) {
	result := &DumpResult{OutputPath: s.config.OutputPath}

	// Captured before paging so the snapshot is never newer than the data it labels
	if s.config.WithBlockNumber {
		blockNumber, err := blockchain.FetchBlockNumber(ctx, s.client.HTTPClient(), s.config.ExplorerURL)
		if err != nil {
			return nil, err
		}
		if err := s.metrics.SetBlockNumber(blockNumber); err != nil {
			logger.Warn("Block number %q not recorded in metrics: %v", blockNumber, err)
		}
		result.BlockNumber = blockNumber
		if s.onBlock != nil {
			s.onBlock(blockNumber)
		}
	}

	logger.Info("Downloading safes from %s (%s pagination, %d per page)",
		s.client.Endpoint(), s.config.Pagination, s.config.PageSize)

	safes, err := s.safes.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to download safes: %w", err)
	}
	result.SafeCount = len(safes)

	if err := storage.WriteSafes(s.config.OutputPath, result.BlockNumber, s.config.WithBlockNumber, safes); err != nil {
		return nil, err
	}
	logger.Info("Wrote %d safes to %s", len(safes), s.config.OutputPath)

	if s.config.MetricsFile != "" {
		if err := s.metrics.WriteToTextfile(s.config.MetricsFile); err != nil {
			logger.Error("%v", err)
		}
	}

	return result, nil
}
