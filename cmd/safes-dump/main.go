package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kelsos/safes-dump/internal/config"
	"github.com/kelsos/safes-dump/internal/graph"
	"github.com/kelsos/safes-dump/internal/logger"
	"github.com/kelsos/safes-dump/internal/metrics"
	"github.com/kelsos/safes-dump/internal/services"
	"github.com/kelsos/safes-dump/internal/storage"
	"github.com/kelsos/safes-dump/internal/tui"
	"github.com/kelsos/safes-dump/internal/utils"
)

func runDownload(ctx context.Context, cfg *config.Config, useTUI bool) (*services.DumpResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dumpService := services.NewDumpService(cfg, metrics.New())

	if useTUI {
		logPath, err := logger.InitFileOnly("logs")
		if err != nil {
			return nil, err
		}
		defer logger.Close()
		defer logger.Init()

		result, err := tui.NewDownloadMonitor(dumpService).Run(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w (details in %s)", err, logPath)
		}
		return result, nil
	}

	return dumpService.Run(ctx)
}

func runEdges(input, output string) (int, error) {
	blockNumber, safes, err := storage.ReadSafes(input)
	if err != nil {
		return 0, err
	}
	logger.Info("Loaded %d safes from %s", len(safes), input)
	if blockNumber != "" {
		logger.Info("Dump was taken at block %s", blockNumber)
	}

	g, err := graph.Build(safes)
	if err != nil {
		return 0, fmt.Errorf("failed to build graph from %s: %w", input, err)
	}
	logger.Info("Indexed %d safes and %d tokens", g.SafeCount(), g.TokenCount())

	edges := g.Edges()
	if err := storage.WriteJSON(output, edges); err != nil {
		return 0, err
	}
	return len(edges), nil
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	var (
		pagination    = string(cfg.Pagination)
		noBlockNumber = !cfg.WithBlockNumber
		useTUI        bool
	)

	rootCmd := &cobra.Command{
		Use:   "safes-dump",
		Short: "Download every Circles safe from the subgraph into a JSON file",
		Long: `safes-dump pages through the Circles subgraph, collecting every safe with its
trust limits and token balances, and writes them to a single JSON file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Pagination = config.Pagination(pagination)
			cfg.WithBlockNumber = !noBlockNumber

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			result, err := runDownload(ctx, cfg, useTUI)
			if err != nil {
				return err
			}

			if result.BlockNumber != "" {
				logger.Info("Saved %d safes at block %s to %s", result.SafeCount, result.BlockNumber, result.OutputPath)
			} else {
				logger.Info("Saved %d safes to %s", result.SafeCount, result.OutputPath)
			}
			return nil
		},
	}

	rootCmd.Flags().StringVarP(&cfg.Endpoint, "endpoint", "e", cfg.Endpoint, "Subgraph GraphQL endpoint")
	rootCmd.Flags().IntVarP(&cfg.PageSize, "page-size", "n", cfg.PageSize, "Safes requested per page")
	rootCmd.Flags().StringVarP(&pagination, "pagination", "p", pagination, "Pagination strategy: cursor or offset")
	rootCmd.Flags().StringVarP(&cfg.OutputPath, "output", "o", cfg.OutputPath, "File the safes are written to")
	rootCmd.Flags().BoolVarP(&noBlockNumber, "no-block-number", "", noBlockNumber, "Skip the block number and write a bare array")
	rootCmd.Flags().StringVarP(&cfg.ExplorerURL, "explorer-url", "", cfg.ExplorerURL, "Block explorer eth_block_number URL")
	rootCmd.Flags().DurationVarP(&cfg.HTTPTimeout, "timeout", "t", cfg.HTTPTimeout, "Timeout of a single HTTP request")
	rootCmd.Flags().StringVarP(&cfg.MetricsFile, "metrics-file", "", cfg.MetricsFile, "Write prometheus metrics to this file after the run")
	rootCmd.Flags().BoolVarP(&useTUI, "tui", "", false, "Show an interactive progress monitor")

	var (
		edgesInput  string
		edgesOutput string
	)
	edgesCmd := &cobra.Command{
		Use:   "edges",
		Short: "Derive the transfer capacity graph from a safes dump",
		Long: `Read a safes dump (either output shape) and write every non-zero
{from, to, token, capacity} edge as a JSON array.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := runEdges(edgesInput, edgesOutput)
			if err != nil {
				return err
			}
			logger.Info("Wrote %d edges to %s", count, edgesOutput)
			return nil
		},
	}
	edgesCmd.Flags().StringVarP(&edgesInput, "input", "i", config.DefaultOutputPath, "Safes dump to read")
	edgesCmd.Flags().StringVarP(&edgesOutput, "output", "o", "edges.json", "File the edges are written to")

	rootCmd.AddCommand(edgesCmd)

	return rootCmd
}

func main() {
	utils.LoadEnvironment()
	logger.Init()

	cfg := config.NewConfig()
	cfg.LoadFromEnvironment()

	if err := newRootCmd(cfg).Execute(); err != nil {
		logger.Fatal("%v", err)
	}
}
