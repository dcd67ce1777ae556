package blockchain

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/kelsos/safes-dump/internal/logger"
	"github.com/kelsos/safes-dump/internal/models"
	"github.com/kelsos/safes-dump/internal/utils"
)

// BlockNumberResponse is the explorer's `eth_block_number` answer, result is a hex quantity
type BlockNumberResponse = models.ExplorerResponse[string]

// FetchBlockNumber asks the block explorer for the current chain height.
// The result is returned verbatim so the dump records exactly what the explorer said.
func FetchBlockNumber(ctx context.Context, httpClient *http.Client, explorerURL string) (string, error) {
	response, err := utils.FetchWithValidation[BlockNumberResponse](ctx, httpClient, explorerURL, http.MethodGet, nil)
	if err != nil {
		return "", fmt.Errorf("failed to fetch block number: %w", err)
	}

	blockNumber := strings.TrimSpace(response.Result)
	if blockNumber == "" {
		return "", fmt.Errorf("explorer returned no block number (message: %q)", response.Message)
	}

	logger.Info("Current block number: %s", blockNumber)
	return blockNumber, nil
}
