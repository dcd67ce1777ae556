package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelsos/safes-dump/internal/models"
)

// WriteSafes writes the dump to path. With a block number the document is
// `{"blockNumber": ..., "safes": [...]}`, otherwise the bare array.
func WriteSafes(path string, blockNumber string, withBlockNumber bool, safes []models.Safe) error {
	if safes == nil {
		safes = []models.Safe{}
	}

	var doc interface{} = safes
	if withBlockNumber {
		doc = models.NewSnapshot(blockNumber, safes)
	}

	return WriteJSON(path, doc)
}

// WriteJSON marshals doc and replaces path with it. The data goes to a temporary
// file in the same directory first so a failed write never leaves a truncated file.
func WriteJSON(path string, doc interface{}) error {
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(jsonData); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	return nil
}

// ReadSafes reads a dump in either shape. blockNumber is empty for the bare array form.
func ReadSafes(path string) (blockNumber string, safes []models.Safe, err error) {
	fileData, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	trimmed := bytes.TrimSpace(fileData)
	if len(trimmed) == 0 {
		return "", nil, fmt.Errorf("%s is empty", path)
	}

	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &safes); err != nil {
			return "", nil, fmt.Errorf("failed to unmarshal safes from %s: %w", path, err)
		}
	case '{':
		var snapshot models.Snapshot
		if err := json.Unmarshal(trimmed, &snapshot); err != nil {
			return "", nil, fmt.Errorf("failed to unmarshal snapshot from %s: %w", path, err)
		}
		blockNumber, safes = snapshot.BlockNumber, snapshot.Safes
	default:
		return "", nil, fmt.Errorf("%s is neither a safes array nor a snapshot object", path)
	}

	if safes == nil {
		safes = []models.Safe{}
	}
	return blockNumber, safes, nil
}
