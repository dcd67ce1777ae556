package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelsos/safes-dump/internal/client"
	"github.com/kelsos/safes-dump/internal/config"
	"github.com/kelsos/safes-dump/internal/metrics"
	"github.com/kelsos/safes-dump/internal/models"
)

// fakeSubgraph serves a fixed, id-ordered list of safes with either pagination style
type fakeSubgraph struct {
	mu       sync.Mutex
	safes    []models.Safe
	requests []map[string]interface{}
}

func newFakeSubgraph(n int) *fakeSubgraph {
	safes := make([]models.Safe, 0, n)
	for i := 1; i <= n; i++ {
		safes = append(safes, models.Safe{
			ID:       fmt.Sprintf("0x%040x", i),
			Outgoing: []models.Limit{},
			Incoming: []models.Limit{},
			Balances: []models.Balance{},
		})
	}
	return &fakeSubgraph{safes: safes}
}

func (f *fakeSubgraph) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req models.GraphQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.requests = append(f.requests, req.Variables)
	f.mu.Unlock()

	// graph-node validates every document before executing it
	if errs := validateQuery(req.Query); len(errs) > 0 {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"errors": []map[string]string{{"message": errs.Error()}},
		})
		return
	}

	first := int(req.Variables["first"].(float64))
	var page []models.Safe
	if skip, ok := req.Variables["skip"]; ok {
		start := min(int(skip.(float64)), len(f.safes))
		page = f.safes[start:min(start+first, len(f.safes))]
	} else {
		lastID := req.Variables["lastID"].(string)
		page = []models.Safe{}
		for _, s := range f.safes {
			if s.ID > lastID && len(page) < first {
				page = append(page, s)
			}
		}
	}

	if page == nil {
		page = []models.Safe{}
	}
	_ = json.NewEncoder(w).Encode(models.SafesResponse{Data: &models.SafesPage{Safes: &page}})
}

func testConfig(endpoint string, pagination config.Pagination, pageSize int) *config.Config {
	cfg := config.NewConfig()
	cfg.Endpoint = endpoint
	cfg.Pagination = pagination
	cfg.PageSize = pageSize
	return cfg
}

func newTestService(endpoint string, pagination config.Pagination, pageSize int) *SafeService {
	cfg := testConfig(endpoint, pagination, pageSize)
	return NewSafeService(client.NewAPIClient(cfg), cfg, metrics.New())
}

func TestFetchAllOffsetPagination(t *testing.T) {
	fake := newFakeSubgraph(4)
	srv := httptest.NewServer(fake)
	defer srv.Close()

	safes, err := newTestService(srv.URL, config.PaginationOffset, 2).FetchAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, fake.safes, safes)
	require.Len(t, fake.requests, 3)
	for i, skip := range []float64{0, 2, 4} {
		assert.Equal(t, skip, fake.requests[i]["skip"])
		assert.Equal(t, 2.0, fake.requests[i]["first"])
	}
}

func TestFetchAllCursorPagination(t *testing.T) {
	fake := newFakeSubgraph(5)
	srv := httptest.NewServer(fake)
	defer srv.Close()

	safes, err := newTestService(srv.URL, config.PaginationCursor, 2).FetchAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fake.safes, safes)

	// 2 + 2 + 1 + empty
	require.Len(t, fake.requests, 4)
	seen := make(map[string]bool)
	previous := ""
	for i, vars := range fake.requests {
		lastID := vars["lastID"].(string)
		assert.False(t, seen[lastID], "page %d requested twice", i)
		seen[lastID] = true
		if i > 0 {
			assert.Greater(t, lastID, previous)
		}
		previous = lastID
	}
	assert.Equal(t, fake.safes[4].ID, previous)
}

func TestFetchAllFullPagesThenEmpty(t *testing.T) {
	for _, pagination := range []config.Pagination{config.PaginationCursor, config.PaginationOffset} {
		t.Run(string(pagination), func(t *testing.T) {
			const pages, pageSize = 3, 4
			fake := newFakeSubgraph(pages * pageSize)
			srv := httptest.NewServer(fake)
			defer srv.Close()

			safes, err := newTestService(srv.URL, pagination, pageSize).FetchAll(context.Background())
			require.NoError(t, err)
			assert.Len(t, safes, pages*pageSize)
			assert.Equal(t, fake.safes, safes)
			assert.Len(t, fake.requests, pages+1)
		})
	}
}

func TestFetchAllFirstPageEmpty(t *testing.T) {
	fake := newFakeSubgraph(0)
	srv := httptest.NewServer(fake)
	defer srv.Close()

	safes, err := newTestService(srv.URL, config.PaginationCursor, 1000).FetchAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, safes)
	assert.Empty(t, safes)
	assert.Len(t, fake.requests, 1)
}

func TestFetchAllObserver(t *testing.T) {
	fake := newFakeSubgraph(3)
	srv := httptest.NewServer(fake)
	defer srv.Close()

	svc := newTestService(srv.URL, config.PaginationOffset, 2)
	var events []PageEvent
	svc.OnPage(func(e PageEvent) { events = append(events, e) })

	_, err := svc.FetchAll(context.Background())
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, []int{2, 1, 0}, []int{events[0].Count, events[1].Count, events[2].Count})
	assert.Equal(t, []int{2, 3, 3}, []int{events[0].Total, events[1].Total, events[2].Total})
	assert.Equal(t, 4, events[2].Cursor.Skip)
	assert.Equal(t, 3, events[2].Page)
}

func TestFetchPageMissingSafes(t *testing.T) {
	for name, body := range map[string]string{
		"no data":    `{}`,
		"null data":  `{"data":null}`,
		"no safes":   `{"data":{}}`,
		"null safes": `{"data":{"safes":null}}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			_, err := newTestService(srv.URL, config.PaginationCursor, 10).FetchAll(context.Background())
			assert.ErrorIs(t, err, ErrMissingSafes)
		})
	}
}

func TestFetchPageGraphQLError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[{"message":"Store error: database unavailable"}]}`))
	}))
	defer srv.Close()

	_, err := newTestService(srv.URL, config.PaginationCursor, 10).FetchAll(context.Background())
	require.Error(t, err)

	var gqlErr *models.GraphQLError
	assert.True(t, errors.As(err, &gqlErr))
	assert.NotErrorIs(t, err, ErrMissingSafes)
}

func TestFetchPageMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": {"safes": [`))
	}))
	defer srv.Close()

	_, err := newTestService(srv.URL, config.PaginationCursor, 10).FetchAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error decoding response")
}

func TestFetchAllMidPaginationFailureIsNotEndOfData(t *testing.T) {
	fake := newFakeSubgraph(4)
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fake.ServeHTTP(w, r)
	}))
	defer srv.Close()

	safes, err := newTestService(srv.URL, config.PaginationOffset, 2).FetchAll(context.Background())
	require.Error(t, err)
	assert.Nil(t, safes)
	assert.Contains(t, err.Error(), "skip=2")
}

func TestFetchAllStalledCursor(t *testing.T) {
	// An endpoint that ignores id_gt keeps returning the same page
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"safes":[{"id":"0x02"},{"id":"0x01"}]}}`))
	}))
	defer srv.Close()

	_, err := newTestService(srv.URL, config.PaginationCursor, 2).FetchAll(context.Background())
	assert.ErrorIs(t, err, ErrCursorStalled)
}

func TestFetchAllCanceled(t *testing.T) {
	srv := httptest.NewServer(newFakeSubgraph(10))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestService(srv.URL, config.PaginationOffset, 2).FetchAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func explorerServer(t *testing.T, result string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","result":%q,"id":1}`, result)
	}))
}

func TestDumpServiceRunSnapshot(t *testing.T) {
	fake := newFakeSubgraph(4)
	srv := httptest.NewServer(fake)
	defer srv.Close()
	explorer := explorerServer(t, "0x12d687")
	defer explorer.Close()

	dir := t.TempDir()
	cfg := testConfig(srv.URL, config.PaginationOffset, 2)
	cfg.ExplorerURL = explorer.URL
	cfg.OutputPath = filepath.Join(dir, "safes.json")
	cfg.MetricsFile = filepath.Join(dir, "safes_dump.prom")

	dumpService := NewDumpService(cfg, metrics.New())
	var captured []string
	pagesAtCapture := -1
	dumpService.OnBlockNumber(func(blockNumber string) {
		captured = append(captured, blockNumber)
		fake.mu.Lock()
		pagesAtCapture = len(fake.requests)
		fake.mu.Unlock()
	})

	result, err := dumpService.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0x12d687", result.BlockNumber)
	assert.Equal(t, []string{"0x12d687"}, captured)
	assert.Equal(t, 0, pagesAtCapture, "block number is reported before paging")
	assert.Equal(t, 4, result.SafeCount)

	raw, err := os.ReadFile(cfg.OutputPath)
	require.NoError(t, err)
	var snapshot models.Snapshot
	require.NoError(t, json.Unmarshal(raw, &snapshot))
	assert.Equal(t, "0x12d687", snapshot.BlockNumber)
	assert.Equal(t, fake.safes, snapshot.Safes)

	prom, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "safes_dump_safes_total 4")
	assert.Contains(t, string(prom), "safes_dump_block_number 1.234567e+06")
}

func TestDumpServiceRunEmptySnapshot(t *testing.T) {
	srv := httptest.NewServer(newFakeSubgraph(0))
	defer srv.Close()
	explorer := explorerServer(t, "0x10")
	defer explorer.Close()

	cfg := testConfig(srv.URL, config.PaginationCursor, 1000)
	cfg.ExplorerURL = explorer.URL
	cfg.OutputPath = filepath.Join(t.TempDir(), "safes.json")

	_, err := NewDumpService(cfg, nil).Run(context.Background())
	require.NoError(t, err)

	raw, err := os.ReadFile(cfg.OutputPath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"blockNumber":"0x10","safes":[]}`, string(raw))
}

func TestDumpServiceRunBareArray(t *testing.T) {
	fake := newFakeSubgraph(3)
	srv := httptest.NewServer(fake)
	defer srv.Close()

	cfg := testConfig(srv.URL, config.PaginationCursor, 2)
	cfg.WithBlockNumber = false
	cfg.ExplorerURL = "http://127.0.0.1:1/never-called"
	cfg.OutputPath = filepath.Join(t.TempDir(), "safes.json")

	dumpService := NewDumpService(cfg, metrics.New())
	dumpService.OnBlockNumber(func(string) { t.Error("block number fetched for a bare-array dump") })

	result, err := dumpService.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.BlockNumber)

	raw, err := os.ReadFile(cfg.OutputPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "["))

	var safes []models.Safe
	require.NoError(t, json.Unmarshal(raw, &safes))
	assert.Equal(t, fake.safes, safes)
}

func TestDumpServiceRunWritesNothingOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL, config.PaginationCursor, 10)
	cfg.WithBlockNumber = false
	cfg.OutputPath = filepath.Join(t.TempDir(), "safes.json")

	_, err := NewDumpService(cfg, nil).Run(context.Background())
	require.ErrorIs(t, err, ErrMissingSafes)

	_, statErr := os.Stat(cfg.OutputPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDumpServiceRunExplorerFailure(t *testing.T) {
	fake := newFakeSubgraph(1)
	srv := httptest.NewServer(fake)
	defer srv.Close()
	explorer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer explorer.Close()

	cfg := testConfig(srv.URL, config.PaginationCursor, 10)
	cfg.ExplorerURL = explorer.URL
	cfg.OutputPath = filepath.Join(t.TempDir(), "safes.json")

	_, err := NewDumpService(cfg, nil).Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, fake.requests, "no page is fetched without a block number")
}
