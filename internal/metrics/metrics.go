package metrics

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics collects counters for one download run. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	pages           prometheus.Counter
	safes           prometheus.Counter
	requestDuration *prometheus.HistogramVec
	blockNumber     prometheus.Gauge
}

// New creates the run metrics in a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "safes_dump_pages_total",
			Help: "Pages fetched from the subgraph, including the final empty page",
		}),
		safes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "safes_dump_safes_total",
			Help: "Safes received from the subgraph",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "safes_dump_request_duration_seconds",
			Help:    "Subgraph request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		blockNumber: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "safes_dump_block_number",
			Help: "Block number captured before the download",
		}),
	}
	m.registry.MustRegister(m.pages, m.safes, m.requestDuration, m.blockNumber)
	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest records the latency of one subgraph request
func (m *Metrics) ObserveRequest(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(status).Observe(d.Seconds())
}

// ObservePage records one fetched page holding count safes
func (m *Metrics) ObservePage(count int) {
	if m == nil {
		return
	}
	m.pages.Inc()
	m.safes.Add(float64(count))
}

// SetBlockNumber records the captured block number, hex (0x-prefixed) or decimal
func (m *Metrics) SetBlockNumber(blockNumber string) error {
	if m == nil {
		return nil
	}
	n, err := ParseBlockNumber(blockNumber)
	if err != nil {
		return err
	}
	m.blockNumber.Set(float64(n))
	return nil
}

// WriteToTextfile writes all metrics in the text exposition format, for node_exporter's textfile collector
func (m *Metrics) WriteToTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

// ParseBlockNumber accepts the explorer's hex quantity as well as a plain decimal
func ParseBlockNumber(blockNumber string) (uint64, error) {
	s := strings.TrimSpace(blockNumber)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, err := hexutil.DecodeUint64(strings.ToLower(s))
		if err != nil {
			return 0, fmt.Errorf("invalid block number %q: %w", blockNumber, err)
		}
		return n, nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid block number %q: %w", blockNumber, err)
	}
	return n, nil
}
