// Package telemetry collects request and backend-call metrics for the
// dashboard and serves them in the Prometheus text exposition format.
package telemetry

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// TelemetryConfig holds all configuration for the telemetry provider.
type TelemetryConfig struct {
	ServiceName    string `json:"service_name"`
	ServiceVersion string `json:"service_version"`
	MetricsEnabled *bool  `json:"metrics_enabled"` // nil = use default (true)
}

// metricsOn returns whether metrics are enabled (defaults to true).
func (c *TelemetryConfig) metricsOn() bool {
	if c.MetricsEnabled == nil {
		return true
	}
	return *c.MetricsEnabled
}

func (c *TelemetryConfig) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "cds-dashboard"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
}

// BoolPtr is a helper to create a *bool for TelemetryConfig fields.
func BoolPtr(b bool) *bool {
	return &b
}

// ---------------------------------------------------------------------------
// Histogram
// ---------------------------------------------------------------------------

// histogram is a thread-safe histogram with fixed bucket boundaries. Bucket
// counts are non-cumulative in storage; cumulative counts are computed at
// export time.
type histogram struct {
	boundaries   []float64
	bucketCounts []int64
	count        int64
	sum          uint64 // math.Float64bits, updated with CAS
	mu           sync.Mutex
}

func newHistogram(boundaries []float64) *histogram {
	return &histogram{
		boundaries:   boundaries,
		bucketCounts: make([]int64, len(boundaries)),
	}
}

// Observe records a single value.
func (h *histogram) Observe(v float64) {
	atomic.AddInt64(&h.count, 1)
	atomicAddFloat64(&h.sum, v)

	h.mu.Lock()
	defer h.mu.Unlock()
	for i, b := range h.boundaries {
		if v <= b {
			h.bucketCounts[i]++
			return
		}
	}
	// above every boundary: only the +Inf bucket counts it
}

// Count returns the total number of observations.
func (h *histogram) Count() int64 {
	return atomic.LoadInt64(&h.count)
}

// Sum returns the total sum of all observations.
func (h *histogram) Sum() float64 {
	return math.Float64frombits(atomic.LoadUint64(&h.sum))
}

func (h *histogram) cumulativeBuckets() []int64 {
	h.mu.Lock()
	raw := make([]int64, len(h.bucketCounts))
	copy(raw, h.bucketCounts)
	h.mu.Unlock()

	var running int64
	for i, c := range raw {
		running += c
		raw[i] = running
	}
	return raw
}

func atomicAddFloat64(addr *uint64, delta float64) {
	for {
		old := atomic.LoadUint64(addr)
		next := math.Float64frombits(old) + delta
		if atomic.CompareAndSwapUint64(addr, old, math.Float64bits(next)) {
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Labeled stores
// ---------------------------------------------------------------------------

// LabelsKey builds the map key of a labeled series. Exported so tests can
// construct the same key.
func LabelsKey(values ...string) string {
	return strings.Join(values, "|")
}

type labeledHistogramStore struct {
	mu         sync.RWMutex
	boundaries []float64
	items      map[string]*histogram
}

func newLabeledHistogramStore(boundaries []float64) *labeledHistogramStore {
	return &labeledHistogramStore{boundaries: boundaries, items: make(map[string]*histogram)}
}

func (s *labeledHistogramStore) getOrCreate(key string) *histogram {
	s.mu.RLock()
	h, ok := s.items[key]
	s.mu.RUnlock()
	if ok {
		return h
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok = s.items[key]; !ok {
		h = newHistogram(s.boundaries)
		s.items[key] = h
	}
	return h
}

func (s *labeledHistogramStore) get(key string) *histogram {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items[key]
}

func (s *labeledHistogramStore) keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// counterStore holds monotonically increasing counters keyed by label set.
type counterStore struct {
	mu    sync.RWMutex
	items map[string]*int64
}

func newCounterStore() *counterStore {
	return &counterStore{items: make(map[string]*int64)}
}

func (s *counterStore) add(key string, delta int64) {
	s.mu.RLock()
	p, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		s.mu.Lock()
		if p, ok = s.items[key]; !ok {
			p = new(int64)
			s.items[key] = p
		}
		s.mu.Unlock()
	}
	atomic.AddInt64(p, delta)
}

func (s *counterStore) set(key string, val int64) {
	s.mu.RLock()
	p, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		s.mu.Lock()
		if p, ok = s.items[key]; !ok {
			p = new(int64)
			s.items[key] = p
		}
		s.mu.Unlock()
	}
	atomic.StoreInt64(p, val)
}

func (s *counterStore) get(key string) int64 {
	s.mu.RLock()
	p, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(p)
}

func (s *counterStore) keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ---------------------------------------------------------------------------
// TelemetryProvider
// ---------------------------------------------------------------------------

// defaultDurationBuckets are in seconds. The upper buckets cover synthetic
// generation, which can take minutes.
var defaultDurationBuckets = []float64{
	0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0, 10.0, 30.0, 120.0,
}

var defaultSizeBuckets = []float64{
	100, 1_000, 10_000, 100_000, 1_000_000, 10_000_000,
}

const (
	gaugeActiveRequests = "http_server_active_requests"
	gaugePoolActive     = "db_pool_active_connections"
	gaugePoolIdle       = "db_pool_idle_connections"
	gaugePoolTotal      = "db_pool_total_connections"
)

// TelemetryProvider manages all metric state.
type TelemetryProvider struct {
	cfg TelemetryConfig

	requestDuration *labeledHistogramStore // method|route|status_code
	responseSize    *histogram
	backendDuration *labeledHistogramStore // method|endpoint|outcome
	backendCalls    *counterStore          // method|endpoint|outcome
	events          *counterStore          // type
	gauges          *counterStore
}

// NewTelemetryProvider creates the provider.
func NewTelemetryProvider(cfg TelemetryConfig) *TelemetryProvider {
	cfg.applyDefaults()
	return &TelemetryProvider{
		cfg:             cfg,
		requestDuration: newLabeledHistogramStore(defaultDurationBuckets),
		responseSize:    newHistogram(defaultSizeBuckets),
		backendDuration: newLabeledHistogramStore(defaultDurationBuckets),
		backendCalls:    newCounterStore(),
		events:          newCounterStore(),
		gauges:          newCounterStore(),
	}
}

// Enabled reports whether metrics are recorded.
func (tp *TelemetryProvider) Enabled() bool {
	return tp.cfg.metricsOn()
}

// Resource returns the identifying attributes of this service.
func (tp *TelemetryProvider) Resource() map[string]string {
	return map[string]string{
		"service.name":    tp.cfg.ServiceName,
		"service.version": tp.cfg.ServiceVersion,
	}
}

// ObserveBackendCall records one call to the CDS backend. It satisfies
// apiclient.Observer.
func (tp *TelemetryProvider) ObserveBackendCall(method, endpoint, outcome string, latency time.Duration) {
	if !tp.cfg.metricsOn() {
		return
	}
	key := LabelsKey(method, endpoint, outcome)
	tp.backendCalls.add(key, 1)
	tp.backendDuration.getOrCreate(key).Observe(latency.Seconds())
}

// ObserveEvent counts a published usage event by type.
func (tp *TelemetryProvider) ObserveEvent(eventType string) {
	if !tp.cfg.metricsOn() {
		return
	}
	tp.events.add(eventType, 1)
}

// BackendCalls returns how many calls were recorded for the label set.
func (tp *TelemetryProvider) BackendCalls(method, endpoint, outcome string) int64 {
	return tp.backendCalls.get(LabelsKey(method, endpoint, outcome))
}

// GetLabeledHistogram returns the request duration histogram for a label
// key, or nil.
func (tp *TelemetryProvider) GetLabeledHistogram(key string) *histogram {
	return tp.requestDuration.get(key)
}

// GetGauge returns the current value of a gauge.
func (tp *TelemetryProvider) GetGauge(name string) int64 {
	return tp.gauges.get(name)
}

// PoolStatter is the part of *pgxpool.Pool WatchPool reads.
type PoolStatter interface {
	Stat() *pgxpool.Stat
}

// RecordPool copies the pool's connection counts into the gauges.
func (tp *TelemetryProvider) RecordPool(pool PoolStatter) {
	st := pool.Stat()
	tp.gauges.set(gaugePoolActive, int64(st.AcquiredConns()))
	tp.gauges.set(gaugePoolIdle, int64(st.IdleConns()))
	tp.gauges.set(gaugePoolTotal, int64(st.TotalConns()))
}

// WatchPool records pool gauges every interval until ctx is cancelled.
func (tp *TelemetryProvider) WatchPool(ctx context.Context, pool PoolStatter, interval time.Duration) {
	tp.RecordPool(pool)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tp.RecordPool(pool)
		}
	}
}

// ---------------------------------------------------------------------------
// MetricsMiddleware
// ---------------------------------------------------------------------------

// MetricsMiddleware returns an Echo middleware that records HTTP server
// metrics labeled by route pattern.
func (tp *TelemetryProvider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !tp.cfg.metricsOn() {
				return next(c)
			}

			tp.gauges.add(gaugeActiveRequests, 1)
			defer tp.gauges.add(gaugeActiveRequests, -1)

			start := time.Now()
			err := next(c)
			duration := time.Since(start).Seconds()

			resp := c.Response()
			status := resp.Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if !resp.Committed {
					status = http.StatusInternalServerError
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}

			key := LabelsKey(c.Request().Method, route, strconv.Itoa(status))
			tp.requestDuration.getOrCreate(key).Observe(duration)
			if resp.Size > 0 {
				tp.responseSize.Observe(float64(resp.Size))
			}
			return err
		}
	}
}

// ---------------------------------------------------------------------------
// PrometheusHandler
// ---------------------------------------------------------------------------

// PrometheusHandler serves the metrics in Prometheus text exposition format.
func (tp *TelemetryProvider) PrometheusHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder

		writeLabeledHistogram(&b, "http_server_request_duration_seconds",
			"Duration of HTTP requests in seconds.",
			[]string{"method", "route", "status_code"}, tp.requestDuration)

		writeGauge(&b, gaugeActiveRequests, "Number of active HTTP requests.", tp.gauges.get(gaugeActiveRequests))

		fmt.Fprintf(&b, "# HELP http_server_response_size_bytes Size of HTTP response bodies in bytes.\n")
		fmt.Fprintf(&b, "# TYPE http_server_response_size_bytes histogram\n")
		writeSingleHistogram(&b, "http_server_response_size_bytes", "", tp.responseSize)
		b.WriteByte('\n')

		writeCounter(&b, "cds_backend_requests_total",
			"Calls to the CDS backend by endpoint and outcome.",
			[]string{"method", "endpoint", "outcome"}, tp.backendCalls)

		writeLabeledHistogram(&b, "cds_backend_request_duration_seconds",
			"Latency of CDS backend calls in seconds.",
			[]string{"method", "endpoint", "outcome"}, tp.backendDuration)

		writeCounter(&b, "cds_events_total",
			"Usage events published by type.",
			[]string{"type"}, tp.events)

		for _, g := range []struct{ name, help string }{
			{gaugePoolActive, "Number of acquired database pool connections."},
			{gaugePoolIdle, "Number of idle database pool connections."},
			{gaugePoolTotal, "Number of open database pool connections."},
		} {
			writeGauge(&b, g.name, g.help, tp.gauges.get(g.name))
		}

		return c.Blob(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8", []byte(b.String()))
	}
}

// ---------------------------------------------------------------------------
// Prometheus format helpers
// ---------------------------------------------------------------------------

func labelPairs(names []string, key string) string {
	values := strings.SplitN(key, "|", len(names))
	pairs := make([]string, len(names))
	for i, n := range names {
		v := ""
		if i < len(values) {
			v = values[i]
		}
		pairs[i] = fmt.Sprintf("%s=%q", n, v)
	}
	return strings.Join(pairs, ",")
}

func writeGauge(b *strings.Builder, name, help string, val int64) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s gauge\n", name)
	fmt.Fprintf(b, "%s %d\n\n", name, val)
}

func writeCounter(b *strings.Builder, name, help string, labels []string, store *counterStore) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s counter\n", name)
	for _, key := range store.keys() {
		fmt.Fprintf(b, "%s{%s} %d\n", name, labelPairs(labels, key), store.get(key))
	}
	b.WriteByte('\n')
}

func writeLabeledHistogram(b *strings.Builder, name, help string, labels []string, store *labeledHistogramStore) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s histogram\n", name)
	for _, key := range store.keys() {
		writeSingleHistogram(b, name, labelPairs(labels, key), store.get(key))
	}
	b.WriteByte('\n')
}

func writeSingleHistogram(b *strings.Builder, name, labels string, h *histogram) {
	cum := h.cumulativeBuckets()
	total := h.Count()

	prefix, suffix := "", ""
	if labels != "" {
		prefix = labels + ","
		suffix = "{" + labels + "}"
	}
	for i, boundary := range h.boundaries {
		fmt.Fprintf(b, "%s_bucket{%sle=\"%g\"} %d\n", name, prefix, boundary, cum[i])
	}
	fmt.Fprintf(b, "%s_bucket{%sle=\"+Inf\"} %d\n", name, prefix, total)
	fmt.Fprintf(b, "%s_sum%s %g\n", name, suffix, h.Sum())
	fmt.Fprintf(b, "%s_count%s %d\n", name, suffix, total)
}
