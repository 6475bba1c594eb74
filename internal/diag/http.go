package diag

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vklog/vklogd/pkg/log"
)

// gauges mirrors Counters as a set of Prometheus collectors, refreshed
// from a Counters snapshot on every scrape via prometheus.GaugeFunc.
// Modeled as gauges rather than counters since the underlying values
// are read from atomics owned by C8, not accumulated by this package.
type gauges struct {
	tx, txErr, producerDeliveryErrors prometheus.Gauge
	truncated, scratchOverflows       prometheus.Gauge
	overflowBuffersAllocated          prometheus.Gauge
	currentTransactionCount           prometheus.Gauge
	sequenceNumber                    prometheus.Gauge
}

func newGauges(reg *prometheus.Registry, c *Counters) *gauges {
	g := &gauges{}
	mk := func(name, help string, read func() float64) prometheus.Gauge {
		gg := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "vklogd",
			Name:      name,
			Help:      help,
		}, read)
		reg.MustRegister(gg)
		return gg
	}
	g.tx = mk("tx", "messages the bus output adapter published successfully", func() float64 { return float64(c.Tx.Load()) })
	g.txErr = mk("tx_errors", "transactions the output adapter failed to deliver", func() float64 { return float64(c.TxErr.Load()) })
	g.producerDeliveryErrors = mk("producer_delivery_errors", "asynchronous delivery failures reported by the bus producer", func() float64 { return float64(c.ProducerDeliveryErrors.Load()) })
	g.truncated = mk("truncated", "inbound tag payloads truncated to tag.size.max", func() float64 { return float64(c.Truncated.Load()) })
	g.scratchOverflows = mk("scratch_overflows", "scratch buffer overflows into heap-allocated storage", func() float64 { return float64(c.ScratchOverflows.Load()) })
	g.overflowBuffersAllocated = mk("overflow_buffers_allocated", "heap buffers allocated to service scratch overflows", func() float64 { return float64(c.OverflowBuffersAllocated.Load()) })
	g.currentTransactionCount = mk("current_transaction_count", "transactions currently tracked by the cache", func() float64 { return float64(c.CurrentTransactionCount.Load()) })
	g.sequenceNumber = mk("sequence_number", "last sequence number assigned to a rendered transaction", func() float64 { return float64(c.SequenceNumber.Load()) })
	return g
}

// HTTPServer exposes /metrics (Prometheus text exposition) and
// /healthz (plain liveness probe) alongside the structured stats file
// spec §4.8 requires; this is additive operational surface, not a
// substitute for it.
type HTTPServer struct {
	srv *http.Server
}

// NewHTTPServer builds the diagnostics router and registers c's
// counters against a fresh, private Prometheus registry so a vklogd
// process never collides with another collector sharing the default
// registry.
func NewHTTPServer(addr string, c *Counters) *HTTPServer {
	reg := prometheus.NewRegistry()
	newGauges(reg, c)

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	return &HTTPServer{srv: &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}}
}

// Start listens in the background; a bind failure is fatal since a
// requested diagnostics endpoint that silently never came up is worse
// than a loud startup error.
func (h *HTTPServer) Start() error {
	listener, err := net.Listen("tcp", h.srv.Addr)
	if err != nil {
		return fmt.Errorf("diag: listen %s: %w", h.srv.Addr, err)
	}
	go func() {
		if err := h.srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Errorf("diag: http server stopped: %v", err)
		}
	}()
	log.Notef("diagnostics HTTP server listening at %s", h.srv.Addr)
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (h *HTTPServer) Shutdown(ctx context.Context) error {
	return h.srv.Shutdown(ctx)
}
