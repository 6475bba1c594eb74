// Package driver implements the steady-state loop (C10): it drives the
// reader's Dispatch entry into the dispatcher and renderer, and wires
// TERM/INT/HUP/PIPE into the three-state graceful-then-forced shutdown
// sequence spec §4.10 and §5 describe.
package driver

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vklog/vklogd/internal/diag"
	"github.com/vklog/vklogd/internal/dispatch"
	"github.com/vklog/vklogd/internal/output"
	"github.com/vklog/vklogd/internal/render"
	"github.com/vklog/vklogd/internal/vsl"
	"github.com/vklog/vklogd/pkg/log"
)

// DrainTimeout bounds how long a graceful shutdown waits for the
// output adapter's outbound queue to empty before giving up.
const DrainTimeout = 10 * time.Second

// Driver owns the reader/renderer pair and the run-state counter that
// signal handling decrements (spec §4.10: 1 running, 0 draining, -1
// aborted).
type Driver struct {
	Reader     vsl.Reader
	Dispatcher *dispatch.Dispatcher
	Renderer   *render.Renderer
	Adapter    output.Adapter
	Stats      *diag.StatsWriter

	run atomic.Int32
}

// New returns a Driver in the running state.
func New(reader vsl.Reader, d *dispatch.Dispatcher, renderer *render.Renderer, adapter output.Adapter, stats *diag.StatsWriter) *Driver {
	drv := &Driver{Reader: reader, Dispatcher: d, Renderer: renderer, Adapter: adapter, Stats: stats}
	drv.run.Store(1)
	return drv
}

// Run blocks until the reader's Dispatch loop and the signal handler
// both return, implementing spec §4.10's steady state and shutdown
// sequence. It returns the process exit code (0 normal, 1 on a reader
// error).
func (d *Driver) Run() int {
	signal.Ignore(syscall.SIGPIPE)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	g := new(errgroup.Group)

	g.Go(func() error {
		return d.Reader.Dispatch(func(r vsl.Record) bool {
			tx, complete := d.Dispatcher.OnTag(r)
			if complete {
				d.Renderer.Complete(tx)
			}
			d.Adapter.Poll()
			return complete
		})
	})

	g.Go(func() error {
		d.watchSignals(sigs, hup)
		return nil
	})

	err := g.Wait()
	if err != nil {
		log.Errorf("reader dispatch stopped with error: %v", err)
		return 1
	}
	return 0
}

// watchSignals implements the TERM/INT graceful-then-forced sequence
// and the independent HUP stats-reopen request, exiting when a second
// TERM/INT arrives after the first has started a drain, or forcing an
// immediate process exit on a third.
func (d *Driver) watchSignals(sigs, hup <-chan os.Signal) {
	for {
		select {
		case <-sigs:
			switch d.run.Add(-1) {
			case 0:
				log.Note("shutdown requested, draining")
				d.Reader.Stop()
				go func() {
					d.Adapter.Drain(int(DrainTimeout / time.Millisecond))
					d.Reader.Close()
				}()
			case -1:
				log.Note("second shutdown signal, forcing immediate drain")
				d.Adapter.Drain(0)
				// Keep watching in the background so a third signal
				// still reaches the abort branch below.
				go d.watchSignals(sigs, hup)
				return
			default:
				log.Crit("third shutdown signal, aborting")
				os.Exit(1)
			}
		case <-hup:
			log.Note("reopening stats file")
			if d.Stats != nil {
				d.Stats.Reopen()
			}
		}
	}
}
