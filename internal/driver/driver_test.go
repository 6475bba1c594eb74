package driver

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vklog/vklogd/internal/diag"
	"github.com/vklog/vklogd/internal/output"
	"github.com/vklog/vklogd/internal/txcache"
	"github.com/vklog/vklogd/internal/vsl"
)

type fakeReader struct {
	mu      sync.Mutex
	stopped bool
	closed  bool
}

func (f *fakeReader) Dispatch(fn vsl.DispatchFunc) error { return nil }
func (f *fakeReader) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}
func (f *fakeReader) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}
func (f *fakeReader) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

type fakeAdapter struct {
	mu         sync.Mutex
	drainCalls []int
}

func (f *fakeAdapter) Output(output.FconfKind, *txcache.Rec, []byte) {}
func (f *fakeAdapter) Poll()                                         {}
func (f *fakeAdapter) Drain(timeoutMs int) {
	f.mu.Lock()
	f.drainCalls = append(f.drainCalls, timeoutMs)
	f.mu.Unlock()
}

func TestWatchSignalsFirstSignalStartsGracefulDrain(t *testing.T) {
	reader := &fakeReader{}
	adapter := &fakeAdapter{}
	d := &Driver{Reader: reader, Adapter: adapter}
	d.run.Store(1)

	sigs := make(chan os.Signal, 1)
	hup := make(chan os.Signal, 1)

	done := make(chan struct{})
	go func() {
		d.watchSignals(sigs, hup)
		close(done)
	}()

	sigs <- os.Interrupt
	time.Sleep(20 * time.Millisecond)

	assert.True(t, reader.isStopped(), "expected reader.Stop() to have been called after the first signal")
	assert.Equal(t, int32(0), d.run.Load())

	sigs <- os.Interrupt
	<-done

	assert.Equal(t, int32(-1), d.run.Load())

	adapter.mu.Lock()
	calls := len(adapter.drainCalls)
	adapter.mu.Unlock()
	assert.NotZero(t, calls, "expected at least one Drain call")
}

func TestWatchSignalsHupReopensStats(t *testing.T) {
	reader := &fakeReader{}
	adapter := &fakeAdapter{}

	dir := t.TempDir()
	stats, err := diag.NewStatsWriter(dir+"/stats.json", &diag.Counters{})
	require.NoError(t, err)
	defer stats.Stop()

	d := &Driver{Reader: reader, Adapter: adapter, Stats: stats}
	d.run.Store(1)

	sigs := make(chan os.Signal, 1)
	hup := make(chan os.Signal, 1)

	done := make(chan struct{})
	go func() {
		d.watchSignals(sigs, hup)
		close(done)
	}()

	hup <- os.Interrupt
	time.Sleep(20 * time.Millisecond)
	assert.False(t, reader.isStopped(), "HUP alone must not stop the reader")

	sigs <- os.Interrupt
	sigs <- os.Interrupt
	<-done
}
