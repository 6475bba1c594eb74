package diag

import (
	"os"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	jsoniter "github.com/json-iterator/go"

	"github.com/vklog/vklogd/pkg/log"
)

// StatsWriter periodically writes a Counters Snapshot as a JSON
// document to a file, matching the reference vk_log_stats document
// (spec §4.8). The file is reopened lazily on the next emission after
// Reopen is called, which is how a SIGHUP rotation request is honored
// without blocking the signal handler on file I/O.
type StatsWriter struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	reopen   bool
	counters *Counters
	sched    gocron.Scheduler
}

// NewStatsWriter opens path for appending (truncating any prior
// contents is left to the caller if that's desired; vklogd itself
// only ever appends across restarts) and returns a StatsWriter ready
// to be started.
func NewStatsWriter(path string, counters *Counters) (*StatsWriter, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &StatsWriter{path: path, file: f, counters: counters}, nil
}

// Start schedules periodic emission every interval until Stop is
// called, following the reference taskManager's gocron.DurationJob
// pattern.
func (w *StatsWriter) Start(interval time.Duration) error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	if _, err := s.NewJob(gocron.DurationJob(interval), gocron.NewTask(w.emit)); err != nil {
		return err
	}
	w.sched = s
	s.Start()
	return nil
}

// Stop shuts the scheduler down and closes the underlying file.
func (w *StatsWriter) Stop() {
	if w.sched != nil {
		if err := w.sched.Shutdown(); err != nil {
			log.Warnf("stats scheduler shutdown: %v", err)
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.file.Close()
}

// Reopen requests the stats file be closed and reopened before the
// next emission, the lazy-rotation behavior spec §4.8 calls for.
func (w *StatsWriter) Reopen() {
	w.mu.Lock()
	w.reopen = true
	w.mu.Unlock()
}

func (w *StatsWriter) emit() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.reopen {
		w.file.Close()
		f, err := os.OpenFile(w.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			log.Errorf("stats file reopen failed: %v", err)
			return
		}
		w.file = f
		w.reopen = false
	}

	doc, err := jsoniter.Marshal(w.counters.Snapshot())
	if err != nil {
		log.Errorf("stats marshal failed: %v", err)
		return
	}
	doc = append(doc, '\n')
	if _, err := w.file.Write(doc); err != nil {
		log.Warnf("stats write failed: %v", err)
	}
}
