package output

import (
	"bufio"
	"io"

	"github.com/vklog/vklogd/internal/txcache"
)

// Stdout writes every buffer it is handed to w, followed by a newline,
// matching the reference out_stdout. A KEY render is printed as a line
// of its own just like a MAIN one.
type Stdout struct {
	w *bufio.Writer
}

// NewStdout wraps w in a buffered writer; callers must Drain (or
// otherwise flush) before process exit.
func NewStdout(w io.Writer) *Stdout {
	return &Stdout{w: bufio.NewWriter(w)}
}

func (s *Stdout) Output(kind FconfKind, rec *txcache.Rec, buf []byte) {
	s.w.Write(buf)
	s.w.WriteByte('\n')
}

func (s *Stdout) Poll() {}

func (s *Stdout) Drain(timeoutMs int) {
	s.w.Flush()
}
