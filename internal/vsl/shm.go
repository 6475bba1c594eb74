package vsl

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// SharedLog maps the accelerator's shared-memory log segment read-only
// and exposes a byte-level read cursor over it. Opening and mapping the
// segment is real, wired infrastructure; decoding the accelerator's
// binary tag-record wire format from the mapped bytes is the
// accelerator's proprietary protocol and stays out of scope per spec §1
// — Unread only exposes the unread data currently visible so a
// real decoder could be layered on top later.
type SharedLog struct {
	f    *os.File
	data mmap.MMap
	pos  int
}

// OpenSharedLog mmaps path (the accelerator's log segment file or a
// /dev/shm-backed region) read-only.
func OpenSharedLog(path string) (*SharedLog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vsl: open shared log %s: %w", path, err)
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("vsl: mmap %s: %w", path, err)
	}

	return &SharedLog{f: f, data: data}, nil
}

// Unread returns the bytes of the segment not yet consumed by Advance.
// The accelerator's ring-buffer wraparound and record framing are part
// of its binary protocol and are not decoded here.
func (s *SharedLog) Unread() []byte {
	return s.data[s.pos:]
}

// Advance marks n bytes as consumed.
func (s *SharedLog) Advance(n int) {
	s.pos += n
	if s.pos > len(s.data) {
		s.pos = len(s.data)
	}
}

// Close unmaps the segment and closes the underlying file.
func (s *SharedLog) Close() error {
	if err := s.data.Unmap(); err != nil {
		s.f.Close()
		return fmt.Errorf("vsl: unmap: %w", err)
	}
	return s.f.Close()
}
