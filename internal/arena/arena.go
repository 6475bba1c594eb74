// Package arena implements a deduplicated constant-string store used by
// the format compiler to hold literal template fragments and formatter
// defaults. It is written once at compile time and read many times
// afterwards, so it carries no locking: callers must finish interning
// before handing the arena to concurrent readers.
package arena

import "bytes"

const initialCapacity = 256

// Arena is a growable byte buffer that deduplicates substrings on a
// best-effort basis. It is sized for dozens-to-hundreds of short
// literals; the substring search is O(n) per Intern call, which is fine
// at that scale and avoided entirely once compilation is done.
type Arena struct {
	buf []byte
}

// New returns an empty Arena.
func New() *Arena {
	return &Arena{buf: make([]byte, 0, initialCapacity)}
}

// Intern returns a slice backed by the arena containing the bytes of s.
// If s already occurs somewhere in the arena, the existing occurrence is
// returned instead of appending a duplicate. The returned slice is only
// valid for the lifetime of the Arena and must not be mutated.
func (a *Arena) Intern(s []byte) []byte {
	if len(s) == 0 {
		return a.buf[:0]
	}
	if idx := bytes.Index(a.buf, s); idx >= 0 {
		return a.buf[idx : idx+len(s) : idx+len(s)]
	}
	return a.append(s)
}

// InternString is a convenience wrapper around Intern for string literals
// encountered while parsing.
func (a *Arena) InternString(s string) []byte {
	return a.Intern([]byte(s))
}

func (a *Arena) append(s []byte) []byte {
	if cap(a.buf)-len(a.buf) < len(s) {
		a.grow(len(s))
	}
	start := len(a.buf)
	a.buf = append(a.buf, s...)
	return a.buf[start : start+len(s) : start+len(s)]
}

// grow doubles capacity (with headroom for the incoming write) rather
// than growing exactly to need, so repeated small interns amortize to
// O(1).
func (a *Arena) grow(need int) {
	newCap := cap(a.buf) * 2
	if newCap < len(a.buf)+need {
		newCap = len(a.buf) + need
	}
	if newCap < initialCapacity {
		newCap = initialCapacity
	}
	next := make([]byte, len(a.buf), newCap)
	copy(next, a.buf)
	a.buf = next
}

// Len reports the number of bytes currently stored, for diagnostics and
// tests.
func (a *Arena) Len() int {
	return len(a.buf)
}
