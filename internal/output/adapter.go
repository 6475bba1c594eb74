// Package output implements the output adapters (C9): bus, stdout and
// null, all sharing the same (fconf, rec, buf) signature the renderer
// drives them with.
package output

import "github.com/vklog/vklogd/internal/txcache"

// FconfKind distinguishes the MAIN and KEY fconfs, since the bus
// adapter treats a KEY render differently from a MAIN one.
type FconfKind int

const (
	Main FconfKind = iota
	Key
)

// Adapter is the sink a rendered buffer is handed to. Output is called
// once per fconf per completed transaction, in the renderer's
// KEY-before-MAIN order (spec §4.7 step 3). Poll drives any pending
// delivery callbacks and must never block. Drain waits for outstanding
// work to finish or the deadline to pass, whichever comes first.
type Adapter interface {
	Output(kind FconfKind, rec *txcache.Rec, buf []byte)
	Poll()
	Drain(timeoutMs int)
}
