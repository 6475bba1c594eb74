package output

import "github.com/vklog/vklogd/internal/txcache"

// Null discards every render, matching the reference out_null (used
// for benchmarking the pipeline without a live bus).
type Null struct{}

func (Null) Output(FconfKind, *txcache.Rec, []byte) {}
func (Null) Poll()                                  {}
func (Null) Drain(int)                              {}
