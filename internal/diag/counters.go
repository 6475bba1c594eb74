// Package diag implements the rate-limited diagnostics and counters
// component (C8): plain atomic counters, three independent rate
// limiters for error logging, and periodic structured stats emission.
package diag

import "sync/atomic"

// Counters are the plain unsigned counters named in spec §4.8. Every
// field is written with atomic operations since the producer's
// delivery callback runs on a producer-owned thread while everything
// else runs on the single dispatcher thread (spec §5).
type Counters struct {
	Tx                       atomic.Uint64
	TxErr                    atomic.Uint64
	ProducerDeliveryErrors   atomic.Uint64
	Truncated                atomic.Uint64
	ScratchOverflows         atomic.Uint64
	OverflowBuffersAllocated atomic.Uint64
	CurrentTransactionCount  atomic.Uint64
	SequenceNumber           atomic.Uint64
}

// Snapshot is a point-in-time copy of Counters suitable for JSON
// encoding in the stats document.
type Snapshot struct {
	Tx                       uint64 `json:"tx"`
	TxErr                    uint64 `json:"txerr"`
	ProducerDeliveryErrors   uint64 `json:"producer_delivery_errors"`
	Truncated                uint64 `json:"truncated"`
	ScratchOverflows         uint64 `json:"scratch_overflows"`
	OverflowBuffersAllocated uint64 `json:"overflow_buffers_allocated"`
	CurrentTransactionCount  uint64 `json:"current_transaction_count"`
	SequenceNumber           uint64 `json:"sequence_number"`
}

// Snapshot reads every counter into a Snapshot.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Tx:                       c.Tx.Load(),
		TxErr:                    c.TxErr.Load(),
		ProducerDeliveryErrors:   c.ProducerDeliveryErrors.Load(),
		Truncated:                c.Truncated.Load(),
		ScratchOverflows:         c.ScratchOverflows.Load(),
		OverflowBuffersAllocated: c.OverflowBuffersAllocated.Load(),
		CurrentTransactionCount:  c.CurrentTransactionCount.Load(),
		SequenceNumber:           c.SequenceNumber.Load(),
	}
}

// NextSeq atomically increments and returns the sequence number,
// exactly mirroring the reference implementation's ++conf.sequence_number
// at render time (spec §4.7 step 2).
func (c *Counters) NextSeq() uint64 {
	v := c.SequenceNumber.Add(1)
	return v
}

// PeekSeq returns the current sequence number without incrementing it,
// the value %n's parser reads (spec §9: the reference parser reads the
// counter before the render-time increment happens).
func (c *Counters) PeekSeq() uint64 {
	return c.SequenceNumber.Load()
}
