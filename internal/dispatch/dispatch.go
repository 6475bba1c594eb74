// Package dispatch implements the tag dispatcher (C6): for each
// inbound tag it finds the handlers registered against that tag id,
// runs any parser, and fills the matching transaction's slots.
package dispatch

import (
	"bytes"

	"github.com/vklog/vklogd/internal/diag"
	"github.com/vklog/vklogd/internal/escape"
	"github.com/vklog/vklogd/internal/format"
	"github.com/vklog/vklogd/internal/txcache"
	"github.com/vklog/vklogd/internal/vsl"
)

// DefaultTagSizeMax is the tag.size.max config default.
const DefaultTagSizeMax = 2048

// Dispatcher runs on_tag against a transaction cache and a compiled
// set of per-tag handler lists. It is not safe for concurrent use;
// the reader drives it from a single goroutine (spec §5).
type Dispatcher struct {
	Cache      *txcache.Cache
	Handlers   func(vsl.TagID) []*format.Handler
	Templates  []*format.Template // index 0 = MAIN, 1 = KEY
	Counters   *diag.Counters
	TagSizeMax int
	Datacopy   bool
	EndTag     vsl.TagID
}

// OnTag implements spec §4.6. It returns the transaction record and
// whether tagID was the distinguished end-of-transaction tag.
func (d *Dispatcher) OnTag(r vsl.Record) (*txcache.Rec, bool) {
	if r.Spec == vsl.SpecNone {
		return nil, false
	}

	tx := d.Cache.Get(r.TxID)
	d.Counters.CurrentTransactionCount.Store(uint64(d.Cache.Len()))
	tx.TagsSeen |= r.SeenBitmap

	payload := r.Bytes
	max := d.TagSizeMax
	if max <= 0 {
		max = DefaultTagSizeMax
	}
	if len(payload) > max {
		payload = payload[:max]
		d.Counters.Truncated.Add(1)
	}

	overflowsBefore := tx.Scratch.Overflows

	for _, h := range d.Handlers(r.TagID) {
		m := tx.Slot(h.FconfIndex, h.SlotIndex)
		if m.Set {
			continue
		}
		if h.Spec&r.Spec == 0 {
			continue
		}

		val := payload
		if h.VarName != "" && !h.NoVarMatch {
			v, ok := matchVar(val, h.VarName)
			if !ok {
				continue
			}
			val = v
		}

		if h.Column > 0 {
			c, ok := format.Column(val, ' ', h.Column)
			if !ok {
				continue
			}
			val = c
		}

		if h.Parser != nil {
			ctx := &format.ParseContext{Scratch: tx.Scratch, Seq: d.Counters.PeekSeq}
			out, ok := h.Parser(ctx, h, val)
			if !ok {
				continue
			}
			d.matchAssign(tx, h.FconfIndex, h.SlotIndex, out)
		} else {
			d.matchAssign(tx, h.FconfIndex, h.SlotIndex, val)
		}
	}

	if tx.Scratch.Overflows > overflowsBefore {
		delta := uint64(tx.Scratch.Overflows - overflowsBefore)
		d.Counters.ScratchOverflows.Add(delta)
		d.Counters.OverflowBuffersAllocated.Add(delta)
	}

	return tx, r.TagID == d.EndTag
}

// matchVar requires payload to start with name (case-insensitive)
// followed by ':', then strips leading spaces to form the payload
// (spec §4.6 step 4).
func matchVar(payload []byte, name string) ([]byte, bool) {
	if len(payload) < len(name)+1 {
		return nil, false
	}
	if !bytes.EqualFold(payload[:len(name)], []byte(name)) {
		return nil, false
	}
	if payload[len(name)] != ':' {
		return nil, false
	}
	rest := payload[len(name)+1:]
	for len(rest) > 0 && rest[0] == ' ' {
		rest = rest[1:]
	}
	return rest, true
}

// matchAssign implements spec §4.6's match_assign: escape flag handling
// via scratch containment, global datacopy fallback, or a borrowed
// pointer.
func (d *Dispatcher) matchAssign(tx *txcache.Rec, fconf, slotIdx int, payload []byte) {
	slot := &d.Templates[fconf].Slots[slotIdx]

	var final []byte
	switch {
	case slot.Escape:
		src := payload
		if len(payload) > 0 && tx.Scratch.Contains(payload) {
			tmp := make([]byte, len(payload))
			copy(tmp, payload)
			src = tmp
		}
		final = escape.Escape(tx.Scratch, src)
	case d.Datacopy:
		buf := tx.Scratch.Alloc(len(payload))
		copy(buf, payload)
		final = buf
	default:
		final = payload
	}

	*tx.Slot(fconf, slotIdx) = txcache.Match{Bytes: final, Set: true}
}
