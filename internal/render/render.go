// Package render implements the renderer (C7): it turns a completed
// transaction's matched slots into bytes (text or JSON) and drives the
// configured output adapter, in the reverse KEY-before-MAIN fconf
// order the MAIN template may depend on (spec §4.7).
package render

import (
	"bytes"

	jsoniter "github.com/json-iterator/go"

	"github.com/vklog/vklogd/internal/diag"
	"github.com/vklog/vklogd/internal/format"
	"github.com/vklog/vklogd/internal/output"
	"github.com/vklog/vklogd/internal/txcache"
)

// bufSize is the fixed text-rendering buffer; a formatter whose
// addition would overflow it is dropped and everything already
// written is emitted as-is (spec §4.7 step 3, "stop appending on
// overflow").
const bufSize = 8192

// Encoding selects how one fconf's slots are turned into bytes.
type Encoding int

const (
	EncodingString Encoding = iota
	EncodingJSON
)

// Fconf pairs a compiled template with its render-time settings.
type Fconf struct {
	Template *format.Template
	Encoding Encoding
	Kind     output.FconfKind
}

// Renderer owns the fconfs (index 0 = MAIN, 1 = KEY, reverse order at
// render time), the cache they came from, the output adapter, and the
// counters/sequence number they update.
type Renderer struct {
	Fconfs   []Fconf
	Cache    *txcache.Cache
	Adapter  output.Adapter
	Counters *diag.Counters

	// Filter, if non-nil, is the optional post-completion tagsSeen
	// matcher (spec §4.7 step 1, the -m flag); a transaction whose
	// tagsSeen does not satisfy it is reset without ever being
	// rendered.
	Filter func(tagsSeen uint64) bool
}

// Complete implements spec §4.7 in full for one completed transaction:
// the optional filter check, sequence assignment, per-fconf render and
// adapter dispatch in reverse order, and the final reset.
func (r *Renderer) Complete(tx *txcache.Rec) {
	if r.Filter != nil && !r.Filter(tx.TagsSeen) {
		r.Cache.Reset(tx)
		return
	}

	tx.Seq = r.Counters.NextSeq()

	for i := len(r.Fconfs) - 1; i >= 0; i-- {
		fc := r.Fconfs[i]
		var buf []byte
		switch fc.Encoding {
		case EncodingJSON:
			buf = renderJSON(fc.Template, tx.Matches[i])
		default:
			buf = renderText(fc.Template, tx.Matches[i])
		}
		r.Adapter.Output(fc.Kind, tx, buf)
	}

	r.Cache.Reset(tx)
}

// renderText concatenates, in slot order, each slot's matched value
// or its default into a fixed bufSize buffer, stopping before any
// formatter whose addition would overflow it.
func renderText(tmpl *format.Template, matches []txcache.Match) []byte {
	buf := make([]byte, 0, bufSize)
	for i, slot := range tmpl.Slots {
		val := slot.Default
		if matches[i].Set {
			val = matches[i].Bytes
		}
		if slot.Literal {
			val = slot.Lit
		}
		if len(buf)+len(val) >= bufSize {
			break
		}
		buf = append(buf, val...)
	}
	return buf
}

// renderJSON emits one object with one field per dynamic slot (literal
// slots are omitted), numeric slots whose value is case-insensitively
// "nan" rendered as JSON null, and every other numeric slot's bytes
// passed through verbatim as the raw JSON number token.
func renderJSON(tmpl *format.Template, matches []txcache.Match) []byte {
	s := jsoniter.ConfigDefault.BorrowStream(nil)
	defer jsoniter.ConfigDefault.ReturnStream(s)

	s.WriteObjectStart()
	first := true
	for i, slot := range tmpl.Slots {
		if slot.Literal {
			continue
		}
		val := slot.Default
		if matches[i].Set {
			val = matches[i].Bytes
		}

		if !first {
			s.WriteMore()
		}
		first = false

		if slot.JSONName != "" {
			s.WriteObjectField(slot.JSONName)
		} else {
			s.WriteObjectField(string(slot.Code))
		}

		switch slot.Type {
		case format.ValueNumber:
			if len(val) == 3 && bytes.EqualFold(val, []byte("nan")) {
				s.WriteNil()
			} else {
				s.WriteRaw(string(val))
			}
		default:
			s.WriteString(string(val))
		}
	}
	s.WriteObjectEnd()

	out := make([]byte, len(s.Buffer()))
	copy(out, s.Buffer())
	return out
}
