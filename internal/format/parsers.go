package format

import (
	"encoding/base64"
	"strconv"

	"github.com/vklog/vklogd/internal/escape"
)

// Column splits payload on delim and returns the col'th (1-based)
// non-empty token; runs of delim collapse and empty tokens are
// skipped, matching the reference implementation's column_get. It is
// exported for the dispatcher's generic single-column extraction
// (spec §4.6).
func Column(payload []byte, delim byte, col int) ([]byte, bool) {
	n := 0
	start := -1
	for i := 0; i <= len(payload); i++ {
		atEnd := i == len(payload)
		if !atEnd && payload[i] != delim {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			n++
			if n == col {
				return payload[start:i], true
			}
			start = -1
		}
	}
	return nil, false
}

// parseBackendOpen takes the BackendOpen record's first space-delimited
// column, falling back to the second column when the first is the
// literal "default" (spec §9 pins this from the reference parser).
func parseBackendOpen(ctx *ParseContext, h *Handler, payload []byte) ([]byte, bool) {
	col1, ok := Column(payload, ' ', 1)
	if !ok {
		return nil, false
	}
	val := col1
	if string(col1) == "default" {
		col2, ok2 := Column(payload, ' ', 2)
		if !ok2 {
			return nil, false
		}
		val = col2
	}
	return val, true
}

// parsePathWithoutQuery implements %U: the URL up to (excluding) the
// first '?', or the whole thing if there is none.
func parsePathWithoutQuery(ctx *ParseContext, h *Handler, payload []byte) ([]byte, bool) {
	for i, b := range payload {
		if b == '?' {
			return payload[:i], true
		}
	}
	return payload, true
}

// parseQuerystring implements %q: everything from the first '?'
// onward, including the '?' itself; no match at all (not even a bare
// "?") when the URL carries no query.
func parseQuerystring(ctx *ParseContext, h *Handler, payload []byte) ([]byte, bool) {
	for i, b := range payload {
		if b == '?' {
			return payload[i:], true
		}
	}
	return nil, false
}

// parseTime implements %t: parses payload as an epoch-seconds integer
// or an HTTP-date, then formats it with the handler's VarName as a
// strftime override when the template supplied one, else the default
// template (spec §9: the reference parser reuses the var slot for a
// custom format string on this one formatter since it never matches
// on a var name).
func parseTime(ctx *ParseContext, h *Handler, payload []byte) ([]byte, bool) {
	format := h.VarName
	return escape.TimeFormat(ctx.Scratch, payload, format)
}

// parseBasicAuthUser implements %u.
func parseBasicAuthUser(ctx *ParseContext, h *Handler, payload []byte) ([]byte, bool) {
	return escape.BasicAuthUser(ctx.Scratch, payload, decodeBase64)
}

func decodeBase64(src []byte) ([]byte, error) {
	dst := make([]byte, base64.StdEncoding.DecodedLen(len(src)))
	n, err := base64.StdEncoding.Decode(dst, src)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}

// parseHitmiss implements %{Varnish:hitmiss}x: "hit" passes through,
// "miss" and "pass" both normalize to "miss" (spec §9 pins this).
func parseHitmiss(ctx *ParseContext, h *Handler, payload []byte) ([]byte, bool) {
	switch string(payload) {
	case "hit":
		return payload, true
	case "miss", "pass":
		return []byte("miss"), true
	}
	return nil, false
}

// parseHandling implements %{Varnish:handling}x: the raw verb, not
// normalized (spec §9: callers wanting the raw verb use this one).
func parseHandling(ctx *ParseContext, h *Handler, payload []byte) ([]byte, bool) {
	switch string(payload) {
	case "hit", "miss", "pass":
		return payload, true
	}
	return nil, false
}

// parseSeq implements %n: the current sequence counter, i.e. the number
// assigned to the most recent completed render, read without
// incrementing it; this transaction's own render is then assigned the
// following number (mirroring
// the reference implementation's parse_seq, which reads conf.sequence_
// number before render_match's pre-increment).
func parseSeq(ctx *ParseContext, h *Handler, payload []byte) ([]byte, bool) {
	buf := ctx.Scratch.Alloc(20)
	n := len(strconv.AppendUint(buf[:0], ctx.Seq(), 10))
	ctx.Scratch.Rewind(buf, len(buf)-n)
	return buf[:n], true
}
