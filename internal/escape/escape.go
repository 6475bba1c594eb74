// Package escape implements the byte-level escaping, time formatting and
// basic-auth decoding helpers shared by the format compiler's parsers
// (C3). All of the byte-producing helpers write into a caller-supplied
// scratch.Region so that a transaction's captured values never outlive
// its own scratch lifetime.
package escape

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vklog/vklogd/internal/scratch"
)

// maxExpansion is the worst-case per-byte blow-up: a non-printable byte
// becomes a 4-digit zero-padded octal escape, \NNNN, preceded by the
// backslash, i.e. 5 bytes for 1.
const maxExpansion = 5

// needsEscape reports whether b must be escaped.
func needsEscape(b byte) (rune, bool) {
	switch b {
	case '\t':
		return 't', true
	case '\n':
		return 'n', true
	case '\r':
		return 'r', true
	case '\v':
		return 'v', true
	case '\f':
		return 'f', true
	case '"':
		return '"', true
	case '\'':
		return '\'', true
	case ' ':
		return ' ', true
	}
	return 0, false
}

// Escape copies src into r, replacing whitespace/quote control
// characters with their two-character C escapes and any other
// non-printable ASCII byte with a four-digit zero-padded octal escape
// (\oooo). It allocates 5*len(src) up front and rewinds the unused tail,
// per the reference implementation's worst-case-then-rewind strategy.
func Escape(r *scratch.Region, src []byte) []byte {
	if len(src) == 0 {
		return nil
	}
	buf := r.Alloc(len(src) * maxExpansion)
	n := 0
	for _, b := range src {
		if c, special := needsEscape(b); special {
			buf[n] = '\\'
			buf[n+1] = byte(c)
			n += 2
			continue
		}
		if b < 0x20 || b >= 0x7f {
			buf[n] = '\\'
			oct := strconv.FormatUint(uint64(b), 8)
			for len(oct) < 4 {
				oct = "0" + oct
			}
			copy(buf[n+1:], oct)
			n += 1 + len(oct)
			continue
		}
		buf[n] = b
		n++
	}
	r.Rewind(buf, len(buf)-n)
	return buf[:n]
}

// Unescape reverses Escape's documented table; used only by the escape
// round-trip property test (§8 property 4), not on any hot path.
func Unescape(src []byte) []byte {
	out := make([]byte, 0, len(src))
	for i := 0; i < len(src); i++ {
		if src[i] != '\\' || i+1 >= len(src) {
			out = append(out, src[i])
			continue
		}
		switch src[i+1] {
		case 't':
			out = append(out, '\t')
			i++
		case 'n':
			out = append(out, '\n')
			i++
		case 'r':
			out = append(out, '\r')
			i++
		case 'v':
			out = append(out, '\v')
			i++
		case 'f':
			out = append(out, '\f')
			i++
		case '"':
			out = append(out, '"')
			i++
		case '\'':
			out = append(out, '\'')
			i++
		case ' ':
			out = append(out, ' ')
			i++
		default:
			if i+4 < len(src) && isOctal(src[i+1]) && isOctal(src[i+2]) && isOctal(src[i+3]) && isOctal(src[i+4]) {
				v, _ := strconv.ParseUint(string(src[i+1:i+5]), 8, 8)
				out = append(out, byte(v))
				i += 4
			} else {
				out = append(out, src[i])
			}
		}
	}
	return out
}

func isOctal(b byte) bool { return b >= '0' && b <= '7' }

// DefaultTimeFormat is the strftime-compatible template used when the
// %t slot's brace name supplies no strftime override.
const DefaultTimeFormat = "[%d/%b/%Y:%T %z]"

// timeBufSize is the fixed buffer length the reference implementation
// formats into before rewinding the unused tail.
const timeBufSize = 64

// TimeFormat parses src as either an integer epoch-seconds string or an
// HTTP-date header value, then formats the result with a
// strftime-compatible template (default DefaultTimeFormat) into r.
// Parse failures return (nil, false) so the caller can fall back to the
// slot's configured default without logging (§7: parse errors are never
// logged).
func TimeFormat(r *scratch.Region, src []byte, format string) ([]byte, bool) {
	if format == "" {
		format = DefaultTimeFormat
	}
	t, ok := parseTimeValue(src)
	if !ok {
		return nil, false
	}

	buf := r.Alloc(timeBufSize)
	out := strftime(buf[:0], format, t)
	if len(out) > len(buf) {
		// Can't happen with a sane template, but never write OOB.
		out = out[:len(buf)]
	}
	n := copy(buf, out)
	r.Rewind(buf, len(buf)-n)
	return buf[:n], true
}

func parseTimeValue(src []byte) (time.Time, bool) {
	s := strings.TrimSpace(string(src))
	if s == "" {
		return time.Time{}, false
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), true
	}
	for _, layout := range []string{http.TimeFormat, time.RFC1123, time.RFC1123Z} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

var months = [...]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}
var days = [...]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// strftime implements the small subset of strftime conversions the
// letter table actually needs (%d %b %Y %H %M %S %T %z), appending to
// dst.
func strftime(dst []byte, format string, t time.Time) []byte {
	for i := 0; i < len(format); i++ {
		if format[i] != '%' || i+1 >= len(format) {
			dst = append(dst, format[i])
			continue
		}
		i++
		switch format[i] {
		case 'd':
			dst = append(dst, fmt.Sprintf("%02d", t.Day())...)
		case 'b':
			dst = append(dst, months[t.Month()-1]...)
		case 'Y':
			dst = append(dst, strconv.Itoa(t.Year())...)
		case 'H':
			dst = append(dst, fmt.Sprintf("%02d", t.Hour())...)
		case 'M':
			dst = append(dst, fmt.Sprintf("%02d", t.Minute())...)
		case 'S':
			dst = append(dst, fmt.Sprintf("%02d", t.Second())...)
		case 'T':
			dst = append(dst, fmt.Sprintf("%02d:%02d:%02d", t.Hour(), t.Minute(), t.Second())...)
		case 'a':
			dst = append(dst, days[t.Weekday()]...)
		case 'z':
			_, offset := t.Zone()
			sign := byte('+')
			if offset < 0 {
				sign = '-'
				offset = -offset
			}
			dst = append(dst, sign)
			dst = append(dst, fmt.Sprintf("%02d%02d", offset/3600, (offset%3600)/60)...)
		case '%':
			dst = append(dst, '%')
		default:
			dst = append(dst, '%', format[i])
		}
	}
	return dst
}

// maxBasicAuthDecoded caps the decoded length to guard stack/scratch use
// against pathological inputs.
const maxBasicAuthDecoded = 1000

// BasicAuthUser strips the literal, case-insensitive "basic " prefix,
// base64-decodes the remainder and truncates at the first ':',
// discarding the password. Decode failures, missing prefixes or decoded
// lengths over maxBasicAuthDecoded return (nil, false).
func BasicAuthUser(r *scratch.Region, src []byte, decode func([]byte) ([]byte, error)) ([]byte, bool) {
	const prefix = "basic "
	if len(src) < len(prefix) || !strings.EqualFold(string(src[:len(prefix)]), prefix) {
		return nil, false
	}

	decoded, err := decode(src[len(prefix):])
	if err != nil || len(decoded) > maxBasicAuthDecoded {
		return nil, false
	}

	if idx := indexByte(decoded, ':'); idx >= 0 {
		decoded = decoded[:idx]
	}

	buf := r.Alloc(len(decoded))
	copy(buf, decoded)
	return buf, true
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}
