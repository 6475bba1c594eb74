// Package format implements the template compiler (C4): it turns a
// one-line printf-like template into a fixed plan of output slots and
// the per-tag handlers that fill them.
package format

import (
	"fmt"

	"github.com/vklog/vklogd/internal/arena"
	"github.com/vklog/vklogd/internal/scratch"
	"github.com/vklog/vklogd/internal/vsl"
)

// ValueType distinguishes string-typed slots (JSON-string, quoted) from
// number-typed ones (JSON-number, raw).
type ValueType int

const (
	ValueString ValueType = iota
	ValueNumber
)

// Slot is one output position of a compiled template, in template
// order. A literal slot carries its arena-interned bytes verbatim; a
// dynamic slot is filled by zero or more Handlers at dispatch time and
// falls back to Default when nothing matched by render time.
type Slot struct {
	Literal  bool
	Lit      []byte
	Code     byte
	VarName  string
	Default  []byte
	JSONName string
	Type     ValueType
	Escape   bool
	Index    int
}

// ParseContext is threaded through every Parser invocation so parsers
// can allocate scratch-owned bytes and read the render-time sequence
// counter without reaching for process-global state.
type ParseContext struct {
	Scratch *scratch.Region
	Seq     func() uint64
}

// Parser extracts and/or transforms a matched payload and returns the
// final bytes, which the dispatcher then stores through match
// assignment; a parser that can't produce a value returns ok=false and
// the slot keeps its default.
type Parser func(ctx *ParseContext, tag *Handler, payload []byte) (value []byte, ok bool)

// Handler binds one tag id to one dynamic slot. FconfIndex distinguishes
// MAIN (0) from KEY (1) so a single shared per-tag handler list can
// serve both templates.
type Handler struct {
	Spec       vsl.Spec
	Tag        vsl.TagID
	SlotIndex  int
	VarName    string
	Column     int
	Parser     Parser
	NoVarMatch bool
	FconfIndex int
}

// Template is the compiled output of one format string.
type Template struct {
	Slots []Slot
}

// Compiler accumulates slots and handlers across both the MAIN and KEY
// templates of one configuration, since handlers for both share the
// same per-tag dispatch lists (spec §4.3, "Handler map addressing").
type Compiler struct {
	arena    *arena.Arena
	hostname []byte
	handlers [tagCount][]*Handler
}

const tagCount = 16 // len of vsl.TagID's closed enum, mirrored here to size the table without importing the unexported constant.

// NewCompiler returns a Compiler that interns literals and defaults
// into the given arena. hostname is the value substituted for %l.
func NewCompiler(a *arena.Arena, hostname string) *Compiler {
	return &Compiler{arena: a, hostname: []byte(hostname)}
}

// Handlers returns the accumulated per-tag handler lists, in
// registration order, across every template compiled so far.
func (c *Compiler) Handlers(tag vsl.TagID) []*Handler {
	return c.handlers[tag]
}

// Compile parses one format string into a Template, registering its
// handlers under fconfIndex (0 = MAIN, 1 = KEY per spec's fconf
// glossary entry). The "%r" legacy alias is expanded before parsing.
func (c *Compiler) Compile(raw string, fconfIndex int) (*Template, error) {
	src := expandLegacy(raw)
	if src == "" {
		return nil, fmt.Errorf("format: empty template")
	}

	tmpl := &Template{}
	dynCount := 0

	i := 0
	litStart := 0
	flushLiteral := func(end int) {
		if end > litStart {
			lit := c.arena.InternString(src[litStart:end])
			tmpl.Slots = append(tmpl.Slots, Slot{
				Literal: true,
				Lit:     lit,
				Index:   len(tmpl.Slots),
			})
		}
	}

	for i < len(src) {
		if src[i] != '%' {
			i++
			continue
		}
		flushLiteral(i)
		begin := i
		i++
		if i >= len(src) {
			return nil, fmt.Errorf("format: trailing %%%s", context(src, begin))
		}

		var spec braceSpec
		hasSpec := false
		if src[i] == '{' {
			end := indexByte(src[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("format: expecting '}' after %q", context(src, begin))
			}
			end += i + 1
			body := src[i+1 : end]
			if body == "" {
				return nil, fmt.Errorf("format: empty {} identifier at %q", context(src, begin))
			}
			if end+1 >= len(src) {
				return nil, fmt.Errorf("format: no formatter following identifier at %q", context(src, begin))
			}
			parsed, err := parseBraceSpec(body)
			if err != nil {
				return nil, fmt.Errorf("format: %s at %q", err, context(src, begin))
			}
			spec = parsed
			hasSpec = true
			i = end + 1
		}

		letter := src[i]
		i++
		litStart = i

		entry, ok := letterTable[letter]
		if !ok {
			return nil, fmt.Errorf("format: unknown formatter '%c' at %q", letter, context(src, begin))
		}

		var userVar string
		hasUserVar := hasSpec && spec.name != ""

		valType := ValueString
		if hasSpec && spec.options["num"] {
			valType = ValueNumber
		}

		def := entry.def
		if letter == 'l' {
			def = string(c.hostname)
		}
		hasDefOverride := hasSpec && spec.hasDef
		if hasDefOverride {
			def = spec.def
		} else if valType == ValueNumber {
			def = "0"
		}

		slotIdx := len(tmpl.Slots)
		slot := Slot{
			Code:     letter,
			Default:  c.arena.InternString(def),
			Type:     valType,
			Index:    slotIdx,
			JSONName: string(letter),
		}
		if hasSpec && spec.name != "" {
			userVar = spec.name
			slot.VarName = userVar
		}
		if hasSpec && spec.json != "" {
			slot.JSONName = spec.json
		}
		if hasSpec && spec.options["escape"] {
			slot.Escape = true
		}
		tmpl.Slots = append(tmpl.Slots, slot)
		dynCount++

		for _, ent := range entry.sources {
			if ent.tag == 0 {
				continue
			}

			effVar := userVar
			effColumn := ent.column
			effParser := ent.parser

			switch {
			case ent.fmtVar != "":
				if !hasUserVar {
					continue
				}
				if _, prefix, iswc := wildcardPrefix(ent.fmtVar); iswc {
					if len(userVar) <= len(prefix) || userVar[:len(prefix)] != prefix {
						continue
					}
					effVar = userVar[len(prefix):]
				} else {
					if userVar != ent.fmtVar {
						continue
					}
					effVar = ""
				}
			case ent.varName != "":
				if effVar == "" {
					effVar = ent.varName
				}
			default:
				// No static var and no fmtVar gate: only a source
				// built to accept an arbitrary user-supplied header
				// name (%i, %o) may let the brace name become the
				// match requirement. Every other source with no var
				// of its own (e.g. %b's client Length entry) has
				// nothing to match against, even if the user
				// supplied a brace name for some other purpose (a
				// JSON field override, say).
				if !ent.acceptsUserVar {
					effVar = ""
				}
			}

			if letter == 't' && hasUserVar {
				// %{FMT}t overrides the strftime template rather
				// than requiring a var match; parseTime reads it
				// back off the handler's VarName.
				effVar = userVar
			}

			h := &Handler{
				Spec:       ent.spec,
				Tag:        ent.tag,
				SlotIndex:  slotIdx,
				VarName:    effVar,
				Column:     effColumn,
				Parser:     effParser,
				NoVarMatch: ent.noVarMatch,
				FconfIndex: fconfIndex,
			}
			c.handlers[ent.tag] = append(c.handlers[ent.tag], h)
		}
	}
	flushLiteral(len(src))

	if len(tmpl.Slots) == 0 {
		return nil, fmt.Errorf("format: template is empty")
	}
	if dynCount == 0 {
		return nil, fmt.Errorf("format: no %%.. formatters in template")
	}

	return tmpl, nil
}

// wildcardPrefix reports whether fmtVar is a "PREFIX:*" wildcard and,
// if so, returns the prefix including its trailing colon.
func wildcardPrefix(fmtVar string) (wildcard bool, prefix string, ok bool) {
	const marker = ":*"
	if len(fmtVar) > len(marker) && fmtVar[len(fmtVar)-len(marker):] == marker {
		return true, fmtVar[:len(fmtVar)-1], true
	}
	return false, "", false
}

func expandLegacy(s string) string {
	const legacy = "%r"
	const expansion = "%m http://%{Host?localhost}i%U%q %H"
	out := ""
	for {
		idx := indexOf(s, legacy)
		if idx < 0 {
			out += s
			break
		}
		out += s[:idx] + expansion
		s = s[idx+len(legacy):]
	}
	return out
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func indexByte(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}

// context returns up to 30 bytes of source starting at pos, for error
// messages (spec §7: "a pointed error message including <=30 bytes of
// context around the fault").
func context(src string, pos int) string {
	end := pos + 30
	if end > len(src) {
		end = len(src)
	}
	return src[pos:end] + "..."
}
