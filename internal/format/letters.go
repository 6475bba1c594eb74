package format

import "github.com/vklog/vklogd/internal/vsl"

// source is one candidate tag binding for a formatter letter, mirroring
// the reference implementation's static per-letter source table: the
// first matching tag observed for a transaction wins (spec §4.4).
type source struct {
	spec    vsl.Spec
	tag     vsl.TagID
	varName string // static var, used when the user supplied none
	fmtVar  string // fixed or "PREFIX:*" wildcard brace-name match
	column  int
	parser  Parser
	// acceptsUserVar marks a source whose static varName and fmtVar
	// are both empty by design, because it expects the user's brace
	// name itself to be the header to match against (%i, %o). Every
	// other "no var at all" source (e.g. %b's client Length entry)
	// must leave acceptsUserVar false so a brace name supplied for an
	// unrelated purpose (a JSON field override, say) never gets
	// reinterpreted as a match requirement the source was never meant
	// to have.
	acceptsUserVar bool
	noVarMatch     bool
}

type letterEntry struct {
	sources []source
	def     string
}

// letterTable is the closed set of formatter letters, copied verbatim
// from the reference implementation's format map. Nothing outside this
// table is a legal formatter.
var letterTable = map[byte]letterEntry{
	'b': {sources: []source{
		{spec: vsl.SpecClient, tag: vsl.TagLength},
		{spec: vsl.SpecBackend, tag: vsl.TagRxHeader, varName: "content-length"},
	}, def: "-"},
	'H': {sources: []source{
		{spec: vsl.SpecClient, tag: vsl.TagRxProtocol},
		{spec: vsl.SpecBackend, tag: vsl.TagTxProtocol},
	}, def: "HTTP/1.0"},
	'h': {sources: []source{
		{spec: vsl.SpecClient, tag: vsl.TagReqStart, column: 1},
		{spec: vsl.SpecBackend, tag: vsl.TagBackendOpen, parser: parseBackendOpen},
	}, def: "-"},
	'i': {sources: []source{
		{spec: vsl.SpecClient, tag: vsl.TagRxHeader, acceptsUserVar: true},
	}, def: "-"},
	'l': {sources: []source{
		{spec: vsl.SpecBoth, tag: vsl.TagNone},
	}, def: "-"},
	'm': {sources: []source{
		{spec: vsl.SpecClient, tag: vsl.TagRxRequest},
		{spec: vsl.SpecBackend, tag: vsl.TagTxRequest},
	}, def: "-"},
	'q': {sources: []source{
		{spec: vsl.SpecBoth, tag: vsl.TagRxURL, parser: parseQuerystring},
	}, def: ""},
	'o': {sources: []source{
		{spec: vsl.SpecClient, tag: vsl.TagTxHeader, acceptsUserVar: true},
	}, def: "-"},
	's': {sources: []source{
		{spec: vsl.SpecClient, tag: vsl.TagTxStatus},
		{spec: vsl.SpecBackend, tag: vsl.TagRxStatus},
	}, def: "-"},
	't': {sources: []source{
		{spec: vsl.SpecClient, tag: vsl.TagReqEnd, column: 3, parser: parseTime, noVarMatch: true},
		{spec: vsl.SpecBackend, tag: vsl.TagRxHeader, varName: "date", parser: parseTime, noVarMatch: true},
	}, def: "-"},
	'U': {sources: []source{
		{spec: vsl.SpecBoth, tag: vsl.TagRxURL, parser: parsePathWithoutQuery},
	}, def: "-"},
	'u': {sources: []source{
		{spec: vsl.SpecClient, tag: vsl.TagRxHeader, varName: "authorization", parser: parseBasicAuthUser},
		{spec: vsl.SpecBackend, tag: vsl.TagTxHeader, varName: "authorization", parser: parseBasicAuthUser},
	}, def: "-"},
	'x': {sources: []source{
		{spec: vsl.SpecClient, tag: vsl.TagReqEnd, fmtVar: "Varnish:time_firstbyte", column: 5},
		{spec: vsl.SpecClient, tag: vsl.TagReqEnd, fmtVar: "Varnish:xid", column: 1},
		{spec: vsl.SpecClient, tag: vsl.TagVCLCall, fmtVar: "Varnish:hitmiss", parser: parseHitmiss},
		{spec: vsl.SpecClient, tag: vsl.TagVCLCall, fmtVar: "Varnish:handling", parser: parseHandling},
		{spec: vsl.SpecClient, tag: vsl.TagVCLLog, fmtVar: "VCL_Log:*"},
	}, def: "-"},
	'n': {sources: []source{
		{spec: vsl.SpecBoth, tag: vsl.TagReqEnd, parser: parseSeq},
	}, def: "-"},
}

// braceSpec is the parsed content of a "{...}" block preceding a
// formatter letter.
type braceSpec struct {
	name    string
	hasDef  bool
	def     string
	json    string
	options map[string]bool
}

// parseBraceSpec parses "NAME(@NAME|?DEF|!OPTION)*" per spec §4.4.
func parseBraceSpec(body string) (braceSpec, error) {
	spec := braceSpec{options: map[string]bool{}}

	firstMod := indexAny(body, "@?!")
	var namePart string
	if firstMod < 0 {
		namePart = body
	} else {
		namePart = body[:firstMod]
	}
	spec.name = namePart

	if firstMod < 0 {
		return spec, nil
	}

	rest := body[firstMod:]
	for len(rest) > 0 {
		mod := rest[0]
		rest = rest[1:]
		next := indexAny(rest, "@?!")
		var payload string
		if next < 0 {
			payload = rest
			rest = ""
		} else {
			payload = rest[:next]
			rest = rest[next:]
		}

		switch mod {
		case '@':
			spec.json = payload
		case '?':
			spec.hasDef = true
			spec.def = payload
		case '!':
			switch {
			case equalFold(payload, "escape"):
				spec.options["escape"] = true
			case equalFold(payload, "num"):
				spec.options["num"] = true
			default:
				return braceSpec{}, errUnknownOption(payload)
			}
		}
	}

	return spec, nil
}

func indexAny(s string, chars string) int {
	for i := 0; i < len(s); i++ {
		for j := 0; j < len(chars); j++ {
			if s[i] == chars[j] {
				return i
			}
		}
	}
	return -1
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

type unknownOptionError string

func (e unknownOptionError) Error() string { return "unknown formatter option \"" + string(e) + "\"" }

func errUnknownOption(opt string) error { return unknownOptionError(opt) }
