package dispatch

import (
	"testing"

	"github.com/vklog/vklogd/internal/arena"
	"github.com/vklog/vklogd/internal/diag"
	"github.com/vklog/vklogd/internal/format"
	"github.com/vklog/vklogd/internal/txcache"
	"github.com/vklog/vklogd/internal/vsl"
)

func newDispatcher(t *testing.T, tmplSrc string) (*Dispatcher, *format.Template) {
	t.Helper()
	a := arena.New()
	c := format.NewCompiler(a, "testhost")
	tmpl, err := c.Compile(tmplSrc, 0)
	if err != nil {
		t.Fatalf("compile %q: %v", tmplSrc, err)
	}

	cache := txcache.New(16, 5, 4096, []int{len(tmpl.Slots)}, func() int64 { return 0 })
	d := &Dispatcher{
		Cache:      cache,
		Handlers:   c.Handlers,
		Templates:  []*format.Template{tmpl},
		Counters:   &diag.Counters{},
		TagSizeMax: DefaultTagSizeMax,
		Datacopy:   true,
		EndTag:     vsl.TagReqEnd,
	}
	return d, tmpl
}

func slotValue(t *testing.T, tx *txcache.Rec, tmpl *format.Template, fconf, idx int) string {
	t.Helper()
	m := tx.Matches[fconf][idx]
	if m.Set {
		return string(m.Bytes)
	}
	return string(tmpl.Slots[idx].Default)
}

// TestScenarioS1PathAndQuerystring covers spec scenario S1.
func TestScenarioS1PathAndQuerystring(t *testing.T) {
	d, tmpl := newDispatcher(t, "%U%q")

	tx, complete := d.OnTag(vsl.Record{TagID: vsl.TagRxURL, TxID: 7, Spec: vsl.SpecClient, Bytes: []byte("/a/b?k=1&m=2")})
	if complete {
		t.Fatalf("RxURL must not complete the transaction")
	}
	tx, complete = d.OnTag(vsl.Record{TagID: vsl.TagReqEnd, TxID: 7, Spec: vsl.SpecClient})
	if !complete {
		t.Fatalf("ReqEnd must complete the transaction")
	}

	if got := slotValue(t, tx, tmpl, 0, 0); got != "/a/b" {
		t.Fatalf("%%U = %q, want /a/b", got)
	}
	if got := slotValue(t, tx, tmpl, 0, 1); got != "?k=1&m=2" {
		t.Fatalf("%%q = %q, want ?k=1&m=2", got)
	}
}

// TestScenarioS2DefaultFallback covers spec scenario S2.
func TestScenarioS2DefaultFallback(t *testing.T) {
	d, tmpl := newDispatcher(t, "%{X-Y?-}i")

	tx, _ := d.OnTag(vsl.Record{TagID: vsl.TagReqEnd, TxID: 1, Spec: vsl.SpecClient})

	if got := slotValue(t, tx, tmpl, 0, 0); got != "-" {
		t.Fatalf("expected default \"-\", got %q", got)
	}
}

// TestScenarioS3BasicAuthUser covers spec scenario S3.
func TestScenarioS3BasicAuthUser(t *testing.T) {
	d, tmpl := newDispatcher(t, "%u")

	tx, _ := d.OnTag(vsl.Record{TagID: vsl.TagRxHeader, TxID: 1, Spec: vsl.SpecClient, Bytes: []byte("authorization: Basic YWxpY2U6c2VjcmV0")})
	tx, complete := d.OnTag(vsl.Record{TagID: vsl.TagReqEnd, TxID: 1, Spec: vsl.SpecClient})
	if !complete {
		t.Fatalf("expected completion")
	}

	if got := slotValue(t, tx, tmpl, 0, 0); got != "alice" {
		t.Fatalf("%%u = %q, want alice", got)
	}
}

// TestScenarioS4HitmissNormalization covers spec scenario S4.
func TestScenarioS4HitmissNormalization(t *testing.T) {
	d, tmpl := newDispatcher(t, "%{Varnish:hitmiss}x")

	d.OnTag(vsl.Record{TagID: vsl.TagVCLCall, TxID: 1, Spec: vsl.SpecClient, Bytes: []byte("pass")})
	tx, _ := d.OnTag(vsl.Record{TagID: vsl.TagReqEnd, TxID: 1, Spec: vsl.SpecClient})

	if got := slotValue(t, tx, tmpl, 0, 0); got != "miss" {
		t.Fatalf("%%{Varnish:hitmiss}x = %q, want miss (pass normalizes to miss)", got)
	}
}

// TestScenarioS5JSONWithNameAndNum covers spec scenario S5's var-match
// half: a brace name given for a source with no var of its own (%b's
// client Length entry has neither a static var nor an fmtVar gate)
// must not be reinterpreted as a match requirement, or the handler
// never fires and the slot falls back to its default. See
// internal/render's TestScenarioS5JSONWithNameAndNum for the JSON
// encoding half.
func TestScenarioS5JSONWithNameAndNum(t *testing.T) {
	d, tmpl := newDispatcher(t, "%{bytes@b!num}b")

	d.OnTag(vsl.Record{TagID: vsl.TagLength, TxID: 1, Spec: vsl.SpecClient, Bytes: []byte("1234")})
	tx, complete := d.OnTag(vsl.Record{TagID: vsl.TagReqEnd, TxID: 1, Spec: vsl.SpecClient})
	if !complete {
		t.Fatalf("expected completion")
	}

	if got := slotValue(t, tx, tmpl, 0, 0); got != "1234" {
		t.Fatalf("%%{bytes@b!num}b = %q, want 1234 (bare brace name must not gate a source with no var of its own)", got)
	}
}

// TestScenarioS6KeyValuePair covers spec scenario S6's dispatch half:
// the KEY template's handler (Varnish:xid, column 1) and the MAIN
// template's handler (RxURL) are independent slots in the same
// transaction, both captured off the same ReqEnd-terminated run. See
// internal/render's TestScenarioS6KeyValuePair for the full KEY-before-
// MAIN render and bus-adapter key-passing behavior.
func TestScenarioS6KeyValuePair(t *testing.T) {
	a := arena.New()
	c := format.NewCompiler(a, "testhost")
	mainTmpl, err := c.Compile("%U", 0)
	if err != nil {
		t.Fatalf("compile MAIN: %v", err)
	}
	keyTmpl, err := c.Compile("%{Varnish:xid}x", 1)
	if err != nil {
		t.Fatalf("compile KEY: %v", err)
	}

	cache := txcache.New(16, 5, 4096, []int{len(mainTmpl.Slots), len(keyTmpl.Slots)}, func() int64 { return 0 })
	d := &Dispatcher{
		Cache:      cache,
		Handlers:   c.Handlers,
		Templates:  []*format.Template{mainTmpl, keyTmpl},
		Counters:   &diag.Counters{},
		TagSizeMax: DefaultTagSizeMax,
		Datacopy:   true,
		EndTag:     vsl.TagReqEnd,
	}

	d.OnTag(vsl.Record{TagID: vsl.TagRxURL, TxID: 1, Spec: vsl.SpecClient, Bytes: []byte("/a")})
	tx, complete := d.OnTag(vsl.Record{TagID: vsl.TagReqEnd, TxID: 1, Spec: vsl.SpecClient, Bytes: []byte("1234567 ...")})
	if !complete {
		t.Fatalf("expected completion")
	}

	if got := slotValue(t, tx, mainTmpl, 0, 0); got != "/a" {
		t.Fatalf("MAIN %%U = %q, want /a", got)
	}
	if got := slotValue(t, tx, keyTmpl, 1, 0); got != "1234567" {
		t.Fatalf("KEY %%{Varnish:xid}x = %q, want 1234567", got)
	}
}

// TestFirstTagWins covers property 2: once a slot is matched, a later
// tag for the same slot within the same transaction is ignored.
func TestFirstTagWins(t *testing.T) {
	d, tmpl := newDispatcher(t, "%{User-Agent}i")

	d.OnTag(vsl.Record{TagID: vsl.TagRxHeader, TxID: 1, Spec: vsl.SpecClient, Bytes: []byte("User-Agent: curl")})
	d.OnTag(vsl.Record{TagID: vsl.TagRxHeader, TxID: 1, Spec: vsl.SpecClient, Bytes: []byte("User-Agent: wget")})
	tx, _ := d.OnTag(vsl.Record{TagID: vsl.TagReqEnd, TxID: 1, Spec: vsl.SpecClient})

	if got := slotValue(t, tx, tmpl, 0, 0); got != "curl" {
		t.Fatalf("expected first payload to win, got %q", got)
	}
}

// TestSpecZeroIsNoop covers spec §4.6 step 1.
func TestSpecZeroIsNoop(t *testing.T) {
	d, _ := newDispatcher(t, "%m")
	_, complete := d.OnTag(vsl.Record{TagID: vsl.TagReqEnd, TxID: 1, Spec: vsl.SpecNone})
	if complete {
		t.Fatalf("spec == 0 must be a no-op, never completing")
	}
}

// TestTagSizeMaxTruncates covers the tag.size.max truncation counter.
func TestTagSizeMaxTruncates(t *testing.T) {
	d, tmpl := newDispatcher(t, "%m")
	d.TagSizeMax = 4

	tx, _ := d.OnTag(vsl.Record{TagID: vsl.TagRxRequest, TxID: 1, Spec: vsl.SpecClient, Bytes: []byte("GETMORE")})
	d.OnTag(vsl.Record{TagID: vsl.TagReqEnd, TxID: 1, Spec: vsl.SpecClient})

	if got := slotValue(t, tx, tmpl, 0, 0); got != "GETM" {
		t.Fatalf("expected truncation to 4 bytes, got %q", got)
	}
	if d.Counters.Truncated.Load() != 1 {
		t.Fatalf("expected truncated counter to be 1, got %d", d.Counters.Truncated.Load())
	}
}
