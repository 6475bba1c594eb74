package escape

import (
	"bytes"
	"testing"

	"github.com/vklog/vklogd/internal/scratch"
)

// TestEscapeUnescapeRoundTrip exercises property 4: escaping then
// unescaping any byte sequence yields the original sequence back.
func TestEscapeUnescapeRoundTrip(t *testing.T) {
	cases := [][]byte{
		[]byte("hello world"),
		[]byte("tab\there"),
		[]byte("line\nbreak\r\n"),
		[]byte("quote\"and'apostrophe"),
		{0x01, 0x02, 0x1f, 0x7f, 0xff},
		[]byte(""),
	}

	for _, c := range cases {
		r := scratch.New(256)
		escaped := Escape(r, c)
		got := Unescape(escaped)
		if !bytes.Equal(got, c) {
			t.Fatalf("round-trip mismatch: in=%q escaped=%q out=%q", c, escaped, got)
		}
	}
}

func TestEscapeSpace(t *testing.T) {
	r := scratch.New(64)
	out := Escape(r, []byte("a b"))
	if string(out) != `a\ b` {
		t.Fatalf("expected space to be escaped, got %q", out)
	}
}

func TestTimeFormatEpoch(t *testing.T) {
	r := scratch.New(64)
	out, ok := TimeFormat(r, []byte("0"), "%Y")
	if !ok {
		t.Fatalf("expected epoch parse to succeed")
	}
	if string(out) != "1970" {
		t.Fatalf("expected 1970, got %q", out)
	}
}

func TestTimeFormatInvalid(t *testing.T) {
	r := scratch.New(64)
	_, ok := TimeFormat(r, []byte("not-a-time"), "")
	if ok {
		t.Fatalf("expected invalid time value to fail")
	}
}

func TestBasicAuthUser(t *testing.T) {
	r := scratch.New(64)
	decode := func(b []byte) ([]byte, error) { return []byte("alice:secret"), nil }
	out, ok := BasicAuthUser(r, []byte("Basic YWxpY2U6c2VjcmV0"), decode)
	if !ok {
		t.Fatalf("expected basic auth parse to succeed")
	}
	if string(out) != "alice" {
		t.Fatalf("expected alice, got %q", out)
	}
}

func TestBasicAuthUserMissingPrefix(t *testing.T) {
	r := scratch.New(64)
	decode := func(b []byte) ([]byte, error) { return b, nil }
	_, ok := BasicAuthUser(r, []byte("Bearer abc"), decode)
	if ok {
		t.Fatalf("expected non-basic auth header to fail")
	}
}
