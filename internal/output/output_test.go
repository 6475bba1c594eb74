package output

import (
	"bytes"
	"testing"

	"github.com/vklog/vklogd/internal/txcache"
)

func TestStdoutWritesBufferPlusNewline(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)

	s.Output(Main, &txcache.Rec{}, []byte("hello"))
	s.Drain(0)

	if got := buf.String(); got != "hello\n" {
		t.Fatalf("got %q, want %q", got, "hello\n")
	}
}

func TestNullDiscards(t *testing.T) {
	var n Null
	n.Output(Main, &txcache.Rec{}, []byte("anything"))
	n.Poll()
	n.Drain(0)
}
