package vsl

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nxadm/tail"
	"github.com/vklog/vklogd/pkg/log"
)

// jsonRecord is the on-disk shape a TailReader expects, one per line:
// {"tag":"ReqEnd","tx":7,"spec":"client","bytes":"...","seen":123}
type jsonRecord struct {
	Tag   string `json:"tag"`
	TxID  uint64 `json:"tx"`
	Spec  string `json:"spec"`
	Bytes string `json:"bytes"`
	Seen  uint64 `json:"seen"`
}

// TailReader is a reference Reader that tails a newline-delimited JSON
// log of tag records, standing in for the real shared-memory iterator
// during local simulation. The package tests do not use it; they feed
// vsl.Record values to the dispatcher directly. It is not a substitute for
// the accelerator's binary protocol, which spec §1 keeps out of scope.
type TailReader struct {
	byName map[string]TagID

	mu   sync.Mutex
	t    *tail.Tail
	stop chan struct{}
	once sync.Once
}

// NewTailReader opens path (created if missing, like `tail -F`) and
// prepares to dispatch the JSON records it contains.
func NewTailReader(path string, tagNames map[string]TagID) (*TailReader, error) {
	t, err := tail.TailFile(path, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Poll:     true,
		Location: &tail.SeekInfo{Whence: 2},
	})
	if err != nil {
		return nil, fmt.Errorf("vsl: tail %s: %w", path, err)
	}
	return &TailReader{
		byName: tagNames,
		t:      t,
		stop:   make(chan struct{}),
	}, nil
}

// Dispatch implements Reader.
func (r *TailReader) Dispatch(fn DispatchFunc) error {
	for {
		select {
		case <-r.stop:
			return nil
		case line, ok := <-r.t.Lines:
			if !ok {
				return nil
			}
			if line.Err != nil {
				log.Warnf("vsl: tail read error: %v", line.Err)
				continue
			}
			if line.Text == "" {
				continue
			}
			rec, err := r.decode(line.Text)
			if err != nil {
				log.Warnf("vsl: malformed record, skipped: %v", err)
				continue
			}
			fn(rec)
		}
	}
}

func (r *TailReader) decode(line string) (Record, error) {
	var jr jsonRecord
	if err := json.Unmarshal([]byte(line), &jr); err != nil {
		return Record{}, err
	}

	id, ok := r.byName[jr.Tag]
	if !ok {
		return Record{}, fmt.Errorf("unknown tag %q", jr.Tag)
	}

	var spec Spec
	switch jr.Spec {
	case "client":
		spec = SpecClient
	case "backend":
		spec = SpecBackend
	case "both":
		spec = SpecBoth
	default:
		spec = SpecNone
	}

	return Record{
		TagID:      id,
		TxID:       jr.TxID,
		Spec:       spec,
		Bytes:      []byte(jr.Bytes),
		SeenBitmap: jr.Seen,
	}, nil
}

// Stop implements Reader.
func (r *TailReader) Stop() {
	r.once.Do(func() { close(r.stop) })
}

// Close implements Reader.
func (r *TailReader) Close() error {
	r.Stop()
	return r.t.Stop()
}
