// Package vsl defines the boundary between vklogd's core pipeline and
// the accelerator's shared-memory transaction log. The real log
// iterator is an external collaborator (spec §1, out of scope): this
// package only pins the interface the dispatcher is driven through, plus
// two reference pieces for local simulation (a Reader that tails a JSON
// log of tag records, and a read-only mapping of the log segment) —
// neither implements the accelerator's real wire format.
package vsl

// Spec tags which side of the accelerator a record came from.
type Spec uint8

const (
	SpecNone    Spec = 0
	SpecClient  Spec = 1 << 0
	SpecBackend Spec = 1 << 1
	SpecBoth         = SpecClient | SpecBackend
)

// TagID identifies the kind of a tag record. The concrete numbering is
// owned by the accelerator; vklogd only needs a closed, comparable set
// matching the letter table in the format compiler.
type TagID uint8

const (
	TagNone TagID = iota
	TagLength
	TagRxProtocol
	TagTxProtocol
	TagReqStart
	TagBackendOpen
	TagRxHeader
	TagTxHeader
	TagRxRequest
	TagTxRequest
	TagRxURL
	TagTxStatus
	TagRxStatus
	TagReqEnd
	TagVCLCall
	TagVCLLog
	tagCount
)

// TagNames maps the accelerator's tag names to their TagID, the shape
// NewTailReader needs to decode the reference JSON log. Production
// deployments driving the real shared-memory reader don't need this;
// it exists for the TailReader/local-simulation path.
var TagNames = map[string]TagID{
	"Length":      TagLength,
	"RxProtocol":  TagRxProtocol,
	"TxProtocol":  TagTxProtocol,
	"ReqStart":    TagReqStart,
	"BackendOpen": TagBackendOpen,
	"RxHeader":    TagRxHeader,
	"TxHeader":    TagTxHeader,
	"RxRequest":   TagRxRequest,
	"TxRequest":   TagTxRequest,
	"RxURL":       TagRxURL,
	"TxStatus":    TagTxStatus,
	"RxStatus":    TagRxStatus,
	"ReqEnd":      TagReqEnd,
	"VCL_call":    TagVCLCall,
	"VCL_Log":     TagVCLLog,
}

// Record is a single tag delivered by the reader: borrowed bytes valid
// only until the callback returns (spec §3, "Tag record").
type Record struct {
	TagID      TagID
	TxID       uint64
	Spec       Spec
	Bytes      []byte
	SeenBitmap uint64
}

// DispatchFunc is called once per inbound tag record; it returns true
// when the record was the distinguished end-of-transaction tag, exactly
// mirroring C6's on_tag contract in spec §4.6.
type DispatchFunc func(Record) (complete bool)

// Reader is the external shared-memory log iterator. Dispatch blocks
// until at least one record is available (or Stop is called) and drives
// the given callback for each one; it returns when the reader is told to
// stop or hits a fatal read error.
type Reader interface {
	// Dispatch pulls pending records and invokes fn for each until Stop
	// is called or an unrecoverable error occurs.
	Dispatch(fn DispatchFunc) error

	// Stop unblocks a Dispatch call in progress at the next tag
	// boundary (spec §5, "the reader's dispatch returns at the next tag
	// boundary").
	Stop()

	// Close releases any resources (file descriptors, mappings) held by
	// the reader.
	Close() error
}
