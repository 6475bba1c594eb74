package output

import (
	"time"

	"github.com/nats-io/nats.go"

	"github.com/vklog/vklogd/internal/diag"
	"github.com/vklog/vklogd/internal/txcache"
	"github.com/vklog/vklogd/pkg/log"
)

// BusConfig configures the Bus adapter. Address, Username, Password
// and CredsFilePath mirror the teacher's NatsConfig; Subject and
// Partition stand in for the spec's abstract bus "topic" and
// "partition" (spec §6, §9: NATS has no native partition concept, so a
// non-empty Partition is carried as a message header instead).
type BusConfig struct {
	Address       string
	Username      string
	Password      string
	CredsFilePath string
	Subject       string
	Partition     string
}

// Bus is the C9 output adapter backed by a NATS connection. A KEY
// render is stashed on the transaction record rather than published;
// the following MAIN render for the same transaction carries it as a
// message header (spec §4.9).
type Bus struct {
	conn      *nats.Conn
	subject   string
	partition string
	counters  *diag.Counters
	rl        *diag.RateLimiter
}

// NewBus dials cfg.Address and returns a ready Bus, adapting the
// teacher's NewClient connection setup (auth options, disconnect/
// reconnect/error handlers) without its subscribe-side machinery,
// since this adapter only ever produces.
func NewBus(cfg BusConfig, counters *diag.Counters, rl *diag.RateLimiter) (*Bus, error) {
	opts := []nats.Option{
		nats.Name("vklogd"),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warnf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Notef("NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			if rl.Allow(diag.ChanBus) {
				log.Warnf("NATS error: %v", err)
			}
		}),
	}
	if cfg.CredsFilePath != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFilePath))
	} else if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	conn, err := nats.Connect(cfg.Address, opts...)
	if err != nil {
		return nil, err
	}

	return &Bus{
		conn:      conn,
		subject:   cfg.Subject,
		partition: cfg.Partition,
		counters:  counters,
		rl:        rl,
	}, nil
}

// Output implements Adapter.
func (b *Bus) Output(kind FconfKind, rec *txcache.Rec, buf []byte) {
	if kind == Key {
		rec.Key = append([]byte(nil), buf...)
		return
	}

	msg := &nats.Msg{Subject: b.subject, Data: buf}
	if rec.Key != nil {
		msg.Header = nats.Header{}
		msg.Header.Set("Key", string(rec.Key))
	}
	if b.partition != "" {
		if msg.Header == nil {
			msg.Header = nats.Header{}
		}
		msg.Header.Set("Partition", b.partition)
	}

	if err := b.conn.PublishMsg(msg); err != nil {
		b.counters.TxErr.Add(1)
		if b.rl.Allow(diag.ChanProduce) {
			log.Warnf("failed to produce message (seq %d): %v", rec.Seq, err)
		}
	} else {
		b.counters.Tx.Add(1)
	}

	// Every produce call is followed by a zero-timeout poll so the
	// connection's internal I/O has a chance to run (spec §4.9).
	b.Poll()
}

// Poll drives pending connection I/O without blocking.
func (b *Bus) Poll() {
	b.conn.Flush()
}

// Drain flushes outstanding publishes or gives up after timeoutMs.
func (b *Bus) Drain(timeoutMs int) {
	if err := b.conn.FlushTimeout(time.Duration(timeoutMs) * time.Millisecond); err != nil {
		log.Warnf("bus drain did not complete: %v", err)
	}
}

// Close tears down the underlying connection.
func (b *Bus) Close() {
	b.conn.Close()
}
