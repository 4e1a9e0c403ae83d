// Package broadcast publishes committed ledger events to NATS.
//
// Each event is CBOR-encoded into an Envelope and published on
// "<prefix>.<kind>", for example "thermal.settlement.settled". The event
// ID travels in the Nats-Msg-Id header so JetStream streams drop
// redeliveries.
package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/xraph/thermal/codec"
	"github.com/xraph/thermal/event"
	"github.com/xraph/thermal/plugin"
)

// DefaultSubjectPrefix is the subject prefix used unless overridden.
const DefaultSubjectPrefix = "thermal"

// Header names set on every published message.
const (
	HeaderKind = "Thermal-Event-Kind"
	HeaderSeq  = "Thermal-Event-Seq"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin     = (*Extension)(nil)
	_ plugin.OnEvent    = (*Extension)(nil)
	_ plugin.OnShutdown = (*Extension)(nil)
	_ Publisher         = (*nats.Conn)(nil)
)

// Publisher is the subset of *nats.Conn the extension needs.
type Publisher interface {
	PublishMsg(m *nats.Msg) error
}

// Envelope is the wire form of a broadcast event.
type Envelope struct {
	Kind  event.Kind       `cbor:"kind"`
	Seq   uint64           `cbor:"seq"`
	ID    string           `cbor:"id"`
	At    time.Time        `cbor:"at"`
	Event codec.RawMessage `cbor:"event"`
}

// Extension is a plugin that publishes every committed event.
type Extension struct {
	pub    Publisher
	prefix string
	kinds  map[event.Kind]bool // nil = all kinds
	flush  func() error
	logger *slog.Logger
}

// New creates an Extension publishing through pub.
func New(pub Publisher, opts ...Option) *Extension {
	e := &Extension{
		pub:    pub,
		prefix: DefaultSubjectPrefix,
		logger: slog.Default(),
	}
	if nc, ok := pub.(*nats.Conn); ok {
		e.flush = nc.Flush
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "broadcast" }

// Subject returns the subject an event of kind k is published on.
func (e *Extension) Subject(k event.Kind) string {
	return e.prefix + "." + string(k)
}

// OnEvent implements plugin.OnEvent.
func (e *Extension) OnEvent(_ context.Context, ev event.Event) error {
	if e.kinds != nil && !e.kinds[ev.Kind()] {
		return nil
	}

	msg, err := e.message(ev)
	if err != nil {
		return err
	}
	if err := e.pub.PublishMsg(msg); err != nil {
		return fmt.Errorf("broadcast: publish %s: %w", msg.Subject, err)
	}
	return nil
}

// OnShutdown flushes buffered messages when publishing to a NATS
// connection.
func (e *Extension) OnShutdown(_ context.Context) error {
	if e.flush == nil {
		return nil
	}
	if err := e.flush(); err != nil {
		e.logger.Warn("broadcast: flush on shutdown failed", "error", err)
	}
	return nil
}

func (e *Extension) message(ev event.Event) (*nats.Msg, error) {
	body, err := codec.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("broadcast: encode %s: %w", ev.Kind(), err)
	}
	meta := ev.Metadata()
	data, err := codec.Marshal(&Envelope{
		Kind:  ev.Kind(),
		Seq:   meta.Seq,
		ID:    meta.ID.String(),
		At:    meta.At,
		Event: body,
	})
	if err != nil {
		return nil, fmt.Errorf("broadcast: encode envelope: %w", err)
	}

	msg := nats.NewMsg(e.Subject(ev.Kind()))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, meta.ID.String())
	msg.Header.Set(HeaderKind, string(ev.Kind()))
	msg.Header.Set(HeaderSeq, strconv.FormatUint(meta.Seq, 10))
	return msg, nil
}

// Decode reads an Envelope and its typed event from a message body.
func Decode(data []byte) (*Envelope, event.Event, error) {
	env := new(Envelope)
	if err := codec.Unmarshal(data, env); err != nil {
		return nil, nil, fmt.Errorf("broadcast: decode envelope: %w", err)
	}
	ev, err := newEvent(env.Kind)
	if err != nil {
		return nil, nil, err
	}
	if err := codec.Unmarshal(env.Event, ev); err != nil {
		return nil, nil, fmt.Errorf("broadcast: decode %s: %w", env.Kind, err)
	}
	return env, ev, nil
}

func newEvent(k event.Kind) (event.Event, error) {
	switch k {
	case event.KindIdentityRegistered:
		return new(event.IdentityRegistered), nil
	case event.KindIdentityVerified:
		return new(event.IdentityVerified), nil
	case event.KindPhoneHashUpdated:
		return new(event.PhoneHashUpdated), nil
	case event.KindOperatorAdded:
		return new(event.OperatorAdded), nil
	case event.KindOperatorRemoved:
		return new(event.OperatorRemoved), nil
	case event.KindTransfer:
		return new(event.Transfer), nil
	case event.KindProductionRecorded:
		return new(event.ProductionRecorded), nil
	case event.KindTradeRecorded:
		return new(event.TradeRecorded), nil
	case event.KindTradeSettled:
		return new(event.TradeSettled), nil
	case event.KindTradeSettlementFailed:
		return new(event.TradeSettlementFailed), nil
	default:
		return nil, fmt.Errorf("broadcast: unknown event kind %q", k)
	}
}

// Config configures a NATS connection for the extension.
type Config struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	MaxReconnects int
	Timeout       time.Duration
}

// DefaultConfig returns connection settings for a local server.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "thermal",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
		Timeout:       5 * time.Second,
	}
}

// Connect opens a NATS connection that reconnects forever and logs
// disconnects through logger.
func Connect(cfg Config, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("broadcast: nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("broadcast: nats reconnected", "url", nc.ConnectedUrl())
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("broadcast: connect to %s: %w", cfg.URL, err)
	}
	return nc, nil
}
