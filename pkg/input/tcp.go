// Package input contains the network input plugins. Each plugin owns one
// tcpserver listener and turns what arrives on it into events.
package input

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ohler55/ojg/oj"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/logwire/logwire/pkg/emit"
	"github.com/logwire/logwire/pkg/logging"
	"github.com/logwire/logwire/pkg/storage"
	"github.com/logwire/logwire/pkg/tcpserver"
)

// DefaultDelimiter separates messages when none is configured.
const DefaultDelimiter = "\n"

// MessageKey is the record field holding the message text.
const MessageKey = "message"

// Message formats.
const (
	// FormatText stores each message as text under MessageKey.
	FormatText = "text"
	// FormatJSON decodes each message as a JSON object and uses it as the
	// record. Messages that are not objects fall back to FormatText.
	FormatJSON = "json"
)

// TCPConfig configures a TCP input.
type TCPConfig struct {
	// ID names the input in logs, metrics and storage keys.
	ID string
	// Tag is the tag events are emitted with.
	Tag       string
	Bind      string
	Port      int
	Delimiter string
	// Format is FormatText (the default) or FormatJSON.
	Format string
	// Encoding names the character set clients send (WHATWG labels such as
	// "latin1" or "shift_jis"). Messages are converted to UTF-8. Empty
	// means UTF-8.
	Encoding string
	// SourceAddressKey, when set, adds the peer address to every record
	// under this key.
	SourceAddressKey string
	// SourceHostnameKey, when set, adds the peer host name to every record
	// under this key.
	SourceHostnameKey string
	Options           tcpserver.Options
}

// TCP reads delimited messages from TCP clients and emits one record per
// message.
type TCP struct {
	cfg    TCPConfig
	router emit.Router
	store  *storage.JSONStore
	log    *slog.Logger
	now    func() time.Time

	charset  encoding.Encoding
	listener *tcpserver.Listener
	messages atomic.Int64
}

// Option configures a TCP input.
type Option func(*TCP)

// WithLogger sets the input logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *TCP) {
		p.log = logging.OrNop(log)
	}
}

// WithStorage keeps the input's message total in st across restarts.
func WithStorage(st *storage.JSONStore) Option {
	return func(p *TCP) {
		p.store = st
	}
}

// NewTCP returns an input emitting to router. Nothing is bound until Start.
func NewTCP(cfg TCPConfig, router emit.Router, opts ...Option) *TCP {
	if cfg.Delimiter == "" {
		cfg.Delimiter = DefaultDelimiter
	}
	if cfg.Options.Name == "" {
		cfg.Options.Name = cfg.ID
	}
	p := &TCP{
		cfg:    cfg,
		router: router,
		log:    logging.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With(logging.KeyInput, cfg.ID)
	return p
}

// ID returns the configured id.
func (p *TCP) ID() string { return p.cfg.ID }

// Listener returns the bound listener, or nil before Start.
func (p *TCP) Listener() *tcpserver.Listener { return p.listener }

// Messages returns the number of messages received, including the total
// restored from storage.
func (p *TCP) Messages() int64 { return p.messages.Load() }

func (p *TCP) storageKey() string {
	return p.cfg.ID + ".messages"
}

// Start restores the message total and binds the listener on srv.
func (p *TCP) Start(srv *tcpserver.Server) error {
	if p.store != nil {
		p.messages.Store(p.store.FetchInt(p.storageKey(), 0))
	}
	if p.cfg.Encoding != "" {
		enc, err := Charset(p.cfg.Encoding)
		if err != nil {
			return err
		}
		p.charset = enc
	}
	l, err := srv.Listen(p.cfg.Bind, p.cfg.Port, p.cfg.Options, p.onConnect)
	if err != nil {
		return err
	}
	p.listener = l
	return nil
}

func (p *TCP) onConnect(c *tcpserver.Conn) error {
	c.OnData([]byte(p.cfg.Delimiter), func(msg []byte) error {
		p.emit(c, msg)
		return nil
	})
	return nil
}

// emit runs on the loop. Routing failures are logged; the client is not
// disconnected for them.
func (p *TCP) emit(c *tcpserver.Conn, msg []byte) {
	rec := p.record(msg)
	if p.cfg.SourceAddressKey != "" {
		rec[p.cfg.SourceAddressKey] = c.Peer().Addr
	}
	if p.cfg.SourceHostnameKey != "" {
		rec[p.cfg.SourceHostnameKey] = c.Peer().Host
	}
	p.messages.Add(1)
	if err := p.router.Emit(p.cfg.Tag, p.now(), rec); err != nil {
		p.log.Warn("failed to emit message", "tag", p.cfg.Tag, logging.KeyConnID, c.ID(), "error", err)
	}
}

// Charset looks up a character set by its WHATWG label.
func Charset(label string) (encoding.Encoding, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", label, err)
	}
	return enc, nil
}

func (p *TCP) record(msg []byte) emit.Record {
	if p.charset != nil {
		utf8, err := p.charset.NewDecoder().Bytes(msg)
		if err != nil {
			p.log.Debug("failed to decode message", "encoding", p.cfg.Encoding, "error", err)
		} else {
			msg = utf8
		}
	}
	if p.cfg.Format == FormatJSON {
		var v any
		err := oj.Unmarshal(msg, &v)
		if obj, ok := v.(map[string]any); err == nil && ok {
			return emit.Record(obj)
		}
		p.log.Debug("message is not a JSON object, keeping it as text", "error", err)
	}
	return emit.Record{MessageKey: string(msg)}
}

// Persist writes the message total into storage. The caller saves the
// store.
func (p *TCP) Persist() {
	if p.store != nil {
		p.store.Put(p.storageKey(), p.messages.Load())
	}
}

// Stop closes the input's listener and persists its counters.
func (p *TCP) Stop(ctx context.Context) error {
	var err error
	if p.listener != nil {
		err = p.listener.Close(ctx)
	}
	p.Persist()
	return err
}
