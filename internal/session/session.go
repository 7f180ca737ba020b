// Package session implements the CDP Session Multiplexer: one Session per
// attached target, serialising sends onto a single Transport while letting
// replies complete out of order by id, and fanning incoming events out to
// cooperative subscribers.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/mailru/easyjson"

	"github.com/cdpskill/cdpskill/internal/cdperrs"
	"github.com/cdpskill/cdpskill/internal/wire"
)

// DefaultTimeout is the per-request deadline used when none is supplied.
const DefaultTimeout = 10 * time.Second

// eventBufferSize bounds the per-subscriber queue. A slow subscriber drops
// the oldest buffered event rather than blocking the dispatcher.
const eventBufferSize = 64

// pending is the one-shot completion for a single in-flight request.
type pending struct {
	ch chan *cdproto.Message
}

// Session multiplexes one WebSocket transport across concurrent callers.
type Session struct {
	conn    wire.Transport
	timeout time.Duration
	log     *slog.Logger

	nextID int64

	mu      sync.Mutex
	pending map[int64]*pending
	subs    map[cdproto.MethodType][]chan *cdproto.Message
	closed  bool
	closeCh chan struct{}

	writeMu sync.Mutex
}

// Option configures a Session.
type Option func(*Session)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) { s.timeout = d }
}

// WithLogger installs a structured logger; slog.Default() is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// New wraps conn in a Session and starts its read loop. The Session owns
// conn: closing the Session closes the transport.
func New(conn wire.Transport, opts ...Option) *Session {
	s := &Session{
		conn:    conn,
		timeout: DefaultTimeout,
		log:     slog.Default(),
		pending: make(map[int64]*pending),
		subs:    make(map[cdproto.MethodType][]chan *cdproto.Message),
		closeCh: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	go s.readLoop()
	return s
}

// Execute implements cdp.Executor, the interface every github.com/chromedp/cdproto
// domain command type dispatches through via Do(cdp.WithExecutor(ctx, sess)).
func (s *Session) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	msg, err := s.send(ctx, method, params)
	if err != nil {
		return err
	}
	if msg.Error != nil {
		if cdperrs.IsContextDestroyed(msg.Error.Message) {
			return cdperrs.New(cdperrs.KindContextDestroyed, "%s", msg.Error.Message)
		}
		return cdperrs.New(cdperrs.KindProtocol, "%s", msg.Error.Message)
	}
	if res != nil {
		return easyjson.Unmarshal(msg.Result, res)
	}
	return nil
}

// Send issues a raw command and returns the raw reply message, for callers
// that need to bypass typed cdproto params.
func (s *Session) Send(ctx context.Context, method string, params easyjson.Marshaler) (*cdproto.Message, error) {
	return s.send(ctx, method, params)
}

func (s *Session) send(ctx context.Context, method string, params easyjson.Marshaler) (*cdproto.Message, error) {
	id := atomic.AddInt64(&s.nextID, 1)

	var buf []byte
	if params != nil {
		b, err := easyjson.Marshal(params)
		if err != nil {
			return nil, cdperrs.Wrap(cdperrs.KindTransport, err, "marshal params for %s", method)
		}
		buf = b
	}

	p := &pending{ch: make(chan *cdproto.Message, 1)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, cdperrs.ErrClosed
	}
	s.pending[id] = p
	s.mu.Unlock()

	msg := &cdproto.Message{ID: id, Method: cdproto.MethodType(method), Params: buf}

	s.writeMu.Lock()
	writeErr := s.conn.Write(msg)
	s.writeMu.Unlock()
	if writeErr != nil {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return nil, cdperrs.Wrap(cdperrs.KindTransport, writeErr, "write %s", method)
	}

	timer := time.NewTimer(s.timeoutFor(ctx))
	defer timer.Stop()

	select {
	case reply, ok := <-p.ch:
		if !ok {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil, cdperrs.ErrClosed
			}
			return nil, cdperrs.ErrChannelClosed
		}
		return reply, nil
	case <-timer.C:
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return nil, cdperrs.Wrap(cdperrs.KindTransport, cdperrs.ErrTimeout, "%s", method)
	case <-s.closeCh:
		return nil, cdperrs.ErrClosed
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (s *Session) timeoutFor(ctx context.Context) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 && d < s.timeout {
			return d
		}
	}
	return s.timeout
}

// On registers a cooperative subscriber for the given CDP event method.
// The returned channel has a bounded buffer; when full, the dispatcher
// drops the oldest queued event and logs a warning rather than blocking.
func (s *Session) On(method cdproto.MethodType) <-chan *cdproto.Message {
	ch := make(chan *cdproto.Message, eventBufferSize)
	s.mu.Lock()
	s.subs[method] = append(s.subs[method], ch)
	s.mu.Unlock()
	return ch
}

// Off unregisters a subscriber previously returned by On.
func (s *Session) Off(method cdproto.MethodType, ch <-chan *cdproto.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.subs[method]
	for i, c := range subs {
		if c == ch {
			s.subs[method] = append(subs[:i], subs[i+1:]...)
			close(c)
			return
		}
	}
}

// Close closes the transport and fails every pending request with
// cdperrs.ErrClosed. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pending := s.pending
	s.pending = make(map[int64]*pending)
	subs := s.subs
	s.subs = make(map[cdproto.MethodType][]chan *cdproto.Message)
	s.mu.Unlock()

	close(s.closeCh)
	for _, p := range pending {
		close(p.ch)
	}
	for _, chans := range subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	return s.conn.Close()
}

func (s *Session) readLoop() {
	for {
		msg := new(cdproto.Message)
		if err := s.conn.Read(msg); err != nil {
			s.log.Debug("session: read loop ending", "error", err)
			s.Close()
			return
		}

		switch {
		case msg.Method != "":
			s.dispatchEvent(msg)
		case msg.ID != 0:
			s.completeRequest(msg)
		default:
			s.log.Warn("session: dropping malformed message (no id or method)")
		}
	}
}

func (s *Session) completeRequest(msg *cdproto.Message) {
	s.mu.Lock()
	p, ok := s.pending[msg.ID]
	if ok {
		// Remove before signalling: a completion callback may send again
		// safely without racing its own cleanup.
		delete(s.pending, msg.ID)
	}
	s.mu.Unlock()

	if !ok {
		// Late reply to a request that already timed out; discard.
		return
	}
	p.ch <- msg
}

func (s *Session) dispatchEvent(msg *cdproto.Message) {
	s.mu.Lock()
	subs := append([]chan *cdproto.Message(nil), s.subs[msg.Method]...)
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- msg:
		default:
			select {
			case <-ch:
				s.log.Warn("session: dropping oldest event for slow subscriber", "method", string(msg.Method))
			default:
			}
			select {
			case ch <- msg:
			default:
				s.log.Warn("session: dropping event for slow subscriber", "method", string(msg.Method))
			}
		}
	}
}

// ExecutorContext returns a context carrying this Session as the
// cdp.Executor, so cdproto command types can be invoked with
// someCommand.Do(ctx) directly.
func (s *Session) ExecutorContext(ctx context.Context) context.Context {
	return cdp.WithExecutor(ctx, s)
}
