// Package wire implements the raw transport beneath a CDP session: one
// WebSocket connection framing cdproto messages in both directions.
package wire

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/gorilla/websocket"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
)

var (
	// DefaultReadBufferSize is the default maximum read buffer size.
	DefaultReadBufferSize = 25 * 1024 * 1024

	// DefaultWriteBufferSize is the default maximum write buffer size.
	DefaultWriteBufferSize = 10 * 1024 * 1024

	// DefaultHandshakeTimeout bounds the initial WebSocket upgrade.
	DefaultHandshakeTimeout = 15 * time.Second
)

// Transport is the interface a Session multiplexes over.
type Transport interface {
	Read(*cdproto.Message) error
	Write(*cdproto.Message) error
	io.Closer
}

// Conn wraps a gorilla/websocket.Conn connection to one CDP target.
type Conn struct {
	*websocket.Conn

	buf bytes.Buffer

	lexer  jlexer.Lexer
	writer jwriter.Writer

	dbgf func(string, ...interface{})
}

// DialOption configures a dial.
type DialOption func(*Conn)

// WithConnDebugf installs a raw protocol tracer, invoked once per frame in
// each direction. It is intentionally separate from the structured
// operational logger so high-volume wire traces can be routed elsewhere.
func WithConnDebugf(f func(string, ...interface{})) DialOption {
	return func(c *Conn) { c.dbgf = f }
}

// DialContext dials the target's webSocketDebuggerUrl.
func DialContext(ctx context.Context, urlstr string, opts ...DialOption) (*Conn, error) {
	d := &websocket.Dialer{
		ReadBufferSize:   DefaultReadBufferSize,
		WriteBufferSize:  DefaultWriteBufferSize,
		HandshakeTimeout: DefaultHandshakeTimeout,
	}

	conn, _, err := d.DialContext(ctx, urlstr, nil)
	if err != nil {
		return nil, err
	}

	c := &Conn{Conn: conn}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Conn) bufReadAll(r io.Reader) ([]byte, error) {
	c.buf.Reset()
	_, err := c.buf.ReadFrom(r)
	return c.buf.Bytes(), err
}

// Read reads and decodes the next message from the socket.
func (c *Conn) Read(msg *cdproto.Message) error {
	typ, r, err := c.NextReader()
	if err != nil {
		return err
	}
	if typ != websocket.TextMessage {
		return ErrInvalidWebsocketMessage
	}

	buf, err := c.bufReadAll(r)
	if err != nil {
		return err
	}
	if c.dbgf != nil {
		c.dbgf("<- %s", buf)
	}

	c.lexer = jlexer.Lexer{Data: buf}
	msg.UnmarshalEasyJSON(&c.lexer)
	if err := c.lexer.Error(); err != nil {
		return err
	}

	// buf is reused across reads (bufReadAll aliases the internal buffer),
	// and msg.Result aliases into buf, so it must be copied before the next
	// read overwrites it.
	msg.Result = append([]byte{}, msg.Result...)
	return nil
}

// Write encodes and writes a message to the socket.
func (c *Conn) Write(msg *cdproto.Message) error {
	w, err := c.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	defer w.Close()

	c.writer = jwriter.Writer{}
	msg.MarshalEasyJSON(&c.writer)
	if err := c.writer.Error; err != nil {
		return err
	}

	if c.dbgf != nil {
		buf, _ := c.writer.BuildBytes()
		c.dbgf("-> %s", buf)
		if _, err := w.Write(buf); err != nil {
			return err
		}
		return w.Close()
	}
	if _, err := c.writer.DumpTo(w); err != nil {
		return err
	}
	return w.Close()
}

// ForceIP forces the host component of a debugger URL to be an IP address.
// Chrome 66+ requires the Host header to be an IP literal or "localhost".
func ForceIP(urlstr string) string {
	if i := strings.Index(urlstr, "://"); i != -1 {
		scheme := urlstr[:i+3]
		host, port, path := urlstr[len(scheme):], "", ""
		if i := strings.Index(host, "/"); i != -1 {
			host, path = host[:i], host[i:]
		}
		if i := strings.Index(host, ":"); i != -1 {
			host, port = host[:i], host[i:]
		}
		if addr, err := net.ResolveIPAddr("ip", host); err == nil {
			urlstr = scheme + addr.IP.String() + port + path
		}
	}
	return urlstr
}
