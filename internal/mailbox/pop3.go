package mailbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/knadh/go-pop3"
	"github.com/sirupsen/logrus"
)

type pop3Connection interface {
	Auth(user, password string) error
	List(msgID int) ([]pop3.MessageID, error)
	RetrRaw(msgID int) (*bytes.Buffer, error)
	Quit() error
}

type pop3ConnFactory func() (pop3Connection, error)

// Config describes the POP3 server shared by all accounts
type Config struct {
	Host              string
	Port              int
	TLS               bool
	MaxFetch          int
	ConnectionTimeout time.Duration
	ReadTimeout       time.Duration
}

// Client fetches the most recent messages of a POP3 mailbox. It never deletes
// messages on the server.
type Client struct {
	cfg     Config
	now     func() time.Time
	newConn pop3ConnFactory
}

// Option customizes client behavior
type Option func(*Client)

// WithClock overrides the wall clock, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func withConnFactory(factory pop3ConnFactory) Option {
	return func(c *Client) {
		c.newConn = factory
	}
}

func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.MaxFetch <= 0 {
		cfg.MaxFetch = 10
	}
	c := &Client{
		cfg: cfg,
		now: time.Now,
	}
	c.newConn = c.defaultConnFactory
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchRecent logs in as identity and returns up to MaxFetch of the newest
// messages in mailbox order. Messages that fail to download or parse are
// dropped; session level failures are wrapped with ErrConnection.
func (c *Client) FetchRecent(ctx context.Context, identity, credential string) ([]MessageSummary, error) {
	conn, err := c.newConn()
	if err != nil {
		return nil, fmt.Errorf("%w: connect %s:%d: %v", ErrConnection, c.cfg.Host, c.cfg.Port, err)
	}
	defer c.safeQuit(conn, identity)

	if err := conn.Auth(identity, credential); err != nil {
		return nil, fmt.Errorf("%w: auth %s: %v", ErrConnection, identity, err)
	}

	listing, err := conn.List(0)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", ErrConnection, err)
	}

	window := recentWindow(listing, c.cfg.MaxFetch)
	summaries := make([]MessageSummary, 0, len(window))
	log := logrus.WithField("email", identity)

	for _, meta := range window {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		payload, err := conn.RetrRaw(meta.ID)
		if err != nil {
			if isTransportError(err) {
				return nil, fmt.Errorf("%w: retr %d: %v", ErrConnection, meta.ID, err)
			}
			log.WithError(err).Warnf("Failed to retrieve message %d, skipping", meta.ID)
			continue
		}

		summary, err := ParseMessage(payload.Bytes(), c.now())
		if err != nil {
			log.WithError(err).Warnf("Failed to parse message %d, skipping", meta.ID)
			continue
		}
		summaries = append(summaries, summary)
	}

	log.Debugf("Fetched %d of %d messages", len(summaries), len(listing))
	return summaries, nil
}

// recentWindow keeps the last max entries, i.e. message numbers
// max(1, count-max+1) through count.
func recentWindow(listing []pop3.MessageID, max int) []pop3.MessageID {
	if len(listing) <= max {
		return listing
	}
	return listing[len(listing)-max:]
}

func isTransportError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed)
}

func (c *Client) safeQuit(conn pop3Connection, identity string) {
	if conn == nil {
		return
	}
	if err := conn.Quit(); err != nil {
		logrus.WithField("email", identity).Debugf("pop3 quit error: %v", err)
	}
}

func (c *Client) defaultConnFactory() (pop3Connection, error) {
	dialer := &deadlineDialer{
		dialer:      &net.Dialer{Timeout: c.cfg.ConnectionTimeout},
		readTimeout: c.cfg.ReadTimeout,
	}
	client := pop3.New(pop3.Opt{
		Host:        c.cfg.Host,
		Port:        c.cfg.Port,
		DialTimeout: c.cfg.ConnectionTimeout,
		TLSEnabled:  c.cfg.TLS,
		Dialer:      dialer,
	})
	conn, err := client.NewConn()
	if err != nil {
		// NewConn leaves the socket open on a failed greeting or handshake
		dialer.closeDialed()
		return nil, err
	}
	return conn, nil
}

// deadlineDialer hands out connections that arm a fresh deadline before every
// read and write, so a stalled server cannot hang a worker. It remembers the
// socket it dialed so a failed session setup can release it.
type deadlineDialer struct {
	dialer      *net.Dialer
	readTimeout time.Duration
	dialed      net.Conn
}

func (d *deadlineDialer) Dial(network, address string) (net.Conn, error) {
	conn, err := d.dialer.Dial(network, address)
	if err != nil {
		return nil, err
	}
	d.dialed = conn
	if d.readTimeout <= 0 {
		return conn, nil
	}
	return &deadlineConn{Conn: conn, timeout: d.readTimeout}, nil
}

func (d *deadlineDialer) closeDialed() {
	if d.dialed == nil {
		return
	}
	if err := d.dialed.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		logrus.Debugf("pop3 close after failed setup: %v", err)
	}
	d.dialed = nil
}

type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(b)
}
