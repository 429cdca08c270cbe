// Package mailer delivers campaign messages over SMTP. A Transport keeps one
// connection open across sends and reconnects every BatchSize messages.
package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/beaconblast/campaign-delivery/internal/model"
	"github.com/beaconblast/campaign-delivery/pkg/logger"
	"golang.org/x/time/rate"
	"gopkg.in/gomail.v2"
)

const DefaultBatchSize = 10

type Options struct {
	BatchSize   int
	DialTimeout time.Duration
	// SendRate is messages per second, zero means unlimited.
	SendRate  float64
	HeloName  string
	TLSConfig *tls.Config
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 30 * time.Second
	}
	if o.HeloName == "" {
		o.HeloName = "localhost"
	}
	return o
}

// Transport is not safe for concurrent use.
type Transport struct {
	creds   *model.SmtpCredentials
	opts    Options
	limiter *rate.Limiter

	conn   net.Conn
	client *smtp.Client
	// sends on the current connection
	sent int
	// once set every later Send fails with it
	broken    *SendError
	connected bool
}

func NewTransport(creds *model.SmtpCredentials, opts Options) *Transport {
	opts = opts.withDefaults()
	t := &Transport{creds: creds, opts: opts}
	if opts.SendRate > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(opts.SendRate), 1)
	}
	return t
}

// Send delivers msg and returns its Message-ID. Failures are always *SendError.
func (t *Transport) Send(ctx context.Context, msg *Message) (string, error) {
	if t.broken != nil {
		return "", t.broken
	}
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return "", newSendError(KindUnexpected, err)
		}
	}

	if t.client == nil || t.sent >= t.opts.BatchSize {
		if err := t.reconnect(ctx); err != nil {
			return "", err
		}
	}

	m, id := t.compose(msg)
	_ = t.conn.SetDeadline(time.Now().Add(t.opts.DialTimeout))

	sess := &session{client: t.client}
	t.sent++
	if err := gomail.Send(sess, m); err != nil {
		se := sess.err
		if se == nil {
			se = newSendError(KindUnexpected, err)
		}
		t.recover(se)
		return "", se
	}
	return id, nil
}

// Close ends the SMTP session. It is safe to call more than once.
func (t *Transport) Close() error {
	if t.client == nil {
		return nil
	}
	err := t.client.Quit()
	if err != nil {
		_ = t.client.Close()
	}
	t.client, t.conn = nil, nil
	return err
}

func (t *Transport) reconnect(ctx context.Context) error {
	if t.client != nil {
		if err := t.client.Quit(); err != nil {
			_ = t.client.Close()
			logger.Debug("smtp quit before reconnect failed", "host", t.creds.Host, "error", err)
		}
		t.client, t.conn = nil, nil
	}

	err := t.connect(ctx)
	if err == nil {
		t.connected = true
		t.sent = 0
		return nil
	}

	if t.connected {
		err = &SendError{Kind: KindConnectionLost, Err: err.Err}
	}
	t.broken = err
	logger.Warn("smtp connection failed",
		"host", t.creds.Host,
		"port", t.creds.Port,
		"account_id", t.creds.AccountID,
		"error", err)
	return err
}

func (t *Transport) connect(ctx context.Context) *SendError {
	host := t.creds.Host
	addr := net.JoinHostPort(host, strconv.Itoa(t.creds.Port))
	dialer := &net.Dialer{Timeout: t.opts.DialTimeout}

	var (
		conn net.Conn
		err  error
	)
	if t.creds.Encryption == model.EncryptionSSL {
		td := &tls.Dialer{NetDialer: dialer, Config: t.tlsConfig()}
		conn, err = td.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return newSendError(KindConnect, err)
	}
	_ = conn.SetDeadline(time.Now().Add(t.opts.DialTimeout))

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		_ = conn.Close()
		return newSendError(KindConnect, err)
	}
	if err := c.Hello(t.opts.HeloName); err != nil {
		_ = c.Close()
		return newSendError(KindConnect, err)
	}

	if t.creds.Encryption == model.EncryptionTLS {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			_ = c.Close()
			return newSendError(KindConnect, errors.New("server does not support STARTTLS"))
		}
		if err := c.StartTLS(t.tlsConfig()); err != nil {
			_ = c.Close()
			return newSendError(KindConnect, err)
		}
	}

	if t.creds.Username != "" {
		if ok, _ := c.Extension("AUTH"); !ok {
			_ = c.Close()
			return newSendError(KindAuth, errors.New("server does not support AUTH"))
		}
		if err := c.Auth(&plainAuth{username: t.creds.Username, password: t.creds.Password}); err != nil {
			_ = c.Close()
			return newSendError(KindAuth, err)
		}
	}

	t.conn, t.client = conn, c
	return nil
}

// recover puts the session back into a usable state after a failed message.
// A session that cannot be reset is dropped and the next Send reconnects.
func (t *Transport) recover(se *SendError) {
	if t.client == nil {
		return
	}
	if se.Kind == KindRecipient || se.Kind == KindData || se.Kind == KindUnexpected {
		if err := t.client.Reset(); err == nil {
			return
		}
	}
	_ = t.client.Close()
	t.client, t.conn = nil, nil
}

func (t *Transport) tlsConfig() *tls.Config {
	cfg := &tls.Config{}
	if t.opts.TLSConfig != nil {
		cfg = t.opts.TLSConfig.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = t.creds.Host
	}
	return cfg
}

// session adapts an open smtp.Client to gomail.SendCloser and keeps the
// categorized error of the failing step.
type session struct {
	client *smtp.Client
	err    *SendError
}

func (s *session) Send(from string, to []string, msg io.WriterTo) error {
	if err := s.client.Mail(from); err != nil {
		return s.fail(KindUnexpected, err)
	}
	for _, addr := range to {
		if err := s.client.Rcpt(addr); err != nil {
			return s.fail(KindRecipient, err)
		}
	}
	w, err := s.client.Data()
	if err != nil {
		return s.fail(KindData, err)
	}
	if _, err := msg.WriteTo(w); err != nil {
		_ = w.Close()
		return s.fail(KindData, err)
	}
	if err := w.Close(); err != nil {
		return s.fail(KindData, err)
	}
	return nil
}

func (s *session) Close() error {
	return nil
}

func (s *session) fail(kind ErrorKind, err error) error {
	s.err = newSendError(kind, err)
	return s.err
}

// plainAuth is AUTH PLAIN without net/smtp's refusal to authenticate over
// unencrypted connections to remote hosts; accounts configured with
// encryption "none" still log in.
type plainAuth struct {
	username, password string
}

func (a *plainAuth) Start(*smtp.ServerInfo) (string, []byte, error) {
	return "PLAIN", []byte("\x00" + a.username + "\x00" + a.password), nil
}

func (a *plainAuth) Next(_ []byte, more bool) ([]byte, error) {
	if more {
		return nil, fmt.Errorf("unexpected server challenge")
	}
	return nil, nil
}
