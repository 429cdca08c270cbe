// Package mocksmtp is a small scripted SMTP server used in development and
// tests. It accepts mail, records it in memory and rejects recipients by rule
// or at a configurable random rate.
package mocksmtp

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/beaconblast/campaign-delivery/pkg/logger"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
)

var ErrServerClosed = errors.New("mocksmtp: server closed")

// Reply is an SMTP status line returned for a rejected recipient. Message
// may start with an enhanced status code such as "5.1.1".
type Reply struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (r Reply) String() string {
	return fmt.Sprintf("%d %s", r.Code, r.Message)
}

// smtpError splits the enhanced code off the message so go-smtp writes it
// back in the same position.
func (r Reply) smtpError() *smtp.SMTPError {
	se := &smtp.SMTPError{Code: r.Code, EnhancedCode: smtp.NoEnhancedCode, Message: r.Message}
	head, rest, ok := strings.Cut(r.Message, " ")
	if !ok {
		return se
	}
	parts := strings.Split(head, ".")
	if len(parts) != 3 {
		return se
	}
	var code smtp.EnhancedCode
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return se
		}
		code[i] = n
	}
	se.EnhancedCode = code
	se.Message = rest
	return se
}

var (
	// UserUnknown is the reply used for random bounces.
	UserUnknown = Reply{Code: 550, Message: "5.1.1 Recipient address rejected: User unknown"}
	MailboxFull = Reply{Code: 452, Message: "4.2.2 Mailbox full, try again later"}

	errAuthRequired = &smtp.SMTPError{Code: 530, EnhancedCode: smtp.EnhancedCode{5, 7, 0}, Message: "Authentication required"}
	errAuthInvalid  = &smtp.SMTPError{Code: 535, EnhancedCode: smtp.EnhancedCode{5, 7, 8}, Message: "Authentication credentials invalid"}
)

type Config struct {
	Hostname string
	// Username and Password are checked by AUTH PLAIN when RequireAuth is set.
	Username    string
	Password    string
	RequireAuth bool
	BounceRate  float64
	Rejections  map[string]Reply

	// TLSConfig enables STARTTLS. With ImplicitTLS the listener itself is
	// wrapped and every connection starts in TLS.
	TLSConfig   *tls.Config
	ImplicitTLS bool
}

// Message is one accepted DATA transaction.
type Message struct {
	ID   string   `json:"id"`
	From string   `json:"from"`
	To   []string `json:"to"`
	Data string   `json:"data"`
	// TLS is set when the transaction ran over an encrypted connection.
	TLS bool `json:"tls"`
	// AuthUser is the AUTH PLAIN identity, AuthOverTLS whether the
	// credentials crossed an encrypted connection.
	AuthUser    string    `json:"auth_user,omitempty"`
	AuthOverTLS bool      `json:"auth_over_tls"`
	ReceivedAt  time.Time `json:"received_at"`
}

type Server struct {
	mu       sync.Mutex
	cfg      Config
	rng      *rand.Rand
	messages []Message
	sessions int

	smtp   *smtp.Server
	ln     net.Listener
	closed bool
}

func New(cfg Config) *Server {
	if cfg.Hostname == "" {
		cfg.Hostname = "mocksmtp.local"
	}
	rules := make(map[string]Reply, len(cfg.Rejections))
	for addr, r := range cfg.Rejections {
		rules[strings.ToLower(addr)] = r
	}
	cfg.Rejections = rules

	s := &Server{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	srv := smtp.NewServer(&backend{srv: s})
	srv.Domain = cfg.Hostname
	srv.ReadTimeout = 5 * time.Minute
	srv.WriteTimeout = 10 * time.Second
	srv.MaxMessageBytes = 10 << 20
	srv.MaxRecipients = 100
	srv.AllowInsecureAuth = true
	srv.TLSConfig = cfg.TLSConfig
	srv.ErrorLog = errorLog{}
	s.smtp = srv
	return s
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.Serve(ln); err != nil && !errors.Is(err, ErrServerClosed) {
			logger.Error("mocksmtp: serve stopped", "error", err)
		}
	}()
	return nil
}

func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerClosed
	}
	if s.cfg.ImplicitTLS {
		if s.cfg.TLSConfig == nil {
			s.mu.Unlock()
			_ = ln.Close()
			return errors.New("mocksmtp: implicit TLS needs a TLS config")
		}
		ln = tls.NewListener(ln, s.cfg.TLSConfig)
	}
	s.ln = ln
	s.mu.Unlock()

	logger.Info("mocksmtp: listening", "addr", ln.Addr().String(), "implicit_tls", s.cfg.ImplicitTLS)
	err := s.smtp.Serve(&countingListener{Listener: ln, srv: s})

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrServerClosed
	}
	return err
}

// Addr returns the listening address, or "" before Serve.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Close stops the listener and drops open connections. It is safe to call
// more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.ln
	s.mu.Unlock()

	err := s.smtp.Close()
	if ln != nil {
		// Serve may not have registered the listener with go-smtp yet
		_ = ln.Close()
	}
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (s *Server) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Sessions counts accepted connections since start.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions
}

func (s *Server) ClearMessages() {
	s.mu.Lock()
	s.messages = nil
	s.mu.Unlock()
}

func (s *Server) Reject(addr string, r Reply) {
	s.mu.Lock()
	s.cfg.Rejections[strings.ToLower(addr)] = r
	s.mu.Unlock()
}

func (s *Server) ClearRejections() {
	s.mu.Lock()
	s.cfg.Rejections = make(map[string]Reply)
	s.mu.Unlock()
}

func (s *Server) SetBounceRate(rate float64) error {
	if rate < 0 || rate > 1 {
		return fmt.Errorf("bounce rate %v out of range [0,1]", rate)
	}
	s.mu.Lock()
	s.cfg.BounceRate = rate
	s.mu.Unlock()
	return nil
}

// Settings is a snapshot of the runtime configuration.
type Settings struct {
	Hostname    string           `json:"hostname"`
	RequireAuth bool             `json:"require_auth"`
	BounceRate  float64          `json:"bounce_rate"`
	Rejections  map[string]Reply `json:"rejections"`
}

func (s *Server) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	rules := make(map[string]Reply, len(s.cfg.Rejections))
	for k, v := range s.cfg.Rejections {
		rules[k] = v
	}
	return Settings{
		Hostname:    s.cfg.Hostname,
		RequireAuth: s.cfg.RequireAuth,
		BounceRate:  s.cfg.BounceRate,
		Rejections:  rules,
	}
}

// checkRecipient returns a rejection for addr, if any.
func (s *Server) checkRecipient(addr string) (Reply, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.cfg.Rejections[strings.ToLower(addr)]; ok {
		return r, true
	}
	if s.cfg.BounceRate > 0 && s.rng.Float64() < s.cfg.BounceRate {
		return UserUnknown, true
	}
	return Reply{}, false
}

func (s *Server) requireAuth() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.RequireAuth
}

func (s *Server) credentialsOK(user, pass string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.cfg.RequireAuth || (user == s.cfg.Username && pass == s.cfg.Password)
}

func (s *Server) store(m Message) {
	s.mu.Lock()
	s.messages = append(s.messages, m)
	s.mu.Unlock()
}

type countingListener struct {
	net.Listener
	srv *Server
}

func (l *countingListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err == nil {
		l.srv.mu.Lock()
		l.srv.sessions++
		l.srv.mu.Unlock()
	}
	return conn, err
}

type backend struct {
	srv *Server
}

// NewSession runs on every greeting, so a STARTTLS upgrade starts over with
// a fresh, unauthenticated session.
func (b *backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &session{srv: b.srv, conn: c}, nil
}

type session struct {
	srv  *Server
	conn *smtp.Conn

	authUser string
	authTLS  bool
	authed   bool

	from  string
	rcpts []string
}

func (ss *session) secure() bool {
	_, ok := ss.conn.TLSConnectionState()
	return ok
}

func (ss *session) AuthPlain(username, password string) error {
	if !ss.srv.credentialsOK(username, password) {
		logger.Debug("mocksmtp: auth rejected", "user", username)
		return errAuthInvalid
	}
	ss.authed = true
	ss.authUser = username
	ss.authTLS = ss.secure()
	return nil
}

func (ss *session) Mail(from string, _ *smtp.MailOptions) error {
	if ss.srv.requireAuth() && !ss.authed {
		return errAuthRequired
	}
	ss.from = from
	ss.rcpts = nil
	return nil
}

func (ss *session) Rcpt(to string, _ *smtp.RcptOptions) error {
	if r, rejected := ss.srv.checkRecipient(to); rejected {
		logger.Debug("mocksmtp: recipient rejected", "rcpt", to, "reply", r.String())
		return r.smtpError()
	}
	ss.rcpts = append(ss.rcpts, to)
	return nil
}

func (ss *session) Data(r io.Reader) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	ss.srv.store(Message{
		ID:          uuid.NewString(),
		From:        ss.from,
		To:          append([]string(nil), ss.rcpts...),
		Data:        string(body),
		TLS:         ss.secure(),
		AuthUser:    ss.authUser,
		AuthOverTLS: ss.authTLS,
		ReceivedAt:  time.Now(),
	})
	return nil
}

func (ss *session) Reset() {
	ss.from = ""
	ss.rcpts = nil
}

func (ss *session) Logout() error {
	return nil
}

// errorLog sends go-smtp's connection errors to the debug log.
type errorLog struct{}

func (errorLog) Printf(format string, v ...interface{}) {
	logger.Debug("mocksmtp: " + fmt.Sprintf(format, v...))
}

func (errorLog) Println(v ...interface{}) {
	logger.Debug("mocksmtp: " + strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}
