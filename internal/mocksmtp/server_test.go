package mocksmtp

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"testing"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	srv := New(cfg)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()
	require.Eventually(t, func() bool { return srv.Addr() != "" }, time.Second, 5*time.Millisecond)
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func send(c *smtp.Client, from, to, body string) error {
	if err := c.Mail(from); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := fmt.Fprint(w, body); err != nil {
		return err
	}
	return w.Close()
}

func TestServer_AcceptsMail(t *testing.T) {
	srv := startServer(t, Config{})

	c, err := smtp.Dial(srv.Addr())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Hello("client.test"))
	ok, params := c.Extension("AUTH")
	assert.True(t, ok)
	assert.Contains(t, params, "PLAIN")

	body := "Subject: hello\r\n\r\nline one\r\n.leading dot\r\n"
	require.NoError(t, send(c, "news@example.com", "jane@example.com", body))
	require.NoError(t, c.Quit())

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "news@example.com", msgs[0].From)
	assert.Equal(t, []string{"jane@example.com"}, msgs[0].To)
	assert.Contains(t, msgs[0].Data, "Subject: hello")
	assert.Contains(t, msgs[0].Data, ".leading dot")
	assert.NotEmpty(t, msgs[0].ID)
	assert.Equal(t, 1, srv.Sessions())
}

func TestServer_RejectionRules(t *testing.T) {
	srv := startServer(t, Config{
		Rejections: map[string]Reply{"Ghost@Example.com": UserUnknown},
	})
	srv.Reject("full@example.com", MailboxFull)

	c, err := smtp.Dial(srv.Addr())
	require.NoError(t, err)
	defer c.Close()

	err = send(c, "news@example.com", "ghost@example.com", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "550 5.1.1")
	assert.Contains(t, err.Error(), "User unknown")

	require.NoError(t, c.Reset())
	err = send(c, "news@example.com", "full@example.com", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "452")

	require.NoError(t, c.Reset())
	require.NoError(t, send(c, "news@example.com", "ok@example.com", "x"))
	assert.Len(t, srv.Messages(), 1)

	srv.ClearRejections()
	assert.Empty(t, srv.Settings().Rejections)
}

func TestServer_BounceRate(t *testing.T) {
	srv := startServer(t, Config{})
	require.Error(t, srv.SetBounceRate(1.5))
	require.NoError(t, srv.SetBounceRate(1))

	c, err := smtp.Dial(srv.Addr())
	require.NoError(t, err)
	defer c.Close()

	for i := 0; i < 3; i++ {
		err := send(c, "news@example.com", fmt.Sprintf("r%d@example.com", i), "x")
		require.Error(t, err)
		require.NoError(t, c.Reset())
	}
	assert.Empty(t, srv.Messages())
}

func TestServer_RequireAuth(t *testing.T) {
	srv := startServer(t, Config{RequireAuth: true, Username: "user", Password: "secret"})

	t.Run("mail without auth", func(t *testing.T) {
		c, err := smtp.Dial(srv.Addr())
		require.NoError(t, err)
		defer c.Close()

		err = c.Mail("news@example.com")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "530")
	})

	t.Run("wrong password", func(t *testing.T) {
		c, err := smtp.Dial(srv.Addr())
		require.NoError(t, err)
		defer c.Close()

		err = c.Auth(smtp.PlainAuth("", "user", "nope", "127.0.0.1"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "535")
	})

	t.Run("valid credentials", func(t *testing.T) {
		c, err := smtp.Dial(srv.Addr())
		require.NoError(t, err)
		defer c.Close()

		require.NoError(t, c.Auth(smtp.PlainAuth("", "user", "secret", "127.0.0.1")))
		require.NoError(t, send(c, "news@example.com", "jane@example.com", "x"))
	})
}

func TestServer_DataWithoutRecipients(t *testing.T) {
	srv := startServer(t, Config{})

	c, err := smtp.Dial(srv.Addr())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Mail("news@example.com"))
	_, err = c.Data()
	require.Error(t, err)
	assert.Empty(t, srv.Messages())
}

func TestServer_StartTLS(t *testing.T) {
	tlsCfg, pool, err := SelfSignedTLS("127.0.0.1")
	require.NoError(t, err)
	srv := startServer(t, Config{RequireAuth: true, Username: "user", Password: "secret", TLSConfig: tlsCfg})

	c, err := smtp.Dial(srv.Addr())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Hello("client.test"))
	ok, _ := c.Extension("STARTTLS")
	require.True(t, ok)
	require.NoError(t, c.StartTLS(&tls.Config{RootCAs: pool, ServerName: "127.0.0.1"}))
	require.NoError(t, c.Auth(smtp.PlainAuth("", "user", "secret", "127.0.0.1")))
	require.NoError(t, send(c, "news@example.com", "jane@example.com", "x"))
	require.NoError(t, c.Quit())

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].TLS)
	assert.True(t, msgs[0].AuthOverTLS)
	assert.Equal(t, "user", msgs[0].AuthUser)
}

func TestServer_ImplicitTLS(t *testing.T) {
	tlsCfg, pool, err := SelfSignedTLS("127.0.0.1")
	require.NoError(t, err)
	srv := startServer(t, Config{TLSConfig: tlsCfg, ImplicitTLS: true})

	conn, err := tls.Dial("tcp", srv.Addr(), &tls.Config{RootCAs: pool, ServerName: "127.0.0.1"})
	require.NoError(t, err)
	c, err := smtp.NewClient(conn, "127.0.0.1")
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, send(c, "news@example.com", "jane@example.com", "x"))
	require.NoError(t, c.Quit())

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].TLS)
	assert.Empty(t, msgs[0].AuthUser)
}

func TestServer_ImplicitTLSNeedsConfig(t *testing.T) {
	srv := New(Config{ImplicitTLS: true})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.Error(t, srv.Serve(ln))
}

func TestReply_SMTPError(t *testing.T) {
	se := UserUnknown.smtpError()
	assert.Equal(t, 550, se.Code)
	assert.Equal(t, [3]int{5, 1, 1}, [3]int(se.EnhancedCode))
	assert.Equal(t, "Recipient address rejected: User unknown", se.Message)

	se = Reply{Code: 554, Message: "Transaction failed"}.smtpError()
	assert.Equal(t, [3]int(gosmtp.NoEnhancedCode), [3]int(se.EnhancedCode))
	assert.Equal(t, "Transaction failed", se.Message)
}

func TestServer_Close(t *testing.T) {
	srv := startServer(t, Config{})
	addr := srv.Addr()

	require.NoError(t, srv.Close())
	require.NoError(t, srv.Close())

	_, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, err)
}
