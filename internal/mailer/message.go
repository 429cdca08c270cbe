package mailer

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

var (
	stripTagsRegex  = regexp.MustCompile("<[^>]*>")
	blankLinesRegex = regexp.MustCompile(`\n\s*\n+`)
)

// Message is one outgoing email.
type Message struct {
	ToEmail string
	ToName  string
	Subject string
	HTML    string
	// Text is derived from HTML when empty.
	Text    string
	Headers map[string]string
}

func (t *Transport) compose(msg *Message) (*gomail.Message, string) {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", t.creds.FromEmail, t.creds.FromName)
	m.SetAddressHeader("To", msg.ToEmail, msg.ToName)
	if t.creds.ReplyTo != "" {
		m.SetHeader("Reply-To", t.creds.ReplyTo)
	}
	m.SetHeader("Subject", msg.Subject)

	id := newMessageID(t.creds.FromEmail)
	m.SetHeader("Message-ID", id)
	for k, v := range msg.Headers {
		m.SetHeader(k, v)
	}

	text := msg.Text
	if text == "" {
		text = PlainText(msg.HTML)
	}
	m.SetBody("text/plain", text)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}
	return m, id
}

func newMessageID(from string) string {
	domain := "localhost"
	if at := strings.LastIndexByte(from, '@'); at >= 0 && at < len(from)-1 {
		domain = from[at+1:]
	}
	return "<" + uuid.NewString() + "@" + domain + ">"
}

// PlainText strips tags from an HTML body for the text alternative.
func PlainText(html string) string {
	s := stripTagsRegex.ReplaceAllString(html, "")
	s = blankLinesRegex.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
