package mailer

import "errors"

type ErrorKind int

const (
	KindUnexpected ErrorKind = iota
	KindAuth
	KindConnect
	KindRecipient
	KindData
	KindConnectionLost
)

func (k ErrorKind) prefix() string {
	switch k {
	case KindAuth:
		return "Authentication failed: "
	case KindConnect:
		return "Connection failed: "
	case KindRecipient:
		return "Recipient refused: "
	case KindData:
		return "SMTP data error: "
	case KindConnectionLost:
		return "Connection lost: "
	default:
		return "Failed to send email: "
	}
}

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindConnect:
		return "connect"
	case KindRecipient:
		return "recipient"
	case KindData:
		return "data"
	case KindConnectionLost:
		return "connection_lost"
	default:
		return "unexpected"
	}
}

// SendError is returned for every failed delivery. Its text is what gets
// stored as the bounce reason.
type SendError struct {
	Kind ErrorKind
	Err  error
}

func (e *SendError) Error() string {
	return e.Kind.prefix() + e.Err.Error()
}

func (e *SendError) Unwrap() error {
	return e.Err
}

func newSendError(kind ErrorKind, err error) *SendError {
	var se *SendError
	if errors.As(err, &se) {
		return se
	}
	return &SendError{Kind: kind, Err: err}
}

// KindOf reports the category of err, or KindUnexpected when err is not a
// *SendError.
func KindOf(err error) ErrorKind {
	var se *SendError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnexpected
}
