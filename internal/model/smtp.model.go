package model

import (
	"errors"
	"fmt"
	"time"
)

type Encryption string

const (
	EncryptionSSL  Encryption = "ssl"
	EncryptionTLS  Encryption = "tls"
	EncryptionNone Encryption = "none"
)

type CredentialSource string

const (
	CredentialSourceCampaign CredentialSource = "campaign"
	CredentialSourceUser     CredentialSource = "user"
	CredentialSourceGlobal   CredentialSource = "global"
)

var (
	ErrSMTPAccountInactive   = errors.New("smtp account is not active")
	ErrSMTPAccountUnverified = errors.New("smtp account is not verified")
)

type SmtpAccount struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	Provider        string     `json:"provider"`
	Host            string     `json:"host"`
	Port            int        `json:"port"`
	Username        string     `json:"username"`
	Password        string     `json:"-"`
	Encryption      Encryption `json:"encryption"`
	FromName        string     `json:"from_name"`
	FromEmail       string     `json:"from_email"`
	ReplyToEmail    string     `json:"reply_to_email,omitempty"`
	IsActive        bool       `json:"is_active"`
	IsVerified      bool       `json:"is_verified"`
	IsGlobalDefault bool       `json:"is_global_default"`
	DailyLimit      *int       `json:"daily_limit,omitempty"`
	EmailsSentToday int        `json:"emails_sent_today"`
	TotalEmailsSent int64      `json:"total_emails_sent"`
	LastUsedAt      *time.Time `json:"last_used_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Usable returns nil when the account may be used for sending.
func (a *SmtpAccount) Usable() error {
	if !a.IsActive {
		return fmt.Errorf("%w: account %d", ErrSMTPAccountInactive, a.ID)
	}
	if !a.IsVerified {
		return fmt.Errorf("%w: account %d", ErrSMTPAccountUnverified, a.ID)
	}
	return nil
}

type UserSmtpAssignment struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	SmtpAccountID int64     `json:"smtp_account_id"`
	IsDefault     bool      `json:"is_default"`
	AssignedAt    time.Time `json:"assigned_at"`
}

// SmtpCredentials is the resolved server and sender identity used for one
// campaign send.
type SmtpCredentials struct {
	AccountID  int64
	Source     CredentialSource
	Host       string
	Port       int
	Username   string
	Password   string
	Encryption Encryption
	FromName   string
	FromEmail  string
	ReplyTo    string
	DailyLimit *int
}

func CredentialsFromAccount(a *SmtpAccount, source CredentialSource) *SmtpCredentials {
	return &SmtpCredentials{
		AccountID:  a.ID,
		Source:     source,
		Host:       a.Host,
		Port:       a.Port,
		Username:   a.Username,
		Password:   a.Password,
		Encryption: a.Encryption,
		FromName:   a.FromName,
		FromEmail:  a.FromEmail,
		ReplyTo:    a.ReplyToEmail,
		DailyLimit: a.DailyLimit,
	}
}
