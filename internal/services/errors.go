package services

import "errors"

var (
	ErrCampaignNotFound  = errors.New("campaign not found")
	ErrNoSMTPCredentials = errors.New("no usable smtp account configured")
	ErrNoRecipients      = errors.New("campaign has no sendable recipients")
	ErrInvalidEmail      = errors.New("invalid email address")
)
