package repository

import "errors"

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrCampaignAlreadyClaimed is returned by ClaimForSending when the
	// campaign left draft/scheduled before the update landed.
	ErrCampaignAlreadyClaimed = errors.New("campaign already claimed for sending")
)
