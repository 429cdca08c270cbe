package fixtures

import (
	"time"

	"github.com/beaconblast/campaign-delivery/internal/model"
)

const (
	TestUserID      int64 = 1
	OtherTestUserID int64 = 2
)

var TestContacts = []struct {
	Email     string
	FirstName string
	LastName  string
}{
	{"jane@example.com", "Jane", "Doe"},
	{"john@example.com", "John", "Smith"},
	{"ghost@example.com", "Ghost", ""},
}

// NewTestCampaign is a draft with a personalized subject and one link.
func NewTestCampaign(userID int64) *model.Campaign {
	return &model.Campaign{
		UserID:      userID,
		Name:        "Autumn sale",
		Subject:     "{{ first_name }}, the sale is on",
		SenderName:  "Beacon",
		SenderEmail: "news@beacon.test",
		HTMLContent: `<html><body><h1>Hi {{ name }}</h1><p><a href="https://shop.example.com/autumn">Shop now</a></p></body></html>`,
		TextContent: "Hi {{ name }}, visit https://shop.example.com/autumn",
		Status:      model.CampaignStatusDraft,
	}
}

// NewScheduledCampaign is due at the given time.
func NewScheduledCampaign(userID int64, at time.Time) *model.Campaign {
	c := NewTestCampaign(userID)
	c.Name = "Scheduled digest"
	c.Status = model.CampaignStatusScheduled
	c.ScheduledAt = &at
	return c
}

func NewTestContact(userID int64, email, first, last string) *model.Contact {
	return &model.Contact{
		UserID:     userID,
		Email:      email,
		FirstName:  first,
		LastName:   last,
		Status:     model.ContactStatusActive,
		Subscribed: true,
	}
}
