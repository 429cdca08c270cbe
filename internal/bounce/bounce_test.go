package bounce

import (
	"testing"

	"github.com/beaconblast/campaign-delivery/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want model.BounceType
	}{
		{"Recipient refused: 550 5.1.1 User Unknown", model.BounceTypeHard},
		{"550 No such user here", model.BounceTypeHard},
		{"Invalid Recipient", model.BounceTypeHard},
		{"554 Recipient address rejected: Access denied", model.BounceTypeHard},
		{"mailbox does not exist", model.BounceTypeHard},
		{"452 Mailbox full", model.BounceTypeSoft},
		{"quota exceeded for user", model.BounceTypeSoft},
		{"451 Try again later", model.BounceTypeSoft},
		{"message deferred", model.BounceTypeSoft},
		{"Connection failed: dial tcp: i/o timeout", model.BounceTypeSoft},
		{"something nobody has seen before", model.BounceTypeSoft},
		// hard wins when both lists match
		{"user unknown, try again later", model.BounceTypeHard},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, reason := Classify(tt.text)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.text, reason)
		})
	}
}

func TestClassify_IsTotal(t *testing.T) {
	for _, text := range []string{"", " ", "\x00", "ÜBER", "421"} {
		got, _ := Classify(text)
		assert.Contains(t, []model.BounceType{model.BounceTypeHard, model.BounceTypeSoft}, got)
	}
}

func TestDiagnostic(t *testing.T) {
	assert.Equal(t, "550 5.1.1", Diagnostic("Recipient refused: 550 5.1.1 user unknown"))
	assert.Equal(t, "452", Diagnostic("SMTP data error: 452 mailbox full"))
	assert.Equal(t, "", Diagnostic("Connection failed: dial tcp 203.0.113.9:25: connection refused"))
}
