package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/beaconblast/campaign-delivery/internal/model"
	"github.com/beaconblast/campaign-delivery/internal/queue"
	"github.com/beaconblast/campaign-delivery/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletedEvent(t *testing.T) {
	c := &model.Campaign{ID: 9, UserID: 4, Name: "Launch"}

	ev := CompletedEvent(c, &model.CampaignResult{Sent: 2, Recipients: 3}, nil)
	assert.Equal(t, model.NotificationCampaignSuccess, ev.Type)
	assert.Equal(t, "Campaign Sent Successfully", ev.Title)
	assert.Equal(t, "Campaign 'Launch' was sent successfully to 2 out of 3 recipients", ev.Message)
	assert.Equal(t, model.CampaignStatusSent, ev.Status)
	assert.EqualValues(t, 4, ev.UserID)
	assert.NotEmpty(t, ev.EventID)

	ev = CompletedEvent(c, &model.CampaignResult{Sent: 0, Recipients: 3}, nil)
	assert.Equal(t, model.NotificationCampaignFailed, ev.Type)
	assert.Equal(t, "Campaign 'Launch' failed to send. No emails were delivered successfully.", ev.Message)

	ev = CompletedEvent(c, nil, errors.New("smtp gone"))
	assert.Equal(t, "Campaign Failed", ev.Title)
	assert.Equal(t, "Campaign 'Launch' failed: smtp gone", ev.Message)
}

func TestNotifier_PublishesToQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	adapter, err := redis.NewRedisAdapter(t.Name()+"-"+mr.Addr(), "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	q, err := queue.NewQueue(adapter, queue.QueueConfig{
		Name:              "test:notifications",
		ConsumerGroup:     "test-group",
		ConsumerName:      "test-consumer",
		MaxRetries:        3,
		VisibilityTimeout: 5 * time.Second,
		PollInterval:      50 * time.Millisecond,
		BatchSize:         10,
	})
	require.NoError(t, err)

	c := &model.Campaign{ID: 9, UserID: 4, Name: "Launch"}
	NewNotifier(q).CampaignCompleted(context.Background(), c, &model.CampaignResult{Sent: 1, Recipients: 1}, nil)

	entries, err := adapter.Client().XRange(context.Background(), "test:notifications", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.EventCampaignCompleted, entries[0].Values["meta_event"])

	var ev model.CampaignCompletedEvent
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values["data"].(string)), &ev))
	assert.EqualValues(t, 9, ev.CampaignID)
	assert.Equal(t, model.NotificationCampaignSuccess, ev.Type)
}

func TestNotifier_NilSafe(t *testing.T) {
	var n *Notifier
	assert.NotPanics(t, func() {
		n.CampaignCompleted(context.Background(), &model.Campaign{}, nil, nil)
	})
	assert.NotPanics(t, func() {
		NewNotifier(nil).CampaignCompleted(context.Background(), &model.Campaign{}, nil, nil)
	})
}
