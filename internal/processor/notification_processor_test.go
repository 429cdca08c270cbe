package processor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/beaconblast/campaign-delivery/internal/model"
	"github.com/beaconblast/campaign-delivery/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockNotificationRepo struct {
	mock.Mock
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *model.Notification) (bool, error) {
	args := m.Called(ctx, n)
	return args.Bool(0), args.Error(1)
}

func eventMessage(t *testing.T, ev *model.CampaignCompletedEvent) *queue.Message {
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	return &queue.Message{ID: "1-0", Data: data, Timestamp: time.Now()}
}

func completedEvent() *model.CampaignCompletedEvent {
	return &model.CampaignCompletedEvent{
		EventID:    "ev-1",
		UserID:     4,
		CampaignID: 9,
		Type:       model.NotificationCampaignSuccess,
		Title:      "Campaign Sent Successfully",
		Message:    "Campaign 'Launch' was sent successfully to 2 out of 3 recipients",
		Status:     model.CampaignStatusSent,
	}
}

func TestNotificationProcessor_Process(t *testing.T) {
	_, idem := setupIdempotency(t)
	repo := new(mockNotificationRepo)
	p := NewNotificationProcessor(repo, idem)
	ctx := context.Background()

	repo.On("Create", mock.Anything, mock.MatchedBy(func(n *model.Notification) bool {
		return n.EventID == "ev-1" && n.UserID == 4 && *n.CampaignID == 9 && n.Status == "sent"
	})).Return(true, nil).Once()

	require.NoError(t, p.Process(ctx, eventMessage(t, completedEvent())))
	// redelivery of the same event is suppressed
	require.NoError(t, p.Process(ctx, eventMessage(t, completedEvent())))

	repo.AssertNumberOfCalls(t, "Create", 1)
	assert.Equal(t, model.EventCampaignCompleted, p.GetType())
}

func TestNotificationProcessor_StoreFailureRetries(t *testing.T) {
	_, idem := setupIdempotency(t)
	repo := new(mockNotificationRepo)
	p := NewNotificationProcessor(repo, idem)
	ctx := context.Background()

	repo.On("Create", mock.Anything, mock.Anything).Return(false, errors.New("db down")).Once()
	require.Error(t, p.Process(ctx, eventMessage(t, completedEvent())))

	n, err := idem.GetRetryCount(ctx, "ev-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	repo.On("Create", mock.Anything, mock.Anything).Return(true, nil).Once()
	require.NoError(t, p.Process(ctx, eventMessage(t, completedEvent())))

	processed, err := idem.IsProcessed(ctx, "ev-1")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestNotificationProcessor_MalformedIsAcked(t *testing.T) {
	_, idem := setupIdempotency(t)
	repo := new(mockNotificationRepo)
	p := NewNotificationProcessor(repo, idem)

	assert.NoError(t, p.Process(context.Background(), &queue.Message{ID: "1-0", Data: []byte("{")}))
	assert.NoError(t, p.Process(context.Background(), &queue.Message{ID: "2-0", Data: []byte(`{"campaign_id":1}`)}))
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}
