package queue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/beaconblast/campaign-delivery/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type campaignEvent struct {
	CampaignID int64  `json:"campaign_id"`
	Status     string `json:"status"`
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr := miniredis.RunT(t)

	// adapters are cached by name, keep one per test
	connName := t.Name() + "-" + mr.Addr()
	adapter, err := redis.NewRedisAdapter(connName, "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}

func testConfig(name string) QueueConfig {
	return QueueConfig{
		Name:              name,
		ConsumerGroup:     "test-group",
		ConsumerName:      "test-consumer",
		MaxRetries:        3,
		VisibilityTimeout: 5 * time.Second,
		PollInterval:      50 * time.Millisecond,
		BatchSize:         10,
	}
}

func TestQueue_PublishAndConsume(t *testing.T) {
	_, adapter := setupTestRedis(t)

	queue, err := NewQueue(adapter, testConfig("test:notifications"))
	require.NoError(t, err)
	defer queue.Stop(time.Second)

	ctx := context.Background()
	_, err = queue.PublishJSON(ctx, campaignEvent{CampaignID: 42, Status: "sent"}, map[string]string{"type": "campaign.completed"})
	require.NoError(t, err)

	received := make(chan *Message, 1)
	require.NoError(t, queue.Consume(func(ctx context.Context, msg *Message) error {
		received <- msg
		return nil
	}))

	select {
	case msg := <-received:
		var ev campaignEvent
		require.NoError(t, msg.Decode(&ev))
		assert.Equal(t, int64(42), ev.CampaignID)
		assert.Equal(t, "sent", ev.Status)
		assert.Equal(t, "campaign.completed", msg.Metadata["type"])
		assert.Equal(t, 0, msg.Attempts)
		assert.WithinDuration(t, time.Now(), msg.Timestamp, 5*time.Second)
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}

	assert.Eventually(t, func() bool {
		stats, err := queue.GetStats(ctx)
		return err == nil && stats.PendingMessages == 0
	}, time.Second, 20*time.Millisecond)
}

func TestQueue_ConsumeTwice(t *testing.T) {
	_, adapter := setupTestRedis(t)

	queue, err := NewQueue(adapter, testConfig("test:twice"))
	require.NoError(t, err)
	defer queue.Stop(time.Second)

	noop := func(ctx context.Context, msg *Message) error { return nil }
	require.NoError(t, queue.Consume(noop))
	assert.Error(t, queue.Consume(noop))
	assert.Error(t, queue.Consume(nil))
}

func TestQueue_RedeliversFailedMessage(t *testing.T) {
	_, adapter := setupTestRedis(t)

	cfg := testConfig("test:retry")
	cfg.VisibilityTimeout = 200 * time.Millisecond
	queue, err := NewQueue(adapter, cfg)
	require.NoError(t, err)
	defer queue.Stop(time.Second)

	ctx := context.Background()
	_, err = queue.PublishJSON(ctx, campaignEvent{CampaignID: 1}, nil)
	require.NoError(t, err)

	var calls atomic.Int32
	require.NoError(t, queue.Consume(func(ctx context.Context, msg *Message) error {
		if calls.Add(1) == 1 {
			return assert.AnError
		}
		return nil
	}))

	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, 3*time.Second, 20*time.Millisecond)
	assert.Eventually(t, func() bool {
		stats, err := queue.GetStats(ctx)
		return err == nil && stats.PendingMessages == 0
	}, time.Second, 20*time.Millisecond)
}

func TestQueue_DeadLetterAfterMaxRetries(t *testing.T) {
	_, adapter := setupTestRedis(t)

	cfg := testConfig("test:dlq")
	cfg.VisibilityTimeout = 100 * time.Millisecond
	cfg.MaxRetries = 1
	cfg.EnableDLQ = true
	queue, err := NewQueue(adapter, cfg)
	require.NoError(t, err)
	defer queue.Stop(time.Second)

	ctx := context.Background()
	_, err = queue.PublishJSON(ctx, campaignEvent{CampaignID: 7}, map[string]string{"type": "campaign.completed"})
	require.NoError(t, err)

	require.NoError(t, queue.Consume(func(ctx context.Context, msg *Message) error {
		return assert.AnError
	}))

	assert.Eventually(t, func() bool {
		n, err := adapter.XLen(ctx, "test:dlq:dlq")
		return err == nil && n == 1
	}, 3*time.Second, 20*time.Millisecond)
}

func TestQueue_GetStats(t *testing.T) {
	_, adapter := setupTestRedis(t)

	queue, err := NewQueue(adapter, testConfig("test:stats"))
	require.NoError(t, err)
	defer queue.Stop(time.Second)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := queue.PublishJSON(ctx, campaignEvent{CampaignID: int64(i)}, nil)
		require.NoError(t, err)
	}

	stats, err := queue.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.TotalMessages)
	assert.Zero(t, stats.InFlight)
}

func TestMessage_AckNack(t *testing.T) {
	_, adapter := setupTestRedis(t)

	queue, err := NewQueue(adapter, testConfig("test:ack"))
	require.NoError(t, err)
	defer queue.Stop(time.Second)
	ctx := context.Background()

	t.Run("ack", func(t *testing.T) {
		msgID, err := queue.Publish(ctx, []byte(`{"campaign_id":1}`), nil)
		require.NoError(t, err)

		msg := &Message{ID: msgID, queue: queue}
		assert.NoError(t, msg.Ack(ctx))
		assert.ErrorIs(t, msg.Ack(ctx), ErrAlreadyAcked)
		assert.ErrorIs(t, msg.Nack(), ErrAlreadyAcked)
	})

	t.Run("nack", func(t *testing.T) {
		msg := &Message{ID: "0-1", queue: queue}
		assert.NoError(t, msg.Nack())
		assert.ErrorIs(t, msg.Nack(), ErrAlreadyRejected)
		assert.ErrorIs(t, msg.Ack(ctx), ErrAlreadyRejected)
	})
}

func TestNewQueue_RequiresName(t *testing.T) {
	_, adapter := setupTestRedis(t)

	_, err := NewQueue(adapter, QueueConfig{})
	assert.Error(t, err)

	// an existing group is reused
	q1, err := NewQueue(adapter, testConfig("test:group"))
	require.NoError(t, err)
	q2, err := NewQueue(adapter, testConfig("test:group"))
	require.NoError(t, err)
	assert.NoError(t, q1.Stop(time.Second))
	assert.NoError(t, q2.Stop(time.Second))
}

func TestQueue_Stop(t *testing.T) {
	_, adapter := setupTestRedis(t)

	queue, err := NewQueue(adapter, testConfig("test:stop"))
	require.NoError(t, err)

	require.NoError(t, queue.Consume(func(ctx context.Context, msg *Message) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	}))
	assert.NoError(t, queue.Stop(2*time.Second))
}
