package services

import (
	"context"
	"testing"
	"time"

	"github.com/beaconblast/campaign-delivery/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyticsService_CampaignSummary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.seedCampaign(t, nil)

	opened := seedLog(t, env, c.ID, 0, "t1")
	clicked := seedLog(t, env, c.ID, 0, "t2")
	bounced := seedLog(t, env, c.ID, 0, "t3")
	seedLog(t, env, c.ID, 0, "t4")
	seedLog(t, env, c.ID, 0, "t5")
	seedLog(t, env, c.ID, 0, "t6")

	require.NoError(t, env.tracking.RecordOpen(ctx, model.TrackingRef{LogID: opened.ID}, engagement()))
	require.NoError(t, env.tracking.RecordClick(ctx, model.TrackingRef{LogID: clicked.ID}, "https://a", engagement()))
	require.NoError(t, env.tracking.RecordClick(ctx, model.TrackingRef{LogID: clicked.ID}, "https://b", engagement()))
	require.NoError(t, env.logs.MarkBounced(ctx, bounced.ID, model.BounceTypeSoft, "452 mailbox full", "452", time.Now().UTC()))

	s, err := env.analytics.CampaignSummary(ctx, c.ID, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 6, s.Total)
	assert.EqualValues(t, 2, s.Opened)
	assert.EqualValues(t, 1, s.Clicked)
	assert.EqualValues(t, 1, s.Bounced)
	assert.EqualValues(t, 2, s.LinkClicks)
	assert.EqualValues(t, 3, s.ByStatus["sent"])
	assert.Equal(t, 33.33, s.OpenRate)
	assert.Equal(t, 16.67, s.ClickRate)
	assert.Equal(t, 16.67, s.BounceRate)
}

func TestAnalyticsService_CampaignSummary_NotOwned(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCampaign(t, nil)

	_, err := env.analytics.CampaignSummary(context.Background(), c.ID, 42)
	assert.ErrorIs(t, err, ErrCampaignNotFound)
}

func TestPercent(t *testing.T) {
	assert.Zero(t, percent(5, 0))
	assert.Equal(t, 100.0, percent(3, 3))
	assert.Equal(t, 66.67, percent(2, 3))
}
