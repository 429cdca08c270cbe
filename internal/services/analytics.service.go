package services

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/beaconblast/campaign-delivery/internal/model"
	"github.com/beaconblast/campaign-delivery/internal/repository"
)

type CampaignReader interface {
	GetForUser(ctx context.Context, id, userID int64) (*model.Campaign, error)
}

type EmailLogStats interface {
	CountByStatus(ctx context.Context, campaignID int64) (map[string]int64, error)
	CountLinkClicks(ctx context.Context, campaignID int64) (int64, error)
}

type AnalyticsService struct {
	campaigns CampaignReader
	stats     EmailLogStats
}

func NewAnalyticsService(campaigns CampaignReader, stats EmailLogStats) *AnalyticsService {
	return &AnalyticsService{
		campaigns: campaigns,
		stats:     stats,
	}
}

// CampaignSummary reports delivery and engagement of one campaign. A click
// counts as an open.
func (s *AnalyticsService) CampaignSummary(ctx context.Context, campaignID, userID int64) (*model.CampaignSummary, error) {
	c, err := s.campaigns.GetForUser(ctx, campaignID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load campaign: %w", err)
	}

	byStatus, err := s.stats.CountByStatus(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("count email logs: %w", err)
	}
	clicks, err := s.stats.CountLinkClicks(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("count link clicks: %w", err)
	}

	var total int64
	for _, n := range byStatus {
		total += n
	}
	clicked := byStatus[string(model.EmailStatusClicked)]
	opened := byStatus[string(model.EmailStatusOpened)] + clicked
	bounced := byStatus[string(model.EmailStatusBounced)]

	return &model.CampaignSummary{
		CampaignID: c.ID,
		Status:     c.Status,
		Total:      total,
		ByStatus:   byStatus,
		Opened:     opened,
		Clicked:    clicked,
		Bounced:    bounced,
		LinkClicks: clicks,
		OpenRate:   percent(opened, total),
		ClickRate:  percent(clicked, total),
		BounceRate: percent(bounced, total),
	}, nil
}

// percent rounds part/total to two decimals.
func percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)*10000/float64(total)) / 100
}
