// internal/service/metrics_service.go
package service

import (
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/repository"
)

// MetricsService produces campaign rollups. Counts are recomputed from
// the membership rows and attempts log on every call; nothing here is
// a cached counter.
type MetricsService struct {
	Campaigns repository.CampaignRepositoryInterface
	Members   repository.CampaignRecipientRepositoryInterface
	Attempts  repository.DeliveryAttemptRepositoryInterface
}

func (s *MetricsService) CampaignMetrics(campaignID int) (*model.CampaignMetrics, error) {
	if _, err := s.Campaigns.GetByID(campaignID); err != nil {
		return nil, err
	}
	return s.Members.CountByStatus(campaignID)
}

func (s *MetricsService) ChannelMetrics(campaignID int) ([]*model.ChannelMetrics, error) {
	if _, err := s.Campaigns.GetByID(campaignID); err != nil {
		return nil, err
	}
	return s.Attempts.ChannelMetrics(campaignID)
}
