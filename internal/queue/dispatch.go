package queue

import (
	"context"
	"encoding/json"
	"log/slog"
)

// TopicDispatch carries DispatchJob messages: one per due campaign.
const TopicDispatch = "campaign_dispatch"

// DispatchJob asks a worker to run one dispatch cycle.
type DispatchJob struct {
	CampaignID int `json:"campaign_id"`
}

// PublishDispatch enqueues a dispatch cycle for the campaign.
func PublishDispatch(q Queue, campaignID int) error {
	body, err := json.Marshal(DispatchJob{CampaignID: campaignID})
	if err != nil {
		return err
	}
	return q.Publish(TopicDispatch, body)
}

// DispatchRunner executes one dispatch cycle for a campaign.
type DispatchRunner interface {
	RunCycle(ctx context.Context, campaignID int) error
}

// StartDispatchWorkers subscribes to the dispatch topic and fans jobs
// out to a fixed pool, so one large campaign cannot starve the timer
// loop or other campaigns.
func StartDispatchWorkers(ctx context.Context, q Queue, runner DispatchRunner, workers int, logger *slog.Logger) error {
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan DispatchJob, workers*2)

	for i := 0; i < workers; i++ {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case j := <-jobs:
					if err := runner.RunCycle(ctx, j.CampaignID); err != nil {
						logger.Error("dispatch cycle failed",
							slog.Int("campaign_id", j.CampaignID),
							slog.Any("error", err),
						)
					}
				}
			}
		}()
	}

	return q.Subscribe(TopicDispatch, func(body []byte) error {
		var j DispatchJob
		if err := json.Unmarshal(body, &j); err != nil {
			logger.Warn("invalid dispatch job", slog.Any("error", err))
			return nil // malformed, do not retry
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case jobs <- j:
			return nil
		}
	})
}
