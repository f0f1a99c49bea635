// internal/sender/mock_sender.go
package sender

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// MockSender simulates delivery with a configurable failure rate.
// Real SMTP/SMS/social transports live in the surrounding application;
// this engine only consumes the ChannelSender contract.
type MockSender struct {
	FailureRate float64
	Latency     time.Duration
}

func (s *MockSender) Send(ctx context.Context, msg Message) error {
	if s.Latency > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.Latency):
		}
	}

	if rand.Float64() < s.FailureRate {
		return fmt.Errorf("mock send to %s via %s failed", msg.Contact, msg.Channel)
	}
	return nil
}
