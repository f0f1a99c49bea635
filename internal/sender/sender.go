// internal/sender/sender.go
package sender

import "context"

// Message is a fully rendered message bound for one contact on one
// channel. Subject is ignored by channels without a subject concept.
type Message struct {
	Channel string
	Subject string
	Body    string
	Contact string
}

// ChannelSender delivers a rendered message. Implementations are
// provided by the surrounding application, one per channel, and must be
// safe for concurrent use. Callers bound each Send with a context
// timeout; a timed-out send is a failure.
type ChannelSender interface {
	Send(ctx context.Context, msg Message) error
}

// Registry maps channel names to their senders.
type Registry struct {
	senders map[string]ChannelSender
}

func NewRegistry() *Registry {
	return &Registry{senders: make(map[string]ChannelSender)}
}

func (r *Registry) Register(channel string, s ChannelSender) {
	r.senders[channel] = s
}

// For returns the sender for a channel, if one is registered.
func (r *Registry) For(channel string) (ChannelSender, bool) {
	s, ok := r.senders[channel]
	return s, ok
}
