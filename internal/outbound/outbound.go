// Package outbound delivers email and SMS messages to external gateways.
package outbound

import (
	"context"
	"fmt"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Message is one outbound email or SMS. Subject is ignored for SMS.
type Message struct {
	Channel Channel `json:"channel"`
	To      string  `json:"to"`
	Subject string  `json:"subject,omitempty"`
	Body    string  `json:"body"`
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Router dispatches each message to the sender registered for its channel.
type Router map[Channel]Sender

func (r Router) Send(ctx context.Context, msg Message) error {
	sender, ok := r[msg.Channel]
	if !ok {
		return fmt.Errorf("no sender for channel %q", msg.Channel)
	}
	return sender.Send(ctx, msg)
}
