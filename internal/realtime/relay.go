package realtime

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-api/pkg/messaging"
)

// envelope is the frame relayed between API instances.
type envelope struct {
	Origin    string          `json:"origin"`
	Recipient uuid.UUID       `json:"recipient"`
	Payload   json.RawMessage `json:"payload"`
}

// Relay pushes to local connections and fans the frame out to other instances through the broker.
type Relay struct {
	registry   *Registry
	broker     messaging.Broker
	instanceID string
	logger     zerolog.Logger
}

// NewRelay returns a Relay. With a nil broker it only reaches local connections.
func NewRelay(registry *Registry, broker messaging.Broker, instanceID string, logger zerolog.Logger) *Relay {
	if instanceID == "" {
		instanceID = uuid.NewString()
	}
	return &Relay{
		registry:   registry,
		broker:     broker,
		instanceID: instanceID,
		logger:     logger.With().Str("component", "live-relay").Logger(),
	}
}

// Push returns the number of local connections that accepted payload.
// Publishing to other instances is best-effort and only logged on failure.
func (r *Relay) Push(ctx context.Context, recipient uuid.UUID, payload []byte) int {
	delivered := r.registry.Push(recipient, payload)

	if r.broker != nil {
		msg := envelope{Origin: r.instanceID, Recipient: recipient, Payload: payload}
		if err := r.broker.Publish(ctx, messaging.ChannelLivePush, msg); err != nil {
			r.logger.Warn().Err(err).Str("recipient", recipient.String()).Msg("Failed to relay live push")
		}
	}
	return delivered
}

// Run delivers frames published by other instances until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	if r.broker == nil {
		<-ctx.Done()
		return nil
	}

	messages, err := r.broker.Subscribe(ctx, messaging.ChannelLivePush)
	if err != nil {
		return err
	}

	r.logger.Info().Str("instance", r.instanceID).Msg("Live relay subscribed")
	for raw := range messages {
		var msg envelope
		if err := json.Unmarshal(raw, &msg); err != nil {
			r.logger.Warn().Err(err).Msg("Dropping malformed relay frame")
			continue
		}
		if msg.Origin == r.instanceID {
			continue
		}
		r.registry.Push(msg.Recipient, msg.Payload)
	}
	return nil
}
