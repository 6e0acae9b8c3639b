package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/savanahq/savana/pkg/ai"
	"github.com/savanahq/savana/pkg/bus"
	"github.com/savanahq/savana/pkg/observability"
)

// roomSubjectPrefix is the bus subject space used to mirror room traffic
// across instances: one subject per room under savana.room.<roomID>.
const roomSubjectPrefix = "savana.room."

// envelope is the bus wire format for mirrored room traffic. Origin lets an
// instance skip its own published messages when they echo back.
type envelope struct {
	Origin  string       `json:"origin"`
	RoomID  string       `json:"roomId"`
	Exclude string       `json:"exclude,omitempty"`
	Message *ChatMessage `json:"message"`
}

// Router moves chat messages through rooms: it relays sender traffic to
// peers, mirrors it across instances via the bus, detects assistant
// triggers, and broadcasts generated replies.
type Router struct {
	registry   *Registry
	generator  ai.Generator
	bus        bus.MessageBus
	busSub     bus.Subscription
	instanceID string
	logger     *observability.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithBus mirrors room traffic over the given bus so rooms span instances.
// instanceID must be unique per process; it tags published envelopes so an
// instance can ignore its own echoes.
func WithBus(b bus.MessageBus, instanceID string) RouterOption {
	return func(r *Router) {
		r.bus = b
		r.instanceID = instanceID
	}
}

// NewRouter creates a router over the given registry and generator. If a bus
// is configured, the router subscribes to the room subject space; call Close
// to release the subscription.
func NewRouter(registry *Registry, generator ai.Generator, logger *observability.Logger, opts ...RouterOption) (*Router, error) {
	r := &Router{
		registry:  registry,
		generator: generator,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.bus != nil {
		sub, err := r.bus.Subscribe(context.Background(), roomSubjectPrefix+">", r.handleMirrored)
		if err != nil {
			return nil, fmt.Errorf("subscribing to room subjects: %w", err)
		}
		r.busSub = sub
	}

	return r, nil
}

// Close releases the router's bus subscription, if any.
func (r *Router) Close() error {
	if r.busSub != nil {
		return r.busSub.Unsubscribe()
	}
	return nil
}

// Connect registers an admitted session's channel with its room.
func (r *Router) Connect(session *Session, ch Channel) {
	r.registry.Join(session, ch)
}

// Disconnect removes the session's channel from its room. Safe to call more
// than once. In-flight generations for the room are not cancelled; their
// replies still reach whoever remains.
func (r *Router) Disconnect(session *Session, reason string) {
	r.registry.Leave(session)
	r.logger.ChannelClosed(session.ChannelID, session.RoomID, reason)
}

// HandleInbound processes one message from a session: relay to room peers
// first, then evaluate the assistant trigger. The sender never receives its
// own message back. Trigger handling is asynchronous and never blocks relay.
func (r *Router) HandleInbound(session *Session, msg *ChatMessage) {
	if msg == nil {
		return
	}
	if msg.Sender == nil {
		msg.Sender = &Identity{ID: session.Identity.ID, Email: session.Identity.Email}
	}

	r.deliver(session.RoomID, msg, session.ChannelID)
	observability.MessagesRelayed.Inc()

	r.mirror(session.RoomID, msg, session.ChannelID)

	if strings.Contains(msg.Text, TriggerMarker) {
		prompt := strings.TrimSpace(strings.Replace(msg.Text, TriggerMarker, "", 1))
		go r.generateAndBroadcast(context.Background(), session.RoomID, prompt)
	}
}

// deliver fans a message out to the room, skipping excludeChannel ("" means
// deliver to everyone). Channels that refuse the send are counted and
// skipped; delivery to the rest continues.
func (r *Router) deliver(roomID string, msg *ChatMessage, excludeChannel string) {
	members := r.registry.MembersOf(roomID)
	delivered := 0
	for _, ch := range members {
		if ch.ID() == excludeChannel {
			continue
		}
		if err := ch.Send(msg); err != nil {
			observability.DeliveriesDropped.Inc()
			continue
		}
		delivered++
	}
	r.logger.MessageRelayed(roomID, delivered)
}

// mirror publishes the message to the room's bus subject so peer instances
// can deliver it to their local members.
func (r *Router) mirror(roomID string, msg *ChatMessage, excludeChannel string) {
	if r.bus == nil {
		return
	}
	env := envelope{
		Origin:  r.instanceID,
		RoomID:  roomID,
		Exclude: excludeChannel,
		Message: msg,
	}
	data, err := json.Marshal(env)
	if err != nil {
		r.logger.Error("marshaling room envelope", "room_id", roomID, "error", err)
		return
	}
	if err := r.bus.Publish(context.Background(), roomSubjectPrefix+roomID, data); err != nil {
		r.logger.Error("mirroring room message", "room_id", roomID, "error", err)
	}
}

// handleMirrored delivers envelopes published by peer instances to local
// room members. Envelopes tagged with this instance's own origin already
// went through deliver and are skipped.
func (r *Router) handleMirrored(msg *bus.Message) {
	var env envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		r.logger.Error("decoding room envelope", "subject", msg.Subject, "error", err)
		return
	}
	if env.Origin == r.instanceID || env.Message == nil {
		return
	}
	r.deliver(env.RoomID, env.Message, env.Exclude)
}

// generateAndBroadcast runs a generation and broadcasts the assistant reply
// to every current room member, including the user who triggered it. A
// failed generation produces no room traffic beyond a log line.
func (r *Router) generateAndBroadcast(ctx context.Context, roomID, prompt string) {
	reply, err := r.generator.Generate(ctx, prompt)
	if err != nil {
		observability.GenerationFailures.Inc()
		r.logger.GenerationFailed(roomID, err)
		return
	}

	text, err := json.Marshal(reply)
	if err != nil {
		observability.GenerationFailures.Inc()
		r.logger.GenerationFailed(roomID, err)
		return
	}

	sender := AssistantIdentity()
	msg := &ChatMessage{
		Text:   string(text),
		Sender: &sender,
	}
	r.deliver(roomID, msg, "")
	r.mirror(roomID, msg, "")
	observability.AssistantReplies.Inc()
}
