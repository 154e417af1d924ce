package bus

import "time"

// EventKind identifies what a gateway delivered: a user message, a direct
// mention of the assistant, or a membership/channel lifecycle notification.
type EventKind string

const (
	EventMessage           EventKind = "message"
	EventAppMention        EventKind = "app_mention"
	EventMemberJoined      EventKind = "member_joined"
	EventMemberLeft        EventKind = "member_left"
	EventChannelCreated    EventKind = "channel_created"
	EventChannelArchived   EventKind = "channel_archived"
	EventChannelUnarchived EventKind = "channel_unarchived"
)

// InboundEvent is one delivered platform event. Immutable after creation;
// discarded once the engine has handled it.
type InboundEvent struct {
	Kind          EventKind         `json:"kind"`
	Gateway       string            `json:"gateway"`
	ChannelID     string            `json:"channel_id"`
	UserID        string            `json:"user_id"`
	UserName      string            `json:"user_name,omitempty"`
	Text          string            `json:"text,omitempty"`
	ThreadRef     string            `json:"thread_ref,omitempty"`
	IsDirect      bool              `json:"is_direct"`
	WasMentioned  bool              `json:"was_mentioned"`
	Timestamp     time.Time         `json:"timestamp"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
}

// OutboundMessage is fire-and-forget from the engine's perspective; the
// owning gateway is responsible for delivery.
type OutboundMessage struct {
	Gateway   string `json:"gateway"`
	ChannelID string `json:"channel_id"`
	Text      string `json:"text"`
	ThreadRef string `json:"thread_ref,omitempty"`
}
