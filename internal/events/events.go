package events

import (
	"context"
	"encoding/json"
	"time"
)

// Channel is the single channel content lifecycle events are published on.
const Channel = "blog.events"

// Event type attribute values.
const (
	TypePostCreated    = "post.created"
	TypePostDeleted    = "post.deleted"
	TypeCommentCreated = "comment.created"
)

// Envelope is the JSON payload published for every content event.
type Envelope struct {
	// Type is one of the Type* constants.
	Type string `json:"type"`

	// PostID identifies the post the event is about.
	PostID int `json:"post_id"`

	// CommentID is set for comment events, zero otherwise.
	CommentID int `json:"comment_id,omitempty"`

	// ActorID is the authenticated user who caused the event.
	ActorID int `json:"actor_id"`

	// OccurredAt is when the event was produced.
	OccurredAt time.Time `json:"occurred_at"`
}

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// Events wraps a backend with a stable API. A nil *Events is valid and
// drops everything, so callers never have to branch on configuration.
type Events struct {
	backend Backend
}

// New constructs an Events wrapper for the provided backend.
func New(backend Backend) *Events {
	return &Events{backend: backend}
}

// PublishEnvelope marshals and publishes an envelope on the blog events
// channel. Publishing is best-effort on the request path: a nil receiver
// is a no-op and the caller decides what to do with a broker error.
func (e *Events) PublishEnvelope(ctx context.Context, env Envelope) error {
	if e == nil || e.backend == nil {
		return nil
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = time.Now()
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = e.backend.Publish(ctx, Channel, data, map[string]string{"type": env.Type})
	return err
}

// Subscribe consumes messages from the named channel.
func (e *Events) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if e == nil || e.backend == nil {
		return nil
	}
	return e.backend.Subscribe(ctx, channel, handler)
}

// Close closes the underlying backend.
func (e *Events) Close() error {
	if e == nil || e.backend == nil {
		return nil
	}
	return e.backend.Close()
}
