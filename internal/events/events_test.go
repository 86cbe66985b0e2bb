package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	lastChannel string
	lastData    []byte
	lastAttrs   map[string]string
	err         error
}

func (f *fakeBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	f.lastChannel = channel
	f.lastData = data
	f.lastAttrs = attrs
	return "id", f.err
}

func (f *fakeBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	return f.err
}

func (f *fakeBackend) Close() error { return f.err }

func TestPublishEnvelope(t *testing.T) {
	backend := &fakeBackend{}
	ev := New(backend)

	err := ev.PublishEnvelope(context.Background(), Envelope{
		Type:    TypePostCreated,
		PostID:  5,
		ActorID: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, Channel, backend.lastChannel)
	assert.Equal(t, TypePostCreated, backend.lastAttrs["type"])

	var env Envelope
	require.NoError(t, json.Unmarshal(backend.lastData, &env))
	assert.Equal(t, 5, env.PostID)
	assert.False(t, env.OccurredAt.IsZero())
}

func TestPublishEnvelopeBackendError(t *testing.T) {
	backend := &fakeBackend{err: errors.New("broker down")}
	ev := New(backend)

	err := ev.PublishEnvelope(context.Background(), Envelope{Type: TypePostDeleted, PostID: 1})
	assert.Error(t, err)
}

func TestNilEventsIsNoOp(t *testing.T) {
	var ev *Events

	assert.NoError(t, ev.PublishEnvelope(context.Background(), Envelope{Type: TypePostCreated}))
	assert.NoError(t, ev.Subscribe(context.Background(), Channel, nil))
	assert.NoError(t, ev.Close())
}
