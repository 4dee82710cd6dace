package broker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/models"
)

type fakeStreams struct {
	err    error
	stream string
	maxLen int64
	values map[string]interface{}
}

func (f *fakeStreams) AppendStream(_ context.Context, stream string, maxLen int64, values map[string]interface{}) (string, error) {
	f.stream = stream
	f.maxLen = maxLen
	f.values = values
	if f.err != nil {
		return "", f.err
	}
	return "1700000000000-0", nil
}

type fakeMirror struct {
	calls int
	key   string
	err   error
}

func (f *fakeMirror) PublishRecord(_ context.Context, _ string, key string, _ map[string]string) error {
	f.calls++
	f.key = key
	return f.err
}

func TestPublishAppendsFlattenedRecord(t *testing.T) {
	streams := &fakeStreams{}
	mirror := &fakeMirror{}
	ep := NewEventPublisher(streams, mirror, "catalog", 1000)

	id := ep.Publish(context.Background(), models.EventKindCheckout, models.EventRecord{
		"checkout_id": "12",
		"status":      "pending",
	})

	assert.Equal(t, "1700000000000-0", id)
	assert.Equal(t, "catalog:checkout", streams.stream)
	assert.Equal(t, int64(1000), streams.maxLen)
	require.Len(t, streams.values, 2)
	assert.Equal(t, "12", streams.values["checkout_id"])
	assert.Equal(t, 1, mirror.calls)
	assert.Equal(t, id, mirror.key)
}

func TestPublishReturnsOfflineOnFailure(t *testing.T) {
	mirror := &fakeMirror{}
	ep := NewEventPublisher(&fakeStreams{err: errors.New("connection refused")}, mirror, "content", 0)

	id := ep.Publish(context.Background(), models.EventKindNews, models.EventRecord{"article_id": "1"})

	assert.Equal(t, models.StreamOffline, id)
	assert.Zero(t, mirror.calls)
}

func TestPublishMirrorFailureKeepsStreamID(t *testing.T) {
	ep := NewEventPublisher(&fakeStreams{}, &fakeMirror{err: errors.New("kafka down")}, "catalog", 0)

	id := ep.Publish(context.Background(), models.EventKindProduct, models.EventRecord{"product_id": "3"})

	assert.Equal(t, "1700000000000-0", id)
}

func TestPublishDisabledWithoutPrefix(t *testing.T) {
	streams := &fakeStreams{}
	ep := NewEventPublisher(streams, nil, "", 0)

	assert.Equal(t, "", ep.Publish(context.Background(), models.EventKindPage, models.EventRecord{}))
	assert.Equal(t, "", streams.stream)

	var nilPublisher *EventPublisher
	assert.Equal(t, "", nilPublisher.Stream(models.EventKindPage))
}
