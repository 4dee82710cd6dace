package broker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"storefront/internal/models"
	"storefront/internal/util"
)

// StreamAppender is the part of the Redis client the publisher needs.
type StreamAppender interface {
	AppendStream(ctx context.Context, stream string, maxLen int64, values map[string]interface{}) (string, error)
}

// RecordMirror receives a copy of every record appended to a stream.
type RecordMirror interface {
	PublishRecord(ctx context.Context, stream, key string, record map[string]string) error
}

// EventPublisher pushes flattened event records to Redis streams named
// <prefix>:<kind>. Publishing never fails the caller: on error it logs and
// returns models.StreamOffline.
type EventPublisher struct {
	streams StreamAppender
	mirror  RecordMirror
	prefix  string
	maxLen  int64
	timeout time.Duration
	logger  *zap.Logger
}

// NewEventPublisher creates a new event publisher. mirror may be nil.
func NewEventPublisher(streams StreamAppender, mirror RecordMirror, prefix string, maxLen int64) *EventPublisher {
	return &EventPublisher{
		streams: streams,
		mirror:  mirror,
		prefix:  prefix,
		maxLen:  maxLen,
		timeout: 3 * time.Second,
		logger:  util.GetLogger(),
	}
}

// Stream returns the stream name for kind, or "" when publishing is disabled.
func (ep *EventPublisher) Stream(kind string) string {
	if ep == nil || ep.prefix == "" {
		return ""
	}
	return ep.prefix + ":" + kind
}

// Publish appends record to the stream for kind and returns the entry id.
// An empty id means publishing is disabled.
func (ep *EventPublisher) Publish(ctx context.Context, kind string, record models.EventRecord) string {
	stream := ep.Stream(kind)
	if stream == "" || ep.streams == nil {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, ep.timeout)
	defer cancel()

	values := make(map[string]interface{}, len(record))
	for k, v := range record {
		values[k] = v
	}

	id, err := ep.streams.AppendStream(ctx, stream, ep.maxLen, values)
	if err != nil {
		util.StreamPublishTotal.WithLabelValues(stream, "offline").Inc()
		ep.logger.Warn("Failed to publish stream event",
			zap.String("stream", stream),
			zap.Error(err))
		return models.StreamOffline
	}
	util.StreamPublishTotal.WithLabelValues(stream, "ok").Inc()

	if ep.mirror != nil {
		if err := ep.mirror.PublishRecord(ctx, stream, id, record); err != nil {
			ep.logger.Warn("Failed to mirror stream event to kafka",
				zap.String("stream", stream),
				zap.String("stream_id", id),
				zap.Error(err))
		}
	}

	ep.logger.Debug("Published stream event",
		zap.String("stream", stream),
		zap.String("stream_id", id))
	return id
}
