package sink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/PratikDhanave/interaction-analytics-service/internal/reporter"
)

// DefaultStream is the Redis stream events are appended to when none is configured.
const DefaultStream = "analytics:events"

// RedisSink appends every event to a Redis stream for downstream consumers.
type RedisSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisSink connects to redisURL and fails fast if the server is unreachable.
// maxLen > 0 caps the stream approximately.
func NewRedisSink(redisURL, stream string, maxLen int64) (*RedisSink, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid redis URL")
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "failed to connect to redis")
	}

	if stream == "" {
		stream = DefaultStream
	}
	return &RedisSink{client: client, stream: stream, maxLen: maxLen}, nil
}

// Report implements reporter.Sink.
func (r *RedisSink) Report(ctx context.Context, ev reporter.Event) error {
	attrs := ev.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	attrsJSON, err := json.Marshal(attrs)
	if err != nil {
		return errors.Wrapf(err, "marshal attributes of %q", ev.Name)
	}

	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			"kind":       string(ev.Kind),
			"name":       ev.Name,
			"tenant_id":  ev.TenantID,
			"session_id": ev.SessionID,
			"ts":         reporter.FormatTimestamp(ev.Timestamp),
			"attributes": string(attrsJSON),
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}

	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return errors.Wrapf(err, "xadd %s", r.stream)
	}
	return nil
}

// Close releases the Redis connection pool.
func (r *RedisSink) Close() error {
	return r.client.Close()
}
