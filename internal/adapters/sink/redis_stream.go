package sink

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/domain"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/ports"
)

// RedisStreamSink appends one stream entry per stimulus record, trimming the
// stream to roughly MaxLen entries when MaxLen > 0.
type RedisStreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisStreamSink(client *redis.Client, stream string, maxLen int64) *RedisStreamSink {
	return &RedisStreamSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *RedisStreamSink) Name() string { return "redis_stream" }

func (s *RedisStreamSink) WriteBatch(ctx context.Context, records []domain.StimulusRecord) error {
	if len(records) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, r := range records {
		values := map[string]interface{}{
			"run_id":      r.RunID,
			"channel":     strconv.Itoa(r.Channel),
			"target":      r.Target.UTC().Format(time.RFC3339Nano),
			"outcome":     string(r.Outcome),
			"lateness_us": strconv.FormatInt(r.Lateness.Microseconds(), 10),
		}
		if !r.FiredAt.IsZero() {
			values["fired_at"] = r.FiredAt.UTC().Format(time.RFC3339Nano)
		}
		if r.Error != "" {
			values["error"] = r.Error
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: s.stream,
			MaxLen: s.maxLen,
			Approx: s.maxLen > 0,
			Values: values,
		})
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStreamSink) Close() error { return s.client.Close() }

var _ ports.EventSink = (*RedisStreamSink)(nil)
