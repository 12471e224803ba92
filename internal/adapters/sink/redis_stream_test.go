package sink

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/domain"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisStreamSinkAppendsRecords(t *testing.T) {
	_, client := setupTestRedis(t)
	sink := NewRedisStreamSink(client, "dnb:stimuli", 0)

	target := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	records := []domain.StimulusRecord{
		{RunID: "run-7", Channel: 65, Target: target, FiredAt: target.Add(time.Millisecond), Outcome: domain.OutcomeFired, Lateness: time.Millisecond},
		{RunID: "run-7", Channel: 65, Target: target.Add(time.Second), Outcome: domain.OutcomeFailed, Error: "device offline"},
	}
	require.NoError(t, sink.WriteBatch(context.Background(), records))

	entries, err := client.XRange(context.Background(), "dnb:stimuli", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "run-7", entries[0].Values["run_id"])
	assert.Equal(t, "fired", entries[0].Values["outcome"])
	assert.Equal(t, "1000", entries[0].Values["lateness_us"])
	assert.Equal(t, "2026-03-01T09:30:00Z", entries[0].Values["target"])

	assert.Equal(t, "failed", entries[1].Values["outcome"])
	assert.Equal(t, "device offline", entries[1].Values["error"])
	_, hasFired := entries[1].Values["fired_at"]
	assert.False(t, hasFired)
}

func TestRedisStreamSinkEmptyBatch(t *testing.T) {
	mr, client := setupTestRedis(t)
	sink := NewRedisStreamSink(client, "dnb:stimuli", 100)

	require.NoError(t, sink.WriteBatch(context.Background(), nil))
	assert.False(t, mr.Exists("dnb:stimuli"))
	assert.Equal(t, "redis_stream", sink.Name())
}

func TestRedisStreamSinkReportsConnectionErrors(t *testing.T) {
	mr, client := setupTestRedis(t)
	sink := NewRedisStreamSink(client, "dnb:stimuli", 0)
	mr.Close()

	err := sink.WriteBatch(context.Background(), []domain.StimulusRecord{{RunID: "r", Outcome: domain.OutcomeFired}})
	assert.Error(t, err)
}
