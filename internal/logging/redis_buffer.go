package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBufferConfig configures a RedisBuffer
type RedisBufferConfig struct {
	QueueKey  string
	MaxSize   int64 // oldest entries are trimmed beyond this
	BatchSize int64
}

// enqueueScript pushes one entry and trims the list to its newest ARGV[2]
// entries in a single round trip.
var enqueueScript = redis.NewScript(`
redis.call("RPUSH", KEYS[1], ARGV[1])
local max = tonumber(ARGV[2])
if max > 0 then
	redis.call("LTRIM", KEYS[1], -max, -1)
end
return redis.call("LLEN", KEYS[1])
`)

// requeueScript pushes ARGV[2..] back onto the head of the list, keeping
// their order, then trims to the newest ARGV[1] entries.
var requeueScript = redis.NewScript(`
for i = #ARGV, 2, -1 do
	redis.call("LPUSH", KEYS[1], ARGV[i])
end
local max = tonumber(ARGV[1])
if max > 0 then
	redis.call("LTRIM", KEYS[1], -max, -1)
end
return redis.call("LLEN", KEYS[1])
`)

// RedisBuffer is a bounded Redis list of JSON-encoded log records
type RedisBuffer struct {
	client *redis.Client
	config RedisBufferConfig
}

// NewRedisBuffer creates a buffer on top of an existing client
func NewRedisBuffer(client *redis.Client, config RedisBufferConfig) *RedisBuffer {
	if config.QueueKey == "" {
		config.QueueKey = "gateway:requests"
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 1000
	}
	return &RedisBuffer{client: client, config: config}
}

// Enqueue appends rec, dropping the oldest entries when the buffer is full
func (b *RedisBuffer) Enqueue(ctx context.Context, rec *LogRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal log record: %w", err)
	}

	if err := enqueueScript.Run(ctx, b.client, []string{b.config.QueueKey}, data, b.config.MaxSize).Err(); err != nil {
		return fmt.Errorf("failed to push log record: %w", err)
	}
	return nil
}

// Requeue puts records back at the head of the buffer in their original
// order. When the buffer is full the requeued records are the first trimmed.
func (b *RedisBuffer) Requeue(ctx context.Context, records []*LogRecord) error {
	if len(records) == 0 {
		return nil
	}

	args := make([]any, 0, len(records)+1)
	args = append(args, b.config.MaxSize)
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal log record %s: %w", rec.RequestID, err)
		}
		args = append(args, data)
	}

	if err := requeueScript.Run(ctx, b.client, []string{b.config.QueueKey}, args...).Err(); err != nil {
		return fmt.Errorf("failed to requeue %d log records: %w", len(records), err)
	}
	return nil
}

// DequeueBatch pops up to BatchSize records from the head of the buffer.
// Entries that fail to decode are skipped.
func (b *RedisBuffer) DequeueBatch(ctx context.Context) ([]*LogRecord, error) {
	raw, err := b.client.LPopCount(ctx, b.config.QueueKey, int(b.config.BatchSize)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop log records: %w", err)
	}

	records := make([]*LogRecord, 0, len(raw))
	for _, item := range raw {
		var rec LogRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			Warnf("dropping malformed log record: %v", err)
			continue
		}
		records = append(records, &rec)
	}
	return records, nil
}

// Len returns the number of buffered records
func (b *RedisBuffer) Len(ctx context.Context) (int64, error) {
	return b.client.LLen(ctx, b.config.QueueKey).Result()
}

// RedisSink adapts a RedisBuffer to Sink
type RedisSink struct {
	buffer  *RedisBuffer
	timeout time.Duration
}

func NewRedisSink(buffer *RedisBuffer) *RedisSink {
	return &RedisSink{buffer: buffer, timeout: 2 * time.Second}
}

// Enqueue runs on its own short deadline so a canceled request still gets
// its audit record.
func (s *RedisSink) Enqueue(rec *LogRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.buffer.Enqueue(ctx, rec); err != nil {
		return fmt.Errorf("failed to enqueue log record: %w", err)
	}
	return nil
}
