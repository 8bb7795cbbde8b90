package report

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// RedisSink appends records to a Redis stream, trimmed to roughly MaxLen entries.
type RedisSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisSink creates a stream sink.
//
// Arguments:
//   - client: The Redis client. The caller owns it.
//   - stream: The stream key.
//   - maxLen: The approximate stream length kept by XADD MAXLEN ~. 0 disables trimming.
//
// Returns:
//   - *RedisSink: The sink.
func NewRedisSink(client *redis.Client, stream string, maxLen int) *RedisSink {
	return &RedisSink{client: client, stream: stream, maxLen: int64(maxLen)}
}

// Send implements Sink.
func (s *RedisSink) Send(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "error encoding record")
	}

	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"source":      rec.Source,
			"personCount": strconv.Itoa(rec.PersonCount),
			"fallenCount": strconv.Itoa(rec.FallenCount),
			"congestion":  rec.Congestion.String(),
			"data":        string(data),
			"timestamp":   strconv.FormatInt(ts.Unix(), 10),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return errors.Wrapf(err, "error appending to stream %s", s.stream)
	}
	return nil
}
