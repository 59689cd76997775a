package artifacts

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"arenda-utils/internal/config"
	"arenda-utils/internal/logging"
)

// Sink receives intermediate run artifacts: fetched markup, rendered browser
// pages, candidate dumps. Implementations are best-effort debugging aids, so
// callers go through TryPut and never fail a run on a sink error.
type Sink interface {
	Put(ctx context.Context, runID, stage string, payload []byte) error
	Close() error
}

// TryPut stores an artifact and swallows any failure with a warning.
func TryPut(ctx context.Context, sink Sink, runID, stage string, payload []byte) {
	if sink == nil {
		return
	}
	if err := sink.Put(ctx, runID, stage, payload); err != nil {
		logging.Warn("failed to store artifact", map[string]interface{}{
			"run_id": runID,
			"stage":  stage,
			"error":  err.Error(),
		})
	}
}

// Key builds the storage key for one artifact.
func Key(runID, stage string) string {
	return fmt.Sprintf("artifact:%s:%s", runID, stage)
}

// NewSink builds the configured sink. Artifact capture is opt-in; when
// disabled everything goes to a NoopSink.
func NewSink(cfg *config.Config) Sink {
	if !cfg.Artifacts.Enabled {
		return NoopSink{}
	}
	return NewRedisSink(cfg)
}

// NoopSink discards every artifact.
type NoopSink struct{}

func (NoopSink) Put(ctx context.Context, runID, stage string, payload []byte) error { return nil }
func (NoopSink) Close() error                                                      { return nil }

// RedisSink stores artifacts as expiring Redis keys.
type RedisSink struct {
	client *redis.Client
	ttl    time.Duration
	logger logging.Logger
}

// NewRedisSink creates a Redis-backed artifact sink.
func NewRedisSink(cfg *config.Config) *RedisSink {
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		// Fallback to default configuration
		opts = &redis.Options{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
		}
	}

	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}

	opts.DialTimeout = cfg.Redis.Timeout
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	return &RedisSink{
		client: redis.NewClient(opts),
		ttl:    cfg.Artifacts.TTL,
		logger: logging.GetGlobalLogger(),
	}
}

// Put stores one artifact under artifact:<runID>:<stage> with the configured TTL.
func (s *RedisSink) Put(ctx context.Context, runID, stage string, payload []byte) error {
	if err := s.client.Set(ctx, Key(runID, stage), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store artifact %s: %w", Key(runID, stage), err)
	}
	return nil
}

// Ping tests the Redis connection.
func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// IsHealthy reports whether the sink can reach Redis.
func (s *RedisSink) IsHealthy(ctx context.Context) bool {
	return s.Ping(ctx) == nil
}

// Close closes the Redis connection.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
