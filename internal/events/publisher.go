// Package events publishes crawl lifecycle events to Redis Streams. The
// SaaS's email notifier and activity feed consume the stream; this core only
// produces.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/applyflow/jobcrawl/internal/notify"
)

const (
	// EventDataField is the field name for the serialized event payload.
	EventDataField = "event"

	// PublishedAtField is the field name for the publish timestamp.
	PublishedAtField = "published_at"

	// defaultMaxStreamLen caps the stream to prevent unbounded growth.
	defaultMaxStreamLen = 10000

	// defaultConnectionTimeout bounds the startup ping.
	defaultConnectionTimeout = 2 * time.Second
)

// Config holds configuration for the event publisher.
type Config struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password" json:"-"`
	DB       int    `yaml:"db" mapstructure:"db"`
	// Prefix is the stream key prefix (e.g. "jobcrawl").
	Prefix string `yaml:"prefix" mapstructure:"prefix"`
	// MaxStreamLen is the approximate stream length cap (0 = default).
	MaxStreamLen int64 `yaml:"max_stream_len" mapstructure:"max_stream_len"`
}

// Publisher writes crawl events to a Redis stream. It implements notify.Sink.
type Publisher struct {
	client *redis.Client
	prefix string
	maxLen int64
}

// Compile-time sink check.
var _ notify.Sink = (*Publisher)(nil)

// NewPublisher creates a publisher and verifies connectivity.
func NewPublisher(cfg Config) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "jobcrawl"
	}
	maxLen := cfg.MaxStreamLen
	if maxLen <= 0 {
		maxLen = defaultMaxStreamLen
	}

	return &Publisher{client: client, prefix: prefix, maxLen: maxLen}, nil
}

// StreamName returns the full crawl event stream key.
func (p *Publisher) StreamName() string {
	return p.prefix + ":crawl:events"
}

// Notify publishes the event to the stream, trimming to the length cap.
func (p *Publisher) Notify(ctx context.Context, event notify.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize crawl event: %w", err)
	}

	addArgs := &redis.XAddArgs{
		Stream: p.StreamName(),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			EventDataField:   string(payload),
			PublishedAtField: time.Now().UTC().Format(time.RFC3339),
		},
	}

	if addErr := p.client.XAdd(ctx, addArgs).Err(); addErr != nil {
		return fmt.Errorf("failed to publish crawl event: %w", addErr)
	}

	return nil
}

// Close releases the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
