package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"harvest/internal/config"
	"harvest/internal/processor"
)

// streamMaxLen caps the run stream; trimming is approximate.
const streamMaxLen = 500

// RunNotice is the stream entry published for each finished run.
type RunNotice struct {
	ID      string             `json:"-"` // stream entry ID, set when read
	RunID   string             `json:"run_id"`
	Summary *processor.Summary `json:"summary"`
}

// Publisher appends run summaries to a Redis stream.
type Publisher struct {
	client *redis.Client
	stream string
}

// NewClient builds a Redis client from cfg.
func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewPublisher(client *redis.Client, stream string) *Publisher {
	return &Publisher{client: client, stream: stream}
}

// encode serializes a summary into stream entry values.
func encode(summary *processor.Summary) (map[string]interface{}, error) {
	data, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize run %s: %w", summary.RunID, err)
	}
	return map[string]interface{}{
		"run_id": summary.RunID,
		"data":   string(data),
	}, nil
}

func decode(id string, values map[string]interface{}) (*RunNotice, error) {
	data, ok := values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("entry %s has no data field", id)
	}
	var summary processor.Summary
	if err := json.Unmarshal([]byte(data), &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry %s: %w", id, err)
	}
	return &RunNotice{ID: id, RunID: summary.RunID, Summary: &summary}, nil
}

// PublishRun appends summary to the stream.
func (p *Publisher) PublishRun(ctx context.Context, summary *processor.Summary) error {
	values, err := encode(summary)
	if err != nil {
		return err
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish run %s to %s: %w", summary.RunID, p.stream, err)
	}

	log.Printf("Published run %s to Redis stream %s", summary.RunID, p.stream)
	return nil
}

// Consumer reads run notices through a consumer group.
type Consumer struct {
	client *redis.Client
	stream string
	group  string
	name   string
}

func NewConsumer(client *redis.Client, stream, group, name string) *Consumer {
	return &Consumer{client: client, stream: stream, group: group, name: name}
}

// readCursor chooses the ID passed to XREADGROUP. It starts in the pending
// list so entries delivered before a restart, or whose handler failed, are
// retried before new ones are read.
type readCursor struct {
	pending bool
	from    string
}

func newReadCursor() *readCursor {
	return &readCursor{pending: true, from: "0"}
}

func (c *readCursor) id() string {
	if c.pending {
		return c.from
	}
	return ">"
}

// advance records a batch of n entries ending at lastID. Walking the pending
// list moves past every entry returned, so an entry that keeps failing is
// retried once per walk and never blocks new ones.
func (c *readCursor) advance(n int, lastID string, failed bool) {
	if c.pending {
		if n == 0 {
			c.pending = false
			return
		}
		c.from = lastID
		return
	}
	if failed {
		c.pending = true
		c.from = "0"
	}
}

// Follow delivers run notices to handle until ctx is cancelled, starting
// with entries still pending for this consumer. Entries are acknowledged
// only after handle succeeds; a failed entry is retried on the next walk of
// the pending list.
func (c *Consumer) Follow(ctx context.Context, handle func(ctx context.Context, notice *RunNotice) error) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	cursor := newReadCursor()
	for {
		msgs, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.name,
			Streams:  []string{c.stream, cursor.id()},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()

		if ctx.Err() != nil {
			return nil
		}
		if err != nil && !errors.Is(err, redis.Nil) {
			log.Printf("Error reading from Redis: %v", err)
			if !wait(ctx, time.Second) {
				return nil
			}
			continue
		}

		n, lastID, failed := 0, "", false
		for _, msg := range msgs {
			for _, m := range msg.Messages {
				n++
				lastID = m.ID
				notice, err := decode(m.ID, m.Values)
				if err != nil {
					log.Printf("Warning: %v", err)
					c.client.XAck(ctx, c.stream, c.group, m.ID)
					continue
				}
				if err := handle(ctx, notice); err != nil {
					log.Printf("Warning: failed to handle run %s: %v", notice.RunID, err)
					failed = true
					continue
				}
				c.client.XAck(ctx, c.stream, c.group, m.ID)
			}
		}

		cursor.advance(n, lastID, failed)
		if failed && !wait(ctx, time.Second) {
			return nil
		}
	}
}

// wait sleeps for d and reports false if ctx ended first.
func wait(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
