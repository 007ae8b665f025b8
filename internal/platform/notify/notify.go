// Package notify announces merge results to downstream consumers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ChannelMergeResults carries one message per completed or failed merge.
const ChannelMergeResults = "clinicalmerge.merge.results"

// Message is the published payload. It carries identifiers and counts only.
type Message struct {
	BatchID      string         `json:"batch_id"`
	DocumentID   string         `json:"document_id"`
	PatientID    string         `json:"patient_id"`
	Status       string         `json:"status"`
	ReviewStatus string         `json:"review_status,omitempty"`
	Counts       map[string]int `json:"counts,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

type redisPublisher struct {
	client  redis.Cmdable
	channel string
}

// NewRedis publishes JSON messages on channel.
func NewRedis(client redis.Cmdable, channel string) Publisher {
	if channel == "" {
		channel = ChannelMergeResults
	}
	return &redisPublisher{client: client, channel: channel}
}

func (p *redisPublisher) Publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal merge message: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return nil
}

type noop struct{}

// Noop discards messages.
func Noop() Publisher { return noop{} }

func (noop) Publish(context.Context, Message) error { return nil }

// Recorder keeps published messages in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Publish(_ context.Context, msg Message) error {
	r.mu.Lock()
	r.messages = append(r.messages, msg)
	r.mu.Unlock()
	return nil
}

// Messages returns a copy of everything published so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}
