// Package notify fans twining change events out over Redis pub/sub so
// agents in other processes can react without polling the files.
//
// Publishing is best-effort: a Redis outage is logged and never fails the
// write that triggered the event. The last HistoryLen events are also kept
// in a list for late joiners.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HendryAvila/twining/internal/ids"
)

// HistoryLen is how many recent events the history list keeps.
const HistoryLen = 100

const publishTimeout = 2 * time.Second

// Event is the message published for every change.
type Event struct {
	Event   string          `json:"event"`
	At      string          `json:"at"`
	Payload json.RawMessage `json:"payload"`
}

// RedisPublisher publishes events to a channel and a capped history list.
// It is safe for concurrent use.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

// NewRedisPublisher connects to addr. Channel names the pub/sub channel;
// the history list lives at channel + ":history".
func NewRedisPublisher(opts *redis.Options, channel string) (*RedisPublisher, error) {
	if channel == "" {
		return nil, fmt.Errorf("notify: channel cannot be empty")
	}
	return &RedisPublisher{rdb: redis.NewClient(opts), channel: channel}, nil
}

// Channel returns the pub/sub channel name.
func (p *RedisPublisher) Channel() string { return p.channel }

// HistoryKey returns the key of the history list.
func (p *RedisPublisher) HistoryKey() string { return p.channel + ":history" }

// Ping verifies Redis connectivity.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

// Close closes the connection.
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}

// Publish sends event with payload. Failures are logged, not returned.
func (p *RedisPublisher) Publish(ctx context.Context, event string, payload any) {
	if err := p.publish(ctx, event, payload); err != nil {
		log.Printf("WARNING: notify: publish %s: %v", event, err)
	}
}

func (p *RedisPublisher) publish(ctx context.Context, event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	msg, err := json.Marshal(Event{Event: event, At: ids.Timestamp(), Payload: body})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	_, err = p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, p.channel, msg)
		pipe.LPush(ctx, p.HistoryKey(), msg)
		pipe.LTrim(ctx, p.HistoryKey(), 0, HistoryLen-1)
		return nil
	})
	return err
}

// History returns up to n recent events, newest first.
func (p *RedisPublisher) History(ctx context.Context, n int) ([]Event, error) {
	if n <= 0 || n > HistoryLen {
		n = HistoryLen
	}
	raw, err := p.rdb.LRange(ctx, p.HistoryKey(), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("notify: read history: %w", err)
	}
	out := make([]Event, 0, len(raw))
	for _, r := range raw {
		var ev Event
		if err := json.Unmarshal([]byte(r), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// Subscribe delivers events until ctx is cancelled. The channel is
// buffered; a slow reader loses events, as pub/sub is at-most-once.
func (p *RedisPublisher) Subscribe(ctx context.Context) (<-chan Event, error) {
	pubsub := p.rdb.Subscribe(ctx, p.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("notify: subscribe: %w", err)
	}

	out := make(chan Event, 10)
	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Printf("WARNING: notify: bad event on %s: %v", p.channel, err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
