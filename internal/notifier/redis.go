package notifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/paperbot/engine/internal/logger"
)

// RedisSink publishes each Event as JSON to a channel over
// pub/sub fan-out. It lets an external dashboard or a
// second process tail the session's events without touching the database.
type RedisSink struct {
	client  *redis.Client
	channel string
	log     *logger.Logger
}

// NewRedisSink connects to addr (host:port) and publishes to channel. It
// pings once at construction; a failed ping returns an error so the caller
// can fall back to console-only notification instead of silently dropping
// every event.
func NewRedisSink(addr, channel string) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisSink{client: client, channel: channel, log: logger.NewLogger("notify_redis")}, nil
}

type redisEventPayload struct {
	Type      EventType `json:"type"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side,omitempty"`
	PnL       string    `json:"pnl,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (r *RedisSink) Send(evt Event) {
	payload := redisEventPayload{
		Type:      evt.Type,
		Symbol:    evt.Symbol,
		Timestamp: evt.Timestamp,
	}
	if evt.Side != "" {
		payload.Side = string(evt.Side)
	}
	if !evt.PnL.IsZero() || evt.Type != EventPositionOpened {
		payload.PnL = evt.PnL.String()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		r.log.Warn("failed to marshal event for redis", "error", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		r.log.Warn("failed to publish event to redis", "channel", r.channel, "error", err.Error())
	}
}

func (r *RedisSink) Close() error {
	return r.client.Close()
}
