package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// redisChangeChannel carries change announcements between processes sharing
// the same Redis instance.
const redisChangeChannel = "liftlog:state:changes"

// redisNotice is the pub/sub payload for one write.
type redisNotice struct {
	Key     string `json:"key"`
	Origin  string `json:"origin"`
	Deleted bool   `json:"deleted"`
}

// Redis is a Store backed by Redis. Change notifications ride a pub/sub
// channel; the value itself is re-read on receipt, so a burst of writes
// collapses to the latest state.
type Redis struct {
	client *redis.Client
	origin string
}

var _ Store = (*Redis)(nil)

// OpenRedis connects to the Redis instance described by redisURL
// (redis://host:port/db form) and verifies the connection.
func OpenRedis(ctx context.Context, redisURL string) (*Redis, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return &Redis{client: client, origin: uuid.New().String()}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading key %s: %w", key, err)
	}
	return v, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("writing key %s: %w", key, err)
	}
	r.announce(ctx, redisNotice{Key: key, Origin: r.origin})
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("deleting key %s: %w", key, err)
	}
	r.announce(ctx, redisNotice{Key: key, Origin: r.origin, Deleted: true})
	return nil
}

// announce publishes the change notice. Publish failures are swallowed:
// the write itself succeeded, and peers will converge on their next read.
func (r *Redis) announce(ctx context.Context, n redisNotice) {
	payload, err := json.Marshal(n)
	if err != nil {
		return
	}
	_ = r.client.Publish(ctx, redisChangeChannel, payload).Err()
}

// Watch subscribes to the change channel and resolves each foreign notice
// to the key's current value.
func (r *Redis) Watch(ctx context.Context) (<-chan Event, error) {
	sub := r.client.Subscribe(ctx, redisChangeChannel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", redisChangeChannel, err)
	}

	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var n redisNotice
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					continue
				}
				if n.Origin == r.origin {
					continue
				}
				ev := Event{Key: n.Key, Origin: n.Origin, Deleted: n.Deleted}
				if !n.Deleted {
					value, err := r.Get(ctx, n.Key)
					if err != nil {
						continue
					}
					ev.Value = value
				}
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

func (r *Redis) Origin() string { return r.origin }

func (r *Redis) Close() error {
	return r.client.Close()
}
