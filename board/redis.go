package board

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

//DefaultRedisKey is the list key shared by every process.
const DefaultRedisKey = "messages"

//RedisBoard stores the list under a single Redis key. The key has no TTL but
//may be evicted by the server's memory policy, which empties the board.
type RedisBoard struct {
	client *redis.Client
	key    string
}

//NewRedisBoard connects to addr and checks the connection.
func NewRedisBoard(ctx context.Context, addr, key string) (*RedisBoard, error) {
	if key == "" {
		key = DefaultRedisKey
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.WithField("addr", addr).WithField("key", key).Info("redis message board initialized")
	return &RedisBoard{client: client, key: key}, nil
}

//Append pushes onto the tail of the list. RPUSH is atomic on the server, so
//concurrent appends from different processes are all kept.
func (b *RedisBoard) Append(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := b.client.RPush(ctx, b.key, payload).Err(); err != nil {
		return fmt.Errorf("redis rpush: %w", err)
	}
	return nil
}

func (b *RedisBoard) List(ctx context.Context) ([]Message, error) {
	//a missing or evicted key comes back as an empty list
	raw, err := b.client.LRange(ctx, b.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	out := make([]Message, 0, len(raw))
	for _, item := range raw {
		var m Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			log.WithError(err).WithField("key", b.key).Warn("skipping undecodable message")
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (b *RedisBoard) Close() error {
	return b.client.Close()
}
