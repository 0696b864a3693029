package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a durable named channel on a Redis list: FIFO within the
// channel, at-least-once delivery. Delayed redeliveries sit in a
// companion sorted set until due.
type Redis struct {
	rdb  *redis.Client
	list string
	zset string
}

func NewRedis(rdb *redis.Client, name string) *Redis {
	return &Redis{
		rdb:  rdb,
		list: "queue:" + name,
		zset: "queue:" + name + ":delayed",
	}
}

func (q *Redis) Push(ctx context.Context, m Message) error {
	raw, err := Encode(m)
	if err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, q.list, raw).Err(); err != nil {
		return fmt.Errorf("queue push: %w", err)
	}
	return nil
}

// PushDelayed schedules a redelivery after delay. PromoteDue moves it
// onto the list once due.
func (q *Redis) PushDelayed(ctx context.Context, m Message, delay time.Duration) error {
	raw, err := Encode(m)
	if err != nil {
		return err
	}
	due := float64(time.Now().Add(delay).Unix())
	if err := q.rdb.ZAdd(ctx, q.zset, redis.Z{Score: due, Member: raw}).Err(); err != nil {
		return fmt.Errorf("queue push delayed: %w", err)
	}
	return nil
}

// Pop blocks until the next message arrives. This is the worker's only
// suspension point; cancel the context to stop.
func (q *Redis) Pop(ctx context.Context) ([]byte, error) {
	res, err := q.rdb.BRPop(ctx, 0, q.list).Result()
	if err != nil {
		return nil, err
	}
	// BRPOP returns [key, value]
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected brpop reply: %v", res)
	}
	return []byte(res[1]), nil
}

// PromoteDue moves due delayed messages onto the list. A crash between
// LPUSH and ZREM can duplicate a message; the worker's claim step
// absorbs that.
func (q *Redis) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	members, err := q.rdb.ZRangeByScore(ctx, q.zset, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	moved := 0
	for _, m := range members {
		if err := q.rdb.LPush(ctx, q.list, m).Err(); err != nil {
			return moved, err
		}
		if err := q.rdb.ZRem(ctx, q.zset, m).Err(); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}
