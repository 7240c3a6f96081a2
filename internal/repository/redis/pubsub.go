package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

type RosterPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewRosterPubSub(rdb *redis.Client) *RosterPubSub {
	return &RosterPubSub{
		rdb:     rdb,
		channel: ChannelRostersChanged(),
	}
}

// RosterChanged announces a committed roster mutation.
type RosterChanged struct {
	Type       string   `json:"type"`
	OrderIDs   []int64  `json:"order_ids,omitempty"`
	Signatures []string `json:"signatures,omitempty"`
	All        bool     `json:"all,omitempty"`
	TsUnix     int64    `json:"ts_unix"`
}

func (p *RosterPubSub) Publish(ctx context.Context, msg RosterChanged) error {
	msg.Type = "rosters_changed"
	msg.TsUnix = time.Now().Unix()

	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

// Subscribe calls handler for every change until ctx is done.
func (p *RosterPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, msg RosterChanged)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg RosterChanged
			if err := json.Unmarshal([]byte(m.Payload), &msg); err == nil && msg.Type != "" {
				handler(ctx, msg)
			}
		}
	}
}
