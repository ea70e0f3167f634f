package redisrepo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// TripChanged tells subscribers that a trip's seats, status or location moved
// on and any client-side copy should be refetched.
type TripChanged struct {
	Type           string `json:"type"`
	TripID         int64  `json:"trip_id"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	Reason         string `json:"reason"`
	TsUnix         int64  `json:"ts_unix"`
}

type TripsPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewTripsPubSub(rdb *redis.Client) *TripsPubSub {
	return &TripsPubSub{
		rdb:     rdb,
		channel: ChannelTripsChanged(),
	}
}

func (p *TripsPubSub) PublishTripChanged(ctx context.Context, tripID int64, trackingNumber, reason string) error {
	if p == nil {
		return nil
	}

	msg := TripChanged{
		Type:           "trip_changed",
		TripID:         tripID,
		TrackingNumber: trackingNumber,
		Reason:         reason,
		TsUnix:         time.Now().Unix(),
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

// Subscribe delivers trip change messages to handler until ctx is done.
// ready, when non-nil, is closed once the subscription is confirmed.
func (p *TripsPubSub) Subscribe(
	ctx context.Context,
	ready chan<- struct{},
	handler func(ctx context.Context, msg TripChanged),
) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg TripChanged
			if err := json.Unmarshal([]byte(m.Payload), &msg); err == nil &&
				msg.TripID != 0 {
				handler(ctx, msg)
			}
		}
	}
}
