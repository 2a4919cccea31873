package replica

import (
	"context"
	"encoding/json"

	"roulette-service/internal/service/duel"
	"roulette-service/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Follower keeps a Mirror in step with a table owned by another node.
type Follower struct {
	tableID int64
	mirror  *duel.Mirror
	pubsub  *redis.PubSub
	updates chan struct{}
}

// NewFollower subscribes to the table's events and seeds mirror from the
// replicated hash. Subscribing first means no delta falls between the two.
func NewFollower(ctx context.Context, rdb *redis.Client, tableID int64, mirror *duel.Mirror) (*Follower, error) {
	pubsub := rdb.Subscribe(ctx, buildEventsChannel(tableID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	props, err := LoadProps(ctx, rdb, tableID)
	if err != nil {
		pubsub.Close()
		return nil, err
	}
	if len(props) > 0 {
		mirror.Apply(duel.OutgoingMessage{Type: duel.MsgSync, Data: duel.SyncPayload{Props: props}})
	}
	return &Follower{
		tableID: tableID,
		mirror:  mirror,
		pubsub:  pubsub,
		updates: make(chan struct{}, 1),
	}, nil
}

// Updates signals after the mirror changed. Signals coalesce; readers should
// read the mirror rather than count them. The channel closes when Run returns.
func (f *Follower) Updates() <-chan struct{} {
	return f.updates
}

// Run applies deltas until ctx is done or the subscription closes.
func (f *Follower) Run(ctx context.Context) {
	defer close(f.updates)
	defer f.pubsub.Close()

	ch := f.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var payload duel.SyncPayload
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				logger.Log.Warn("bad replica payload", zap.Int64("tableID", f.tableID), zap.Error(err))
				continue
			}
			if f.mirror.Apply(duel.OutgoingMessage{Type: duel.MsgSync, Data: payload}) {
				select {
				case f.updates <- struct{}{}:
				default:
				}
			}
		}
	}
}
