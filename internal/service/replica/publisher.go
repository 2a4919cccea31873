package replica

import (
	"context"
	"encoding/json"
	"sync"

	"roulette-service/internal/service/duel"
	"roulette-service/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultPublishBuffer = 256

type update struct {
	tableID int64
	delta   map[string]string
}

// Publisher mirrors committed property deltas to Redis: the table hash holds
// the latest values and the events channel carries each delta in commit
// order. A single worker keeps the order.
type Publisher struct {
	rdb   *redis.Client
	queue chan update
	ctx   context.Context

	mu      sync.Mutex
	closed  bool
	pending map[int64]map[string]string // deltas that found the queue full
	wg      sync.WaitGroup
}

var _ duel.PropertySink = (*Publisher)(nil)

func NewPublisher(rdb *redis.Client, buffer int) *Publisher {
	if buffer <= 0 {
		buffer = defaultPublishBuffer
	}
	return &Publisher{
		rdb:     rdb,
		queue:   make(chan update, buffer),
		ctx:     context.Background(),
		pending: make(map[int64]map[string]string),
	}
}

func (p *Publisher) Start(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	p.mu.Lock()
	p.ctx = ctx
	p.mu.Unlock()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for u := range p.queue {
			p.writeLogged(ctx, u)
			p.requeuePending()
		}
	}()
}

// Stop flushes queued and held-back deltas and stops the worker.
func (p *Publisher) Stop() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	p.wg.Wait()

	p.mu.Lock()
	pending := p.pending
	p.pending = make(map[int64]map[string]string)
	ctx := p.ctx
	p.mu.Unlock()
	for tableID, delta := range pending {
		p.writeLogged(ctx, update{tableID: tableID, delta: delta})
	}
}

// Publish queues a delta. It never blocks. When the queue is full the delta
// is held back and merged with the table's later deltas, so the hash still
// converges once the worker catches up.
func (p *Publisher) Publish(tableID int64, delta map[string]string) {
	if len(delta) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	merged, held := p.pending[tableID]
	if !held {
		merged = make(map[string]string, len(delta))
	}
	for k, v := range delta {
		merged[k] = v
	}
	select {
	case p.queue <- update{tableID: tableID, delta: merged}:
		delete(p.pending, tableID)
	default:
		if !held {
			logger.Log.Warn("replica queue full, holding delta",
				zap.Int64("tableID", tableID),
				zap.Int("keys", len(merged)),
			)
		}
		p.pending[tableID] = merged
	}
}

// requeuePending moves held-back deltas into the queue while it has room.
func (p *Publisher) requeuePending() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	for tableID, delta := range p.pending {
		select {
		case p.queue <- update{tableID: tableID, delta: delta}:
			delete(p.pending, tableID)
		default:
			return
		}
	}
}

func (p *Publisher) writeLogged(ctx context.Context, u update) {
	if err := p.write(ctx, u); err != nil {
		logger.Log.Error("replica publish failed",
			zap.Int64("tableID", u.tableID),
			zap.Int("keys", len(u.delta)),
			zap.Error(err),
		)
	}
}

func (p *Publisher) write(ctx context.Context, u update) error {
	payload, err := json.Marshal(duel.SyncPayload{Props: u.delta})
	if err != nil {
		return err
	}

	var sets []interface{}
	var dels []string
	for k, v := range u.delta {
		if v == "" {
			dels = append(dels, k)
			continue
		}
		sets = append(sets, k, v)
	}

	key := buildPropsKey(u.tableID)
	_, err = p.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(sets) > 0 {
			pipe.HSet(ctx, key, sets...)
		}
		if len(dels) > 0 {
			pipe.HDel(ctx, key, dels...)
		}
		pipe.Publish(ctx, buildEventsChannel(u.tableID), payload)
		return nil
	})
	return err
}

// LoadProps reads the latest replicated properties of a table.
func LoadProps(ctx context.Context, rdb *redis.Client, tableID int64) (map[string]string, error) {
	return rdb.HGetAll(ctx, buildPropsKey(tableID)).Result()
}
