package replica

import (
	"context"
	"sync/atomic"
	"time"

	"roulette-service/internal/service/duel"
	"roulette-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultLeaseTTL = 10 * time.Second

var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lease is the per-table authority lock. Exactly one node holds it at a time;
// the holder keeps it alive by renewing before the TTL runs out.
type Lease struct {
	rdb     *redis.Client
	tableID int64
	key     string
	owner   string
	ttl     time.Duration
	held    atomic.Bool

	onAcquired func()
}

var _ duel.Authority = (*Lease)(nil)

func NewLease(rdb *redis.Client, tableID int64, ttl time.Duration) *Lease {
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &Lease{
		rdb:     rdb,
		tableID: tableID,
		key:     buildLeaseKey(tableID),
		owner:   uuid.NewString(),
		ttl:     ttl,
	}
}

// OnAcquired registers fn to run on the Run goroutine each time the lease is
// taken after not being held, before the next renewal. Set it before Run.
func (l *Lease) OnAcquired(fn func()) {
	l.onAcquired = fn
}

func (l *Lease) Owner() string {
	return l.owner
}

func (l *Lease) IsAuthority() bool {
	return l.held.Load()
}

// Acquire takes the lease if it is free or already ours.
func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, err
	}
	if !ok {
		current, err := l.rdb.Get(ctx, l.key).Result()
		if err != nil && err != redis.Nil {
			return false, err
		}
		ok = current == l.owner
	}
	l.held.Store(ok)
	return ok, nil
}

// Renew extends the lease. It reports false when another node owns it now.
func (l *Lease) Renew(ctx context.Context) (bool, error) {
	n, err := renewScript.Run(ctx, l.rdb, []string{l.key}, l.owner, l.ttl.Milliseconds()).Int()
	if err != nil {
		l.held.Store(false)
		return false, err
	}
	ok := n == 1
	l.held.Store(ok)
	return ok, nil
}

func (l *Lease) Release(ctx context.Context) error {
	l.held.Store(false)
	return releaseScript.Run(ctx, l.rdb, []string{l.key}, l.owner).Err()
}

// Run renews the lease until ctx is done, trying to take it over whenever it
// is lost. The lease is released on exit.
func (l *Lease) Run(ctx context.Context) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := l.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Log.Warn("lease release failed", zap.Int64("tableID", l.tableID), zap.Error(err))
			}
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *Lease) tick(ctx context.Context) {
	wasHeld := l.held.Load()
	if wasHeld {
		ok, err := l.Renew(ctx)
		if err == nil && ok {
			return
		}
		logger.Log.Warn("authority lease lost",
			zap.Int64("tableID", l.tableID),
			zap.String("owner", l.owner),
			zap.Error(err),
		)
	}
	ok, err := l.Acquire(ctx)
	if err != nil {
		logger.Log.Warn("lease acquire failed", zap.Int64("tableID", l.tableID), zap.Error(err))
		return
	}
	if ok {
		logger.Log.Info("authority lease acquired",
			zap.Int64("tableID", l.tableID),
			zap.String("owner", l.owner),
		)
		if !wasHeld && l.onAcquired != nil {
			l.onAcquired()
		}
	}
}
