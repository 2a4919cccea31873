package service

import (
	"context"

	"roulette-service/internal/config"
	"roulette-service/internal/service/auth"
	"roulette-service/internal/service/history"
	"roulette-service/internal/service/replica"
	"roulette-service/internal/service/table"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	Auth      *auth.Service
	Table     *table.Service
	Recorder  *history.Recorder
	Publisher *replica.Publisher
	RDB       *redis.Client
}

// NewContainer wires the services. rdb may be nil; the replica publisher is
// only built when both replication is enabled and Redis is connected.
func NewContainer(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Container {
	c := &Container{
		Auth:     auth.NewService(db, rdb),
		Recorder: history.NewRecorder(db, 0),
		RDB:      rdb,
	}

	opts := []table.Option{table.WithRecorder(c.Recorder)}
	if rdb != nil && cfg.Replica.Enabled {
		c.Publisher = replica.NewPublisher(rdb, cfg.Replica.PublishBuffer)
		opts = append(opts, table.WithPropertySink(c.Publisher))
	}
	c.Table = table.NewService(db, rdb, table.Config{
		Game:    cfg.Game,
		Bot:     cfg.Bot,
		Replica: cfg.Replica,
	}, opts...)
	return c
}

func (c *Container) Start(ctx context.Context) error {
	c.Recorder.Start(ctx)
	if c.Publisher != nil {
		c.Publisher.Start(ctx)
	}
	return nil
}

// Stop closes every table, then drains the history and replica queues.
func (c *Container) Stop() {
	c.Table.Close()
	c.Recorder.Stop()
	if c.Publisher != nil {
		c.Publisher.Stop()
	}
}
