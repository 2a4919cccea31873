package table

import (
	"context"
	"sync"

	"roulette-service/internal/model"
	"roulette-service/internal/service/bot"
	"roulette-service/internal/service/duel"
	"roulette-service/internal/service/replica"
	appErr "roulette-service/pkg/errors"
	"roulette-service/pkg/logger"

	"go.uber.org/zap"
)

type runtime struct {
	coord  *duel.Coordinator
	lease  *replica.Lease
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	bots map[duel.ActorID]context.CancelFunc
}

// GetRuntime returns the table's Coordinator, creating it on first use. With
// Redis configured the runtime competes for the table's authority lease and
// stays read-only while another node holds it.
func (s *Service) GetRuntime(ctx context.Context, tableID int64) (*duel.Coordinator, error) {
	if v, ok := s.runtimes.Load(tableID); ok {
		return v.(*runtime).coord, nil
	}

	table, err := s.GetTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	rules, err := parseRules(table.RulesJSON, defaultRules(s.cfg.Game))
	if err != nil {
		return nil, err
	}

	var opts []duel.Option
	if s.recorder != nil {
		opts = append(opts, duel.WithRecorder(s.recorder))
	}
	if s.sink != nil {
		opts = append(opts, duel.WithPropertySink(s.sink))
	}

	var lease *replica.Lease
	if s.rdb != nil && s.cfg.Replica.Enabled {
		lease = replica.NewLease(s.rdb, tableID, s.cfg.Replica.LeaseTTL)
		held, err := lease.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		if !held {
			logger.Log.Info("table owned by another node", zap.Int64("tableID", tableID))
		}
		opts = append(opts, duel.WithAuthority(lease))
	}

	rtCtx, cancel := context.WithCancel(s.ctx)
	rt := &runtime{
		coord:  duel.NewCoordinator(tableID, rules.settings(s.cfg.Game.SeatRadius), opts...),
		lease:  lease,
		ctx:    rtCtx,
		cancel: cancel,
		bots:   make(map[duel.ActorID]context.CancelFunc),
	}
	if actual, loaded := s.runtimes.LoadOrStore(tableID, rt); loaded {
		cancel()
		if lease != nil {
			lease.Release(ctx)
		}
		return actual.(*runtime).coord, nil
	}

	if rt.coord.IsAuthority() {
		if err := s.restore(ctx, rt, table); err != nil {
			s.runtimes.Delete(tableID)
			cancel()
			if lease != nil {
				lease.Release(ctx)
			}
			return nil, err
		}
	}
	if lease != nil {
		lease.OnAcquired(func() { s.takeOver(rt) })
		s.leases.Add(1)
		go func() {
			defer s.leases.Done()
			lease.Run(rtCtx)
		}()
	}
	return rt.coord, nil
}

// takeOver rebuilds a runtime whose lease was just won from another node.
func (s *Service) takeOver(rt *runtime) {
	s.seatMu.Lock()
	defer s.seatMu.Unlock()

	tableID := rt.coord.TableID()
	table, err := s.GetTable(rt.ctx, tableID)
	if err == nil {
		err = s.restore(rt.ctx, rt, table)
	}
	if err != nil {
		logger.Log.Error("table takeover failed", zap.Int64("tableID", tableID), zap.Error(err))
		return
	}
	logger.Log.Info("table taken over", zap.Int64("tableID", tableID))
}

// restore loads persisted seats, the replicated properties and the recorded
// match counters into the Coordinator, then restarts seated bots.
func (s *Service) restore(ctx context.Context, rt *runtime, table *model.Table) error {
	seats, err := loadSeats(table)
	if err != nil {
		return err
	}
	states := make([]duel.SeatState, 0, len(seats))
	for _, idx := range seats.ordered() {
		entry := seats[idx]
		states = append(states, duel.SeatState{Actor: duel.ActorID(entry.ActorID), Position: entry.Position})
	}

	var props map[string]string
	if s.rdb != nil && s.cfg.Replica.Enabled {
		if props, err = replica.LoadProps(ctx, s.rdb, table.ID); err != nil {
			return err
		}
	}
	match, round, err := s.history.Progress(ctx, table.ID)
	if err != nil {
		return err
	}

	if err := rt.coord.Restore(states, props, match, round); err != nil {
		return err
	}
	for _, idx := range seats.ordered() {
		if entry := seats[idx]; entry.Bot {
			s.startBot(rt, duel.ActorID(entry.ActorID), entry.BotMode)
		}
	}
	return nil
}

// AddBot seats a bot next to a seated player. Bots take negative ids.
func (s *Service) AddBot(ctx context.Context, playerID, tableID int64, mode string) (duel.ActorID, error) {
	if mode == "" {
		mode = s.cfg.Bot.Mode
	}
	parsed, err := bot.ParseMode(mode)
	if err != nil {
		return duel.NoActor, appErr.ErrInvalidTableRule
	}

	s.seatMu.Lock()
	defer s.seatMu.Unlock()

	table, err := s.GetTable(ctx, tableID)
	if err != nil {
		return duel.NoActor, err
	}
	seats, err := loadSeats(table)
	if err != nil {
		return duel.NoActor, err
	}
	if _, ok := seats.find(duel.ActorID(playerID)); !ok {
		return duel.NoActor, appErr.ErrTableAccessDenied
	}
	coord, err := s.GetRuntime(ctx, tableID)
	if err != nil {
		return duel.NoActor, err
	}

	actor := duel.ActorID(-1)
	for _, entry := range seats {
		if duel.ActorID(entry.ActorID) <= actor {
			actor = duel.ActorID(entry.ActorID) - 1
		}
	}
	entry := SeatEntry{ActorID: int64(actor), Bot: true, BotMode: string(parsed)}
	if err := s.seatLocked(ctx, table, seats, coord, entry); err != nil {
		return duel.NoActor, err
	}

	v, _ := s.runtimes.Load(tableID)
	s.startBot(v.(*runtime), actor, string(parsed))

	logger.Log.Info("bot added",
		zap.Int64("tableID", tableID),
		zap.Int64("actor", int64(actor)),
		zap.String("mode", string(parsed)),
	)
	return actor, nil
}

func (s *Service) startBot(rt *runtime, actor duel.ActorID, mode string) {
	parsed, err := bot.ParseMode(mode)
	if err != nil {
		parsed = bot.ModeAlternate
	}
	agent := bot.NewAgent(actor, rt.coord, bot.Config{
		Mode:             parsed,
		ShotDelay:        s.cfg.Bot.ShotDelay,
		MaxShotsPerRound: s.cfg.Bot.MaxShotsPerRound,
	})

	botCtx, cancel := context.WithCancel(rt.ctx)
	rt.mu.Lock()
	if prev, ok := rt.bots[actor]; ok {
		prev()
	}
	rt.bots[actor] = cancel
	rt.mu.Unlock()

	go agent.Run(botCtx)
}

func (s *Service) stopBot(tableID int64, actor duel.ActorID) {
	v, ok := s.runtimes.Load(tableID)
	if !ok {
		return
	}
	rt := v.(*runtime)
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if cancel, ok := rt.bots[actor]; ok {
		cancel()
		delete(rt.bots, actor)
	}
}

// Close stops every runtime and returns once their leases are released.
// Bots exit and all subscribers are dropped.
func (s *Service) Close() {
	s.cancel()
	s.runtimes.Range(func(key, value interface{}) bool {
		rt := value.(*runtime)
		rt.cancel()
		rt.coord.Close()
		s.runtimes.Delete(key)
		return true
	})
	s.leases.Wait()
}

// IsAuthority reports whether this node owns the table.
func (s *Service) IsAuthority(tableID int64) bool {
	v, ok := s.runtimes.Load(tableID)
	if !ok {
		return false
	}
	return v.(*runtime).coord.IsAuthority()
}
