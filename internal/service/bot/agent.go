package bot

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"roulette-service/internal/service/duel"
	"roulette-service/pkg/logger"
	"roulette-service/pkg/utils/random"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Mode string

const (
	ModeAlternate Mode = "alternate"
	ModeSelf      Mode = "self"
	ModeOpponent  Mode = "opponent"
	ModeRandom    Mode = "random"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeAlternate, ModeSelf, ModeOpponent, ModeRandom:
		return m, nil
	case "":
		return ModeAlternate, nil
	default:
		return "", fmt.Errorf("unknown bot mode %q", s)
	}
}

// Table is the part of a Coordinator a bot plays through.
type Table interface {
	Subscribe(actor duel.ActorID) <-chan duel.OutgoingMessage
	Unsubscribe(actor duel.ActorID)
	Resync(actor duel.ActorID)
	RequestFire(sender duel.ActorID, req duel.FireRequest) (duel.ShotResult, error)
}

type Config struct {
	Mode             Mode
	ShotDelay        time.Duration
	MaxShotsPerRound int
}

// Agent is a seated actor that fires whenever it holds the turn. It reads the
// table only through broadcasts, like any remote participant.
type Agent struct {
	actor duel.ActorID
	table Table
	cfg   Config
	rng   *rand.Rand

	mirror      *duel.Mirror
	round       int
	roundShots  int
	totalShots  atomic.Int64
	pendingFire bool
	gapsSeen    int
}

func NewAgent(actor duel.ActorID, table Table, cfg Config) *Agent {
	if cfg.Mode == "" {
		cfg.Mode = ModeAlternate
	}
	return &Agent{
		actor:  actor,
		table:  table,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(random.Seed())),
		mirror: duel.NewMirror(),
	}
}

func (a *Agent) Actor() duel.ActorID {
	return a.actor
}

// Shots returns how many shots the agent has fired.
func (a *Agent) Shots() int64 {
	return a.totalShots.Load()
}

// Run plays until ctx is done or the table drops the subscription.
func (a *Agent) Run(ctx context.Context) {
	msgs := a.table.Subscribe(a.actor)
	defer a.table.Unsubscribe(a.actor)

	logger.Log.Info("bot started",
		zap.Int64("actor", int64(a.actor)),
		zap.String("mode", string(a.cfg.Mode)),
	)

	var timer *time.Timer
	var fireC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			a.observe(msg)
			if a.pendingFire || !a.shouldFire() {
				continue
			}
			a.pendingFire = true
			timer = time.NewTimer(a.cfg.ShotDelay)
			fireC = timer.C
		case <-fireC:
			fireC = nil
			a.pendingFire = false
			if a.shouldFire() {
				a.fire()
			}
		}
	}
}

func (a *Agent) observe(msg duel.OutgoingMessage) {
	a.mirror.Apply(msg)
	state := a.mirror.State()
	if state.Round != a.round || msg.Type == duel.MsgNewRound {
		a.round = state.Round
		a.roundShots = 0
	}
	if state.Gap && state.Gaps > a.gapsSeen {
		a.gapsSeen = state.Gaps
		logger.Log.Debug("bot missed messages, resyncing",
			zap.Int64("actor", int64(a.actor)),
			zap.Int64("seq", state.LastSeq),
		)
		a.table.Resync(a.actor)
	}
}

func (a *Agent) shouldFire() bool {
	state := a.mirror.State()
	if state.Phase != duel.PhaseInGame || state.CurrentTurn != a.actor {
		return false
	}
	if a.cfg.MaxShotsPerRound > 0 && a.roundShots >= a.cfg.MaxShotsPerRound {
		return false
	}
	return true
}

func (a *Agent) fire() {
	target := a.pickTarget()
	req := duel.FireRequest{Shooter: a.actor, Target: target, RequestID: uuid.NewString()}
	result, err := a.table.RequestFire(a.actor, req)
	a.roundShots++
	if err != nil {
		logger.Log.Warn("bot shot rejected",
			zap.Int64("actor", int64(a.actor)),
			zap.Int64("target", int64(target)),
			zap.Error(err),
		)
		return
	}
	a.totalShots.Add(1)
	logger.Log.Debug("bot fired",
		zap.Int64("actor", int64(a.actor)),
		zap.Int64("target", int64(target)),
		zap.String("shell", result.Shell.String()),
		zap.Int("newTargetHp", result.NewTargetHP),
		zap.Bool("roundOver", result.IsRoundOver),
	)
}

func (a *Agent) pickTarget() duel.ActorID {
	opponent := a.opponent()
	if opponent == duel.NoActor {
		return a.actor
	}

	switch a.cfg.Mode {
	case ModeSelf:
		return a.actor
	case ModeOpponent:
		return opponent
	case ModeRandom:
		if a.rng.Intn(2) == 0 {
			return a.actor
		}
		return opponent
	default:
		if a.roundShots%2 == 0 {
			return opponent
		}
		return a.actor
	}
}

// opponent picks the lowest id actor that is still alive.
func (a *Agent) opponent() duel.ActorID {
	state := a.mirror.State()
	others := make([]duel.ActorID, 0, len(state.HP))
	for actor, hp := range state.HP {
		if actor != a.actor && hp > 0 {
			others = append(others, actor)
		}
	}
	if len(others) == 0 {
		return duel.NoActor
	}
	sort.Slice(others, func(i, j int) bool { return others[i] < others[j] })
	return others[0]
}
