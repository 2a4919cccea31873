package duel

import (
	"strconv"
	"strings"

	appErr "roulette-service/pkg/errors"
	"roulette-service/pkg/logger"
	"roulette-service/pkg/utils/geo"

	"go.uber.org/zap"
)

// SeatState is a persisted seat handed to Restore.
type SeatState struct {
	Actor    ActorID
	Position geo.Point
}

// Restore rebuilds the table from persisted seats and the last replicated
// properties, replacing whatever the Coordinator held. match and round are
// the last recorded counters. A match resumes when props describe one that
// is still running for exactly these seats; otherwise the table returns to
// the lobby and auto-start applies. Every subscriber gets a fresh snapshot.
func (c *Coordinator) Restore(seats []SeatState, props map[string]string, match, round int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.IsAuthority() {
		return appErr.ErrNotAuthority
	}

	c.store = NewStore()
	c.order = NewTurnOrder(geo.Point{})
	c.lastFire = make(map[ActorID]fireRecord)
	for _, seat := range seats {
		if seat.Actor == NoActor {
			continue
		}
		c.store.addActor(seat.Actor)
		c.order.Register(seat.Actor, seat.Position)
	}
	c.match = match
	c.round = round

	resumed := c.resumeLocked(props)
	if !resumed {
		c.store.setCurrentTurn(NoActor)
		c.order.SetCurrent(NoActor)
		c.setPhaseLocked(PhaseLobby)
		if c.settings.AutoStart && len(c.store.Actors()) >= c.settings.minActors() {
			c.startMatchLocked()
		}
	}

	// Clear replicated keys the rebuilt state no longer carries.
	for key := range props {
		if _, ok := c.store.props[key]; !ok {
			c.store.set(key, "")
		}
	}
	c.flushLocked()
	for actor := range c.subscribers {
		c.pushLocked(actor, MsgState, c.snapshotLocked(actor))
	}

	logger.Log.Info("table restored",
		zap.Int64("tableID", c.tableID),
		zap.Int("actors", len(c.store.Actors())),
		zap.Bool("resumed", resumed),
		zap.String("phase", string(c.phase)),
		zap.Int("match", c.match),
	)
	return nil
}

// resumeLocked seeds the Store from props when they hold a consistent
// running match: enough seated actors, each alive, the turn held by one of
// them and a decodable shell sequence.
func (c *Coordinator) resumeLocked(props map[string]string) bool {
	actors := c.store.Actors()
	if len(props) == 0 || len(actors) < c.settings.minActors() {
		return false
	}

	turn, err := strconv.ParseInt(props[KeyTurn], 10, 64)
	if err != nil || !c.store.HasActor(ActorID(turn)) {
		return false
	}
	shells, ok := DecodeShells(props[KeyShells])
	if !ok || len(shells) == 0 {
		return false
	}
	index, err := strconv.Atoi(props[KeyShellIndex])
	if err != nil || index < 0 || index > len(shells) {
		return false
	}
	hp := make(map[ActorID]int, len(actors))
	for _, actor := range actors {
		v, err := strconv.Atoi(props[HPKey(actor)])
		if err != nil || v <= 0 {
			return false
		}
		hp[actor] = v
	}
	// Every hp_ key must belong to a seated actor.
	for key := range props {
		if !strings.HasPrefix(key, KeyHPPrefix) {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(key, KeyHPPrefix), 10, 64)
		if err != nil || !c.store.HasActor(ActorID(id)) {
			return false
		}
	}

	for actor, v := range hp {
		c.store.setHP(actor, v)
	}
	c.store.setShells(shells)
	c.store.setShellIndex(index)
	c.store.setCurrentTurn(ActorID(turn))
	c.order.SetCurrent(ActorID(turn))
	if c.match < 1 {
		c.match = 1
	}
	if c.round < 1 {
		c.round = 1
	}
	c.setPhaseLocked(PhaseInGame)
	if !c.store.LiveRemaining() {
		c.startRoundLocked()
	}
	return true
}
