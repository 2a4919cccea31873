package duel_test

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"roulette-service/internal/service/duel"
	"roulette-service/internal/service/duel/mocks"
	appErr "roulette-service/pkg/errors"
	"roulette-service/pkg/utils/geo"

	"go.uber.org/mock/gomock"
)

const testTableID int64 = 77

var (
	eastSeat  = geo.Point{X: 1}
	northSeat = geo.Point{Z: 1}
	westSeat  = geo.Point{X: -1}
)

func defaultSettings() duel.Settings {
	return duel.Settings{
		StartHP:    3,
		MaxHP:      6,
		LiveCount:  2,
		BlankCount: 4,
		MinActors:  2,
		AutoStart:  true,
		SeatRadius: 1.5,
	}
}

func fixedDeck(shells ...duel.Shell) duel.DeckBuilder {
	return duel.DeckBuilderFunc(func(int64, int, int) []duel.Shell {
		return append([]duel.Shell(nil), shells...)
	})
}

func alwaysFirst(actor duel.ActorID) duel.FirstTurnPolicy {
	return duel.FirstTurnFunc(func([]duel.ActorID, int64) (duel.ActorID, error) {
		return actor, nil
	})
}

// newDuel seats A east and B west and lets auto start open match 1 with A
// holding the turn.
func newDuel(t *testing.T, settings duel.Settings, opts ...duel.Option) *duel.Coordinator {
	t.Helper()
	opts = append([]duel.Option{
		duel.WithFirstTurn(alwaysFirst(actorA)),
		duel.WithSeedSource(func() int64 { return 42 }),
	}, opts...)
	c := duel.NewCoordinator(testTableID, settings, opts...)
	if err := c.Join(actorA, eastSeat); err != nil {
		t.Fatalf("join A: %v", err)
	}
	if err := c.Join(actorB, westSeat); err != nil {
		t.Fatalf("join B: %v", err)
	}
	return c
}

func drain(ch <-chan duel.OutgoingMessage) []duel.OutgoingMessage {
	var out []duel.OutgoingMessage
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

func eventTypes(msgs []duel.OutgoingMessage) []string {
	var out []string
	for _, m := range msgs {
		if m.Type == duel.MsgSync {
			continue
		}
		out = append(out, m.Type)
	}
	return out
}

func fire(t *testing.T, c *duel.Coordinator, shooter, target duel.ActorID) duel.ShotResult {
	t.Helper()
	result, err := c.RequestFire(shooter, duel.FireRequest{Shooter: shooter, Target: target})
	if err != nil {
		t.Fatalf("fire %d -> %d: %v", shooter, target, err)
	}
	return result
}

func TestCoordinatorAutoStart(t *testing.T) {
	c := newDuel(t, defaultSettings())

	state := c.Snapshot(actorA)
	if state.Phase != duel.PhaseInGame || state.Match != 1 || state.Round != 1 {
		t.Fatalf("unexpected state after auto start: %+v", state)
	}
	if state.CurrentTurn != actorA || state.ShellIndex != 0 || state.ShellCount != 6 {
		t.Fatalf("unexpected round state: %+v", state)
	}
	if state.LiveRemaining != 2 || state.BlankRemaining != 4 {
		t.Fatalf("unexpected shell counts: %+v", state)
	}
	if state.HP["1"] != 3 || state.HP["2"] != 3 {
		t.Fatalf("unexpected hp: %v", state.HP)
	}
	if !reflect.DeepEqual(state.AllowedActions, []string{"fire"}) {
		t.Fatalf("turn holder should be allowed to fire, got %v", state.AllowedActions)
	}
	if other := c.Snapshot(actorB); len(other.AllowedActions) != 0 {
		t.Fatalf("waiting actor should have no actions, got %v", other.AllowedActions)
	}
}

func TestCoordinatorLiveShotPassesTurn(t *testing.T) {
	c := newDuel(t, defaultSettings(), duel.WithDeckBuilder(fixedDeck(duel.Live, duel.Blank, duel.Live)))

	result := fire(t, c, actorA, actorB)
	want := duel.ShotResult{Shooter: actorA, Target: actorB, Shell: duel.Live, NewTargetHP: 2, NextTurn: actorB}
	if result != want {
		t.Fatalf("result = %+v, want %+v", result, want)
	}

	before := c.Snapshot(actorA)
	if before.ShellIndex != 1 || before.CurrentTurn != actorB || before.HP["2"] != 2 {
		t.Fatalf("shot not applied: %+v", before)
	}

	_, err := c.RequestFire(actorA, duel.FireRequest{Shooter: actorA, Target: actorB})
	if !errors.Is(err, appErr.ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}
	after := c.Snapshot(actorA)
	if !reflect.DeepEqual(before.Props, after.Props) {
		t.Fatalf("rejected request mutated state: %v -> %v", before.Props, after.Props)
	}
}

func TestCoordinatorBlankKeepsTurn(t *testing.T) {
	c := newDuel(t, defaultSettings(), duel.WithDeckBuilder(fixedDeck(duel.Blank, duel.Live)))

	result := fire(t, c, actorA, actorB)
	if result.Shell != duel.Blank || result.NextTurn != actorA || result.NewTargetHP != 3 || result.IsRoundOver {
		t.Fatalf("unexpected blank result: %+v", result)
	}
	state := c.Snapshot(actorA)
	if state.CurrentTurn != actorA || state.ShellIndex != 1 {
		t.Fatalf("unexpected state: %+v", state)
	}
}

func TestCoordinatorSelfTargetedLivePassesTurn(t *testing.T) {
	c := newDuel(t, defaultSettings(), duel.WithDeckBuilder(fixedDeck(duel.Live, duel.Live)))

	result := fire(t, c, actorA, actorA)
	if result.NewTargetHP != 2 || result.NextTurn != actorB {
		t.Fatalf("unexpected self shot: %+v", result)
	}
}

func TestCoordinatorRoundEndsWhenNoLiveLeft(t *testing.T) {
	builds := 0
	deck := duel.DeckBuilderFunc(func(int64, int, int) []duel.Shell {
		builds++
		return []duel.Shell{duel.Live, duel.Blank, duel.Blank}
	})
	c := newDuel(t, defaultSettings(), duel.WithDeckBuilder(deck))

	result := fire(t, c, actorA, actorB)
	if !result.IsRoundOver {
		t.Fatalf("round should end once no live shell remains: %+v", result)
	}
	if builds != 2 {
		t.Fatalf("expected a fresh sequence, builds = %d", builds)
	}
	state := c.Snapshot(actorA)
	if state.Round != 2 || state.ShellIndex != 0 || state.CurrentTurn != actorA {
		t.Fatalf("unexpected state after new round: %+v", state)
	}
	if state.HP["2"] != 2 {
		t.Fatalf("hp must carry across rounds, got %v", state.HP)
	}
}

func TestCoordinatorEmptyDeckEndsRound(t *testing.T) {
	settings := defaultSettings()
	settings.LiveCount = 0
	settings.BlankCount = 0
	c := newDuel(t, settings)

	result := fire(t, c, actorA, actorB)
	if !result.IsRoundOver || result.Shell != duel.Blank || result.NewTargetHP != 3 {
		t.Fatalf("unexpected result on empty deck: %+v", result)
	}
	if state := c.Snapshot(actorA); state.Round != 2 || state.ShellIndex != 0 {
		t.Fatalf("expected regenerated round, got %+v", state)
	}
}

func TestCoordinatorMatchOverRestarts(t *testing.T) {
	settings := defaultSettings()
	settings.StartHP = 1
	c := newDuel(t, settings, duel.WithDeckBuilder(fixedDeck(duel.Live, duel.Live)))
	ch := c.Subscribe(actorA)
	drain(ch)

	result := fire(t, c, actorA, actorB)
	if result.NewTargetHP != 0 || !result.IsRoundOver {
		t.Fatalf("unexpected killing shot: %+v", result)
	}

	msgs := drain(ch)
	want := []string{duel.MsgShot, duel.MsgMatchOver, duel.MsgMatchStart, duel.MsgNewRound}
	if got := eventTypes(msgs); !reflect.DeepEqual(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for _, m := range msgs {
		if m.Type != duel.MsgMatchOver {
			continue
		}
		over := m.Data.(duel.MatchOverPayload)
		if over.Winner != actorA || over.HP["1"] != 1 || over.HP["2"] != 0 {
			t.Fatalf("unexpected match over payload: %+v", over)
		}
	}

	state := c.Snapshot(actorA)
	if state.Match != 2 || state.Round != 1 || state.Phase != duel.PhaseInGame {
		t.Fatalf("expected a fresh match, got %+v", state)
	}
	if state.HP["1"] != 1 || state.HP["2"] != 1 {
		t.Fatalf("hp must reset for all actors, got %v", state.HP)
	}
}

func TestCoordinatorSeqIncreases(t *testing.T) {
	c := newDuel(t, defaultSettings(), duel.WithDeckBuilder(fixedDeck(duel.Blank, duel.Blank, duel.Live)))
	ch := c.Subscribe(actorB)
	fire(t, c, actorA, actorB)
	fire(t, c, actorA, actorB)

	var last int64
	for _, m := range drain(ch) {
		if m.Seq <= last {
			t.Fatalf("seq not increasing: %d after %d", m.Seq, last)
		}
		last = m.Seq
	}
}

func TestCoordinatorFullChannelLeavesSeqHole(t *testing.T) {
	c := newDuel(t, defaultSettings())
	ch := c.Subscribe(observer)
	for i := 0; i < 40; i++ {
		c.Ping(observer)
	}
	kept := drain(ch)
	if len(kept) == 0 || len(kept) >= 41 {
		t.Fatalf("expected a full channel to drop messages, kept %d", len(kept))
	}
	last := kept[len(kept)-1].Seq

	c.Ping(observer)
	next := drain(ch)
	if len(next) != 1 || next[0].Seq != 42 || next[0].Seq == last+1 {
		t.Fatalf("dropped messages must stay numbered: last kept %d, next %+v", last, next)
	}
}

func TestCoordinatorDuplicateRequestID(t *testing.T) {
	c := newDuel(t, defaultSettings(), duel.WithDeckBuilder(fixedDeck(duel.Blank, duel.Blank, duel.Live)))

	req := duel.FireRequest{Shooter: actorA, Target: actorB, RequestID: "r1"}
	first, err := c.RequestFire(actorA, req)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	again, err := c.RequestFire(actorA, req)
	if err != nil {
		t.Fatalf("repeated request: %v", err)
	}
	if first != again {
		t.Fatalf("repeat must return the cached result: %+v vs %+v", first, again)
	}
	if idx := c.Snapshot(actorA).ShellIndex; idx != 1 {
		t.Fatalf("repeat must not advance the cursor, index = %d", idx)
	}

	req.RequestID = "r2"
	if _, err := c.RequestFire(actorA, req); err != nil {
		t.Fatalf("new request: %v", err)
	}
	if idx := c.Snapshot(actorA).ShellIndex; idx != 2 {
		t.Fatalf("new request should advance, index = %d", idx)
	}
}

func TestCoordinatorRejections(t *testing.T) {
	settings := defaultSettings()
	settings.AutoStart = false
	c := duel.NewCoordinator(testTableID, settings, duel.WithFirstTurn(alwaysFirst(actorA)))

	if err := c.Join(duel.NoActor, eastSeat); !errors.Is(err, appErr.ErrUnknownActor) {
		t.Fatalf("expected ErrUnknownActor for NoActor, got %v", err)
	}
	if err := c.Join(actorA, eastSeat); err != nil {
		t.Fatalf("join A: %v", err)
	}
	if err := c.StartMatch(actorA); !errors.Is(err, appErr.ErrNotEnoughActors) {
		t.Fatalf("expected ErrNotEnoughActors, got %v", err)
	}
	if err := c.Join(actorB, westSeat); err != nil {
		t.Fatalf("join B: %v", err)
	}
	if c.Phase() != duel.PhaseLobby {
		t.Fatalf("table should wait in lobby without auto start")
	}
	if _, err := c.RequestFire(actorA, duel.FireRequest{Shooter: actorA, Target: actorB}); !errors.Is(err, appErr.ErrMatchNotRunning) {
		t.Fatalf("expected ErrMatchNotRunning, got %v", err)
	}
	if err := c.StartMatch(99); !errors.Is(err, appErr.ErrUnknownActor) {
		t.Fatalf("expected ErrUnknownActor, got %v", err)
	}
	if err := c.StartMatch(actorA); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.StartMatch(actorB); !errors.Is(err, appErr.ErrMatchRunning) {
		t.Fatalf("expected ErrMatchRunning, got %v", err)
	}
	if err := c.Join(actorC, northSeat); !errors.Is(err, appErr.ErrMatchRunning) {
		t.Fatalf("expected mid-match join to fail, got %v", err)
	}
	if _, err := c.RequestFire(actorB, duel.FireRequest{Shooter: actorA, Target: actorB}); !errors.Is(err, appErr.ErrShooterMismatch) {
		t.Fatalf("expected ErrShooterMismatch, got %v", err)
	}
	if _, err := c.RequestFire(actorA, duel.FireRequest{Shooter: actorA, Target: 99}); !errors.Is(err, appErr.ErrUnknownActor) {
		t.Fatalf("expected ErrUnknownActor for target, got %v", err)
	}
}

func TestCoordinatorNonAuthorityIsNoop(t *testing.T) {
	c := duel.NewCoordinator(testTableID, defaultSettings(),
		duel.WithAuthority(duel.AuthorityFunc(func() bool { return false })))

	if err := c.Join(actorA, eastSeat); !errors.Is(err, appErr.ErrNotAuthority) {
		t.Fatalf("expected ErrNotAuthority, got %v", err)
	}
	if _, err := c.RequestFire(actorA, duel.FireRequest{Shooter: actorA, Target: actorB}); !errors.Is(err, appErr.ErrNotAuthority) {
		t.Fatalf("expected ErrNotAuthority, got %v", err)
	}
	if err := c.StartMatch(duel.NoActor); !errors.Is(err, appErr.ErrNotAuthority) {
		t.Fatalf("expected ErrNotAuthority, got %v", err)
	}
	if state := c.Snapshot(actorA); len(state.HP) != 0 || len(state.Props) != 0 {
		t.Fatalf("non-authority must not write state: %+v", state)
	}
}

func TestCoordinatorLeavePassesTurnThenEndsMatch(t *testing.T) {
	settings := defaultSettings()
	settings.AutoStart = false
	c := duel.NewCoordinator(testTableID, settings,
		duel.WithFirstTurn(alwaysFirst(actorA)),
		duel.WithDeckBuilder(fixedDeck(duel.Blank, duel.Live, duel.Live)))
	for actor, pos := range map[duel.ActorID]geo.Point{actorA: eastSeat, actorB: northSeat, actorC: westSeat} {
		if err := c.Join(actor, pos); err != nil {
			t.Fatalf("join %d: %v", actor, err)
		}
	}
	if err := c.StartMatch(duel.NoActor); err != nil {
		t.Fatalf("start: %v", err)
	}

	// clockwise order is C, B, A so the turn wraps from A to C
	if err := c.Leave(actorA); err != nil {
		t.Fatalf("leave A: %v", err)
	}
	state := c.Snapshot(actorC)
	if state.CurrentTurn != actorC || state.Phase != duel.PhaseInGame {
		t.Fatalf("turn should pass to C: %+v", state)
	}
	if _, ok := state.HP["1"]; ok {
		t.Fatalf("leaver hp must be removed: %v", state.HP)
	}

	if err := c.Leave(actorC); err != nil {
		t.Fatalf("leave C: %v", err)
	}
	state = c.Snapshot(actorB)
	if state.Phase != duel.PhaseLobby || state.CurrentTurn != duel.NoActor {
		t.Fatalf("lone actor should fall back to lobby: %+v", state)
	}
	if err := c.Leave(actorC); !errors.Is(err, appErr.ErrUnknownActor) {
		t.Fatalf("expected ErrUnknownActor, got %v", err)
	}
}

func TestCoordinatorApplyDamage(t *testing.T) {
	c := newDuel(t, defaultSettings())

	hp, err := c.ApplyDamage(actorB, 1)
	if err != nil || hp != 2 {
		t.Fatalf("ApplyDamage = %d, %v", hp, err)
	}
	if _, err := c.ApplyDamage(actorB, 0); !errors.Is(err, appErr.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := c.ApplyDamage(99, 1); !errors.Is(err, appErr.ErrUnknownActor) {
		t.Fatalf("expected ErrUnknownActor, got %v", err)
	}

	hp, err = c.ApplyDamage(actorB, 5)
	if err != nil || hp != 0 {
		t.Fatalf("ApplyDamage = %d, %v", hp, err)
	}
	state := c.Snapshot(actorA)
	if state.Match != 2 || state.HP["2"] != 3 {
		t.Fatalf("lethal damage should end the match and restart: %+v", state)
	}
}

func TestCoordinatorSkipTurn(t *testing.T) {
	c := newDuel(t, defaultSettings())

	if _, err := c.SkipTurn(actorB); !errors.Is(err, appErr.ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}
	next, err := c.SkipTurn(actorA)
	if err != nil || next != actorB {
		t.Fatalf("SkipTurn = %d, %v", next, err)
	}
	if got := c.Snapshot(actorB).CurrentTurn; got != actorB {
		t.Fatalf("current turn = %d", got)
	}
}

func TestCoordinatorSubscribe(t *testing.T) {
	c := newDuel(t, defaultSettings())

	first := c.Subscribe(actorA)
	msgs := drain(first)
	if len(msgs) != 1 || msgs[0].Type != duel.MsgState {
		t.Fatalf("expected a single snapshot, got %v", eventTypes(msgs))
	}
	if state := msgs[0].Data.(duel.TableState); state.CurrentTurn != actorA {
		t.Fatalf("snapshot current turn = %d", state.CurrentTurn)
	}

	second := c.Subscribe(actorA)
	if _, ok := <-first; ok {
		t.Fatalf("old channel should be closed on resubscribe")
	}
	c.Ping(actorA)
	c.Reject(actorA, "fire", "r9", appErr.ErrNotYourTurn)
	c.Ack(actorA, "r10", duel.ShotResult{Shooter: actorA, Target: actorB})
	types := eventTypes(drain(second))
	if !reflect.DeepEqual(types, []string{duel.MsgState, duel.MsgPong, duel.MsgRejected, duel.MsgFireAck}) {
		t.Fatalf("unexpected messages: %v", types)
	}

	c.Unsubscribe(actorA)
	if _, ok := <-second; ok {
		t.Fatalf("channel should be closed on unsubscribe")
	}
}

func TestCoordinatorRedactsShells(t *testing.T) {
	for _, reveal := range []bool{false, true} {
		settings := defaultSettings()
		settings.AutoStart = false
		settings.RevealShells = reveal
		c := duel.NewCoordinator(testTableID, settings)
		c.Join(actorA, eastSeat)
		c.Join(actorB, westSeat)
		ch := c.Subscribe(actorA)
		if err := c.StartMatch(actorA); err != nil {
			t.Fatalf("start: %v", err)
		}

		seen := false
		for _, m := range drain(ch) {
			if m.Type != duel.MsgSync {
				continue
			}
			if _, ok := m.Data.(duel.SyncPayload).Props[duel.KeyShells]; ok {
				seen = true
			}
		}
		if seen != reveal {
			t.Fatalf("reveal=%v but shells visible=%v", reveal, seen)
		}
		if _, ok := c.Snapshot(actorA).Props[duel.KeyShells]; ok != reveal {
			t.Fatalf("reveal=%v but snapshot shells visible=%v", reveal, ok)
		}
	}
}

type captureSink struct {
	mu     sync.Mutex
	deltas []map[string]string
}

func (s *captureSink) Publish(_ int64, delta map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deltas = append(s.deltas, delta)
}

func TestCoordinatorPublishesFullDeltas(t *testing.T) {
	sink := &captureSink{}
	newDuel(t, defaultSettings(),
		duel.WithDeckBuilder(fixedDeck(duel.Live, duel.Blank)),
		duel.WithPropertySink(sink))

	merged := make(map[string]string)
	for _, d := range sink.deltas {
		for k, v := range d {
			merged[k] = v
		}
	}
	if merged[duel.KeyShells] != "1,0" || merged[duel.KeyTurn] != "1" || merged["hp_2"] != "3" {
		t.Fatalf("sink missed writes: %v", merged)
	}
}

func TestCoordinatorRecorder(t *testing.T) {
	ctrl := gomock.NewController(t)
	rec := mocks.NewMockRecorder(ctrl)

	shells := []duel.Shell{duel.Live, duel.Blank, duel.Live}
	gomock.InOrder(
		rec.EXPECT().PhaseChanged(testTableID, duel.PhaseInGame),
		rec.EXPECT().MatchStarted(testTableID, 1, []duel.ActorID{actorA, actorB}, 3),
		rec.EXPECT().RoundStarted(testTableID, 1, 1, int64(42), shells, actorA),
		rec.EXPECT().ShotFired(testTableID, 1, 1, duel.ShotResult{
			Shooter: actorA, Target: actorB, Shell: duel.Live, NewTargetHP: 2, NextTurn: actorB,
		}),
	)

	c := newDuel(t, defaultSettings(),
		duel.WithDeckBuilder(fixedDeck(shells...)),
		duel.WithRecorder(rec))
	fire(t, c, actorA, actorB)
}
