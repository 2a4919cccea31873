package duel_test

import (
	"encoding/json"
	"reflect"
	"testing"

	"roulette-service/internal/service/duel"
)

const observer duel.ActorID = 100

func assertMirrorMatches(t *testing.T, m *duel.Mirror, c *duel.Coordinator) {
	t.Helper()
	got := m.State()
	want := c.Snapshot(observer)
	if got.Phase != want.Phase || got.Match != want.Match || got.Round != want.Round {
		t.Fatalf("mirror phase/match/round = %s/%d/%d, want %s/%d/%d",
			got.Phase, got.Match, got.Round, want.Phase, want.Match, want.Round)
	}
	if got.CurrentTurn != want.CurrentTurn || got.ShellIndex != want.ShellIndex {
		t.Fatalf("mirror turn/index = %d/%d, want %d/%d",
			got.CurrentTurn, got.ShellIndex, want.CurrentTurn, want.ShellIndex)
	}
	hp := make(map[string]int)
	for actor, v := range got.HP {
		hp[actor.String()] = v
	}
	if !reflect.DeepEqual(hp, want.HP) {
		t.Fatalf("mirror hp = %v, want %v", hp, want.HP)
	}
}

func TestMirrorFollowsCoordinator(t *testing.T) {
	c := duel.NewCoordinator(testTableID, defaultSettings(),
		duel.WithFirstTurn(alwaysFirst(actorA)),
		duel.WithDeckBuilder(fixedDeck(duel.Live, duel.Blank, duel.Live)))
	ch := c.Subscribe(observer)
	c.Join(actorA, eastSeat)
	c.Join(actorB, westSeat)
	fire(t, c, actorA, actorB)
	fire(t, c, actorB, actorB)

	m := duel.NewMirror()
	for _, msg := range drain(ch) {
		m.Apply(msg)
	}
	assertMirrorMatches(t, m, c)

	last := m.State().LastShot
	if last == nil || last.Shooter != actorB || last.Shell != duel.Blank {
		t.Fatalf("unexpected last shot: %+v", last)
	}
}

func TestMirrorApplyIsIdempotent(t *testing.T) {
	c := duel.NewCoordinator(testTableID, defaultSettings(),
		duel.WithFirstTurn(alwaysFirst(actorA)),
		duel.WithDeckBuilder(fixedDeck(duel.Live, duel.Blank, duel.Live)))
	ch := c.Subscribe(observer)
	c.Join(actorA, eastSeat)
	c.Join(actorB, westSeat)
	fire(t, c, actorA, actorB)

	msgs := drain(ch)
	m := duel.NewMirror()
	for _, msg := range msgs {
		m.Apply(msg)
	}
	once := m.State()

	for _, msg := range msgs {
		if m.Apply(msg) {
			t.Fatalf("replayed %s seq %d was applied again", msg.Type, msg.Seq)
		}
	}
	if !reflect.DeepEqual(once, m.State()) {
		t.Fatalf("replay changed mirror state: %+v -> %+v", once, m.State())
	}

	// a resent shot without a seq lands on the same values
	var shot duel.OutgoingMessage
	for _, msg := range msgs {
		if msg.Type == duel.MsgShot {
			shot = msg
		}
	}
	shot.Seq = 0
	m.Apply(shot)
	m.Apply(shot)
	after := m.State()
	if after.CurrentTurn != once.CurrentTurn || after.ShellIndex != once.ShellIndex || !reflect.DeepEqual(after.HP, once.HP) {
		t.Fatalf("resent shot diverged: %+v -> %+v", once, after)
	}
}

func TestMirrorApplyJSON(t *testing.T) {
	c := duel.NewCoordinator(testTableID, defaultSettings(),
		duel.WithFirstTurn(alwaysFirst(actorA)),
		duel.WithDeckBuilder(fixedDeck(duel.Blank, duel.Live, duel.Live)))
	ch := c.Subscribe(observer)
	c.Join(actorA, eastSeat)
	c.Join(actorB, westSeat)
	fire(t, c, actorA, actorB)
	fire(t, c, actorA, actorB)

	m := duel.NewMirror()
	for _, msg := range drain(ch) {
		raw, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("marshal %s: %v", msg.Type, err)
		}
		if _, err := m.ApplyJSON(raw); err != nil {
			t.Fatalf("apply %s: %v", msg.Type, err)
		}
	}
	assertMirrorMatches(t, m, c)

	if ok, err := m.ApplyJSON([]byte(`{"type":"pong","seq":999,"data":{}}`)); ok || err != nil {
		t.Fatalf("unknown types should be ignored, got %v %v", ok, err)
	}
	if _, err := m.ApplyJSON([]byte(`{"type":`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestMirrorFlagsSkippedMessages(t *testing.T) {
	c := duel.NewCoordinator(testTableID, defaultSettings(),
		duel.WithFirstTurn(alwaysFirst(actorA)),
		duel.WithDeckBuilder(fixedDeck(duel.Blank, duel.Blank, duel.Live)))
	ch := c.Subscribe(observer)
	c.Join(actorA, eastSeat)
	c.Join(actorB, westSeat)
	fire(t, c, actorA, actorB)

	msgs := drain(ch)
	if len(msgs) < 3 {
		t.Fatalf("expected several messages, got %v", eventTypes(msgs))
	}
	for i, msg := range msgs {
		if msg.Seq != int64(i+1) {
			t.Fatalf("message %d (%s) has seq %d", i, msg.Type, msg.Seq)
		}
	}

	m := duel.NewMirror()
	m.Apply(msgs[0])
	for _, msg := range msgs[2:] {
		m.Apply(msg)
	}
	if state := m.State(); !state.Gap || state.Gaps != 1 || !m.NeedsResync() {
		t.Fatalf("skipped message not flagged: %+v", state)
	}

	c.Resync(observer)
	for _, msg := range drain(ch) {
		m.Apply(msg)
	}
	if m.NeedsResync() {
		t.Fatalf("snapshot should clear the gap")
	}
	assertMirrorMatches(t, m, c)

	// unmirrored types still advance the seq
	c.Ping(observer)
	fire(t, c, actorA, actorB)
	for _, msg := range drain(ch) {
		m.Apply(msg)
	}
	if m.NeedsResync() {
		t.Fatalf("pong must not open a gap")
	}
}
