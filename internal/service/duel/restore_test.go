package duel_test

import (
	"errors"
	"testing"

	"roulette-service/internal/service/duel"
	appErr "roulette-service/pkg/errors"
)

func restoredSeats() []duel.SeatState {
	return []duel.SeatState{
		{Actor: actorA, Position: eastSeat},
		{Actor: actorB, Position: westSeat},
	}
}

func TestRestoreResumesRunningMatch(t *testing.T) {
	c := duel.NewCoordinator(testTableID, defaultSettings())
	ch := c.Subscribe(actorA)
	drain(ch)

	props := map[string]string{
		duel.KeyTurn:       "2",
		duel.KeyShells:     "1,0,1",
		duel.KeyShellIndex: "1",
		"hp_1":             "2",
		"hp_2":             "3",
	}
	if err := c.Restore(restoredSeats(), props, 4, 2); err != nil {
		t.Fatalf("restore: %v", err)
	}

	state := c.Snapshot(actorA)
	if state.Phase != duel.PhaseInGame || state.Match != 4 || state.Round != 2 {
		t.Fatalf("unexpected lifecycle after restore: %+v", state)
	}
	if state.CurrentTurn != actorB || state.ShellIndex != 1 || state.ShellCount != 3 {
		t.Fatalf("turn or cursor not restored: %+v", state)
	}
	if state.HP["1"] != 2 || state.HP["2"] != 3 {
		t.Fatalf("hp not restored: %v", state.HP)
	}
	if len(state.Seats) != 2 {
		t.Fatalf("seats not restored: %+v", state.Seats)
	}

	types := eventTypes(drain(ch))
	if len(types) == 0 || types[len(types)-1] != duel.MsgState {
		t.Fatalf("subscribers should get a fresh snapshot, got %v", types)
	}

	result := fire(t, c, actorB, actorA)
	if result.Shell != duel.Blank || result.NextTurn != actorB {
		t.Fatalf("resumed deck should continue at the cursor, got %+v", result)
	}
}

func TestRestoreStartsFreshMatchOnInconsistentProps(t *testing.T) {
	sink := &captureSink{}
	c := duel.NewCoordinator(testTableID, defaultSettings(), duel.WithPropertySink(sink))

	// hp_3 belongs to an actor who is no longer seated.
	props := map[string]string{
		duel.KeyTurn:       "1",
		duel.KeyShells:     "1,0",
		duel.KeyShellIndex: "0",
		"hp_1":             "1",
		"hp_2":             "1",
		"hp_3":             "2",
	}
	if err := c.Restore(restoredSeats(), props, 4, 3); err != nil {
		t.Fatalf("restore: %v", err)
	}

	state := c.Snapshot(actorA)
	if state.Phase != duel.PhaseInGame || state.Match != 5 || state.Round != 1 {
		t.Fatalf("expected fresh match 5, got %+v", state)
	}
	if state.HP["1"] != 3 || state.HP["2"] != 3 {
		t.Fatalf("expected start hp, got %v", state.HP)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	cleared := false
	for _, delta := range sink.deltas {
		if v, ok := delta["hp_3"]; ok && v == "" {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("stale hp_3 should be deleted from the replica, deltas %v", sink.deltas)
	}
}

func TestRestoreWaitsInLobbyWithoutAutoStart(t *testing.T) {
	settings := defaultSettings()
	settings.AutoStart = false
	c := duel.NewCoordinator(testTableID, settings)

	if err := c.Restore(restoredSeats(), nil, 0, 0); err != nil {
		t.Fatalf("restore: %v", err)
	}
	state := c.Snapshot(actorA)
	if state.Phase != duel.PhaseLobby || len(state.Seats) != 2 {
		t.Fatalf("expected seated lobby, got %+v", state)
	}
	if err := c.StartMatch(actorA); err != nil {
		t.Fatalf("restored actors should be able to start: %v", err)
	}
}

func TestRestoreRequiresAuthority(t *testing.T) {
	c := duel.NewCoordinator(testTableID, defaultSettings(),
		duel.WithAuthority(duel.AuthorityFunc(func() bool { return false })))

	if err := c.Restore(restoredSeats(), nil, 0, 0); !errors.Is(err, appErr.ErrNotAuthority) {
		t.Fatalf("expected ErrNotAuthority, got %v", err)
	}
	if state := c.Snapshot(actorA); len(state.Seats) != 0 {
		t.Fatalf("read-only coordinator must stay untouched: %+v", state)
	}
}
