package duel

// readonlyView adapts a Store to StateView.
type readonlyView struct {
	store    *Store
	opponent func(ActorID) ActorID
}

func newReadonlyView(store *Store, opponent func(ActorID) ActorID) StateView {
	return readonlyView{store: store, opponent: opponent}
}

func (v readonlyView) CurrentTurnActor() ActorID { return v.store.CurrentTurnActor() }
func (v readonlyView) ShellIndex() int { return v.store.ShellIndex() }
func (v readonlyView) Shells() []Shell { return v.store.Shells() }
func (v readonlyView) HP(actor ActorID) int { return v.store.HP(actor) }

func (v readonlyView) Opponent(actor ActorID) ActorID {
	if v.opponent == nil {
		return actor
	}
	return v.opponent(actor)
}

func (v readonlyView) HasShellLeft() bool {
	return v.store.ShellIndex() < len(v.store.Shells())
}
