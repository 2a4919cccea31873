package duel

import appErr "roulette-service/pkg/errors"

// StateView is the read-only state a RuleEngine resolves against.
type StateView interface {
	CurrentTurnActor() ActorID
	ShellIndex() int
	Shells() []Shell
	HP(actor ActorID) int
	Opponent(actor ActorID) ActorID
	HasShellLeft() bool
}

// RuleEngine validates and resolves a single fire request. Implementations
// must not mutate anything.
type RuleEngine interface {
	ResolveShot(state StateView, req FireRequest) (ShotResult, error)
}

// BasicRules is the standard rule set: a Live shell deals one damage and
// passes the turn to the shooter's opponent, a Blank keeps the turn with the
// shooter. The target does not matter, a self-targeted Live still passes.
type BasicRules struct{}

func (BasicRules) ResolveShot(state StateView, req FireRequest) (ShotResult, error) {
	current := state.CurrentTurnActor()
	if req.Shooter != current {
		return ShotResult{}, appErr.ErrNotYourTurn
	}

	targetHP := state.HP(req.Target)
	if !state.HasShellLeft() {
		return ShotResult{
			Shooter:     req.Shooter,
			Target:      req.Target,
			Shell:       Blank,
			NewTargetHP: targetHP,
			IsRoundOver: true,
			NextTurn:    current,
		}, nil
	}

	shell := state.Shells()[state.ShellIndex()]
	if shell == Live {
		targetHP--
		if targetHP < 0 {
			targetHP = 0
		}
		return ShotResult{
			Shooter:     req.Shooter,
			Target:      req.Target,
			Shell:       Live,
			NewTargetHP: targetHP,
			NextTurn:    state.Opponent(req.Shooter),
		}, nil
	}

	return ShotResult{
		Shooter:     req.Shooter,
		Target:      req.Target,
		Shell:       Blank,
		NewTargetHP: targetHP,
		NextTurn:    req.Shooter,
	}, nil
}
