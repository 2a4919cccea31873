package duel

import (
	"math/rand"

	appErr "roulette-service/pkg/errors"
)

// firstTurnMix decorrelates the first-turn draw from the shell shuffle that
// uses the same round seed.
const firstTurnMix int64 = 0x9e3779b9

// FirstTurnPolicy picks the actor that opens a round.
type FirstTurnPolicy interface {
	PickFirstActor(actors []ActorID, seed int64) (ActorID, error)
}

// FirstTurnFunc adapts a function to FirstTurnPolicy.
type FirstTurnFunc func(actors []ActorID, seed int64) (ActorID, error)

func (f FirstTurnFunc) PickFirstActor(actors []ActorID, seed int64) (ActorID, error) {
	return f(actors, seed)
}

// SeededFirstTurn is the default FirstTurnPolicy.
type SeededFirstTurn struct{}

func (SeededFirstTurn) PickFirstActor(actors []ActorID, seed int64) (ActorID, error) {
	return PickFirstActor(actors, seed)
}

// PickFirstActor deterministically selects an actor from the ordered list.
func PickFirstActor(actors []ActorID, seed int64) (ActorID, error) {
	if len(actors) == 0 {
		return NoActor, appErr.ErrNoActors
	}
	rng := rand.New(rand.NewSource(seed ^ firstTurnMix))
	return actors[rng.Intn(len(actors))], nil
}
