package duel

import "strconv"

// ActorID identifies a participant. Players use their account id, bots use
// negative ids.
type ActorID int64

// NoActor is the zero ActorID, used when nobody holds the turn.
const NoActor ActorID = 0

func (a ActorID) String() string {
	return strconv.FormatInt(int64(a), 10)
}

type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhaseInGame   Phase = "in_game"
	PhaseGameOver Phase = "game_over"
)

// FireRequest asks the authority to fire the next shell at Target.
// RequestID is optional; repeats from the same shooter are answered from cache.
type FireRequest struct {
	Shooter   ActorID `json:"shooterId,string"`
	Target    ActorID `json:"targetId,string"`
	RequestID string  `json:"requestId,omitempty"`
}

// ShotResult is the unit of replication: every participant applying the same
// results in the same order converges to the same state.
type ShotResult struct {
	Shooter     ActorID `json:"shooterId,string"`
	Target      ActorID `json:"targetId,string"`
	Shell       Shell   `json:"shell"`
	NewTargetHP int     `json:"newTargetHp"`
	IsRoundOver bool    `json:"isRoundOver"`
	NextTurn    ActorID `json:"nextTurnId,string"`
}
