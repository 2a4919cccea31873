package duel

import "roulette-service/pkg/utils/geo"

// Outgoing message types.
const (
	MsgState       = "state"
	MsgSync        = "sync"
	MsgShot        = "shot"
	MsgNewRound    = "new_round"
	MsgMatchStart  = "match_start"
	MsgMatchOver   = "match_over"
	MsgActorJoined = "actor_joined"
	MsgActorLeft   = "actor_left"
	MsgTurnSkipped = "turn_skipped"
	MsgDamage      = "damage"
	MsgFireAck     = "fire_ack"
	MsgRejected    = "rejected"
	MsgPong        = "pong"
)

// OutgoingMessage is the delivery envelope. Seq counts up by one per
// subscription so receivers can drop duplicates and detect gaps.
type OutgoingMessage struct {
	Type string      `json:"type"`
	Seq  int64       `json:"seq"`
	Data interface{} `json:"data"`
}

// SyncPayload carries the property writes of one mutation. An empty value
// deletes the key.
type SyncPayload struct {
	Props map[string]string `json:"props"`
}

type ShotPayload struct {
	ShotResult
	Match          int `json:"match"`
	Round          int `json:"round"`
	ShellIndex     int `json:"shellIndex"`
	LiveRemaining  int `json:"liveRemaining"`
	BlankRemaining int `json:"blankRemaining"`
}

type RoundPayload struct {
	Match      int     `json:"match"`
	Round      int     `json:"round"`
	LiveCount  int     `json:"liveCount"`
	BlankCount int     `json:"blankCount"`
	FirstTurn  ActorID `json:"firstTurnId,string"`
}

type MatchStartPayload struct {
	Match   int       `json:"match"`
	Actors  []ActorID `json:"actors"`
	StartHP int       `json:"startHp"`
}

type MatchOverPayload struct {
	Match  int            `json:"match"`
	Winner ActorID        `json:"winnerId,string"`
	HP     map[string]int `json:"hp"`
}

type ActorPayload struct {
	Actor    ActorID   `json:"actorId,string"`
	Position geo.Point `json:"position"`
	Order    []ActorID `json:"order"`
}

type TurnSkippedPayload struct {
	Actor    ActorID `json:"actorId,string"`
	NextTurn ActorID `json:"nextTurnId,string"`
}

type DamagePayload struct {
	Target ActorID `json:"targetId,string"`
	Amount int     `json:"amount"`
	NewHP  int     `json:"newHp"`
}

type FireAckPayload struct {
	RequestID string     `json:"requestId,omitempty"`
	Result    ShotResult `json:"result"`
}

type RejectedPayload struct {
	RequestID string `json:"requestId,omitempty"`
	Action    string `json:"action"`
	Reason    string `json:"reason"`
}

// TableState is the full snapshot a participant receives on subscribe or
// rejoin.
type TableState struct {
	TableID        int64             `json:"tableId,string"`
	Phase          Phase             `json:"phase"`
	Match          int               `json:"match"`
	Round          int               `json:"round"`
	CurrentTurn    ActorID           `json:"currentTurnId,string"`
	ShellIndex     int               `json:"shellIndex"`
	ShellCount     int               `json:"shellCount"`
	LiveRemaining  int               `json:"liveRemaining"`
	BlankRemaining int               `json:"blankRemaining"`
	Seats          []Seat            `json:"seats"`
	HP             map[string]int    `json:"hp"`
	Props          map[string]string `json:"props"`
	AllowedActions []string          `json:"allowedActions"`
}
