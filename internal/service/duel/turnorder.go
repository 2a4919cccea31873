package duel

import (
	"sort"

	"roulette-service/pkg/utils/geo"
)

// Seat is an actor's place at the table.
type Seat struct {
	Actor    ActorID   `json:"actorId,string"`
	Position geo.Point `json:"position"`
	seq      int
}

// TurnOrder keeps actors in clockwise seating order around a centre point and
// tracks which of them the renderer should treat as current. It does not
// decide turn recovery when the current actor leaves; that is up to the caller.
type TurnOrder struct {
	center  geo.Point
	seats   []Seat
	nextSeq int
	current ActorID
}

func NewTurnOrder(center geo.Point) *TurnOrder {
	return &TurnOrder{center: center}
}

// Register seats actor at pos, or moves it if already seated. Moving keeps the
// original registration rank for tie breaks.
func (o *TurnOrder) Register(actor ActorID, pos geo.Point) {
	for i := range o.seats {
		if o.seats[i].Actor == actor {
			o.seats[i].Position = pos
			o.sort()
			return
		}
	}
	o.seats = append(o.seats, Seat{Actor: actor, Position: pos, seq: o.nextSeq})
	o.nextSeq++
	o.sort()
}

// Unregister removes actor and reports whether it was seated. The current
// marker is cleared if it pointed at actor.
func (o *TurnOrder) Unregister(actor ActorID) bool {
	for i := range o.seats {
		if o.seats[i].Actor == actor {
			o.seats = append(o.seats[:i], o.seats[i+1:]...)
			if o.current == actor {
				o.current = NoActor
			}
			return true
		}
	}
	return false
}

// sort orders seats by descending angle; equal angles keep registration order.
func (o *TurnOrder) sort() {
	sort.SliceStable(o.seats, func(i, j int) bool {
		ai := geo.AngleAround(o.center, o.seats[i].Position)
		aj := geo.AngleAround(o.center, o.seats[j].Position)
		if ai != aj {
			return ai > aj
		}
		return o.seats[i].seq < o.seats[j].seq
	})
}

func (o *TurnOrder) Len() int {
	return len(o.seats)
}

// Order returns the actors in acting order.
func (o *TurnOrder) Order() []ActorID {
	out := make([]ActorID, len(o.seats))
	for i, s := range o.seats {
		out[i] = s.Actor
	}
	return out
}

func (o *TurnOrder) Seats() []Seat {
	return append([]Seat(nil), o.seats...)
}

func (o *TurnOrder) IndexOf(actor ActorID) int {
	for i, s := range o.seats {
		if s.Actor == actor {
			return i
		}
	}
	return -1
}

// Next returns the actor after actor in clockwise order, wrapping around.
// Unknown actors map to the first seat.
func (o *TurnOrder) Next(actor ActorID) ActorID {
	if len(o.seats) == 0 {
		return NoActor
	}
	idx := o.IndexOf(actor)
	if idx < 0 {
		return o.seats[0].Actor
	}
	return o.seats[(idx+1)%len(o.seats)].Actor
}

// Opponent is the next other actor clockwise, or actor itself when alone.
func (o *TurnOrder) Opponent(actor ActorID) ActorID {
	next := o.Next(actor)
	if next == NoActor {
		return actor
	}
	return next
}

// Across returns the actor sitting opposite actor.
func (o *TurnOrder) Across(actor ActorID) ActorID {
	idx := o.IndexOf(actor)
	if idx < 0 || len(o.seats) < 2 {
		return NoActor
	}
	return o.seats[(idx+len(o.seats)/2)%len(o.seats)].Actor
}

// SetCurrent records the actor whose turn the store reports. Unknown actors
// clear the marker.
func (o *TurnOrder) SetCurrent(actor ActorID) {
	if o.IndexOf(actor) < 0 {
		o.current = NoActor
		return
	}
	o.current = actor
}

func (o *TurnOrder) Current() ActorID {
	return o.current
}
