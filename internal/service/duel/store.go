package duel

import (
	"strconv"
	"strings"

	"roulette-service/pkg/logger"

	"go.uber.org/zap"
)

// Replicated property keys.
const (
	KeyTurn       = "turnActor"
	KeyShells     = "shells"
	KeyShellIndex = "shellIdx"
	KeyHPPrefix   = "hp_"
)

// HPKey returns the property key holding actor's HP.
func HPKey(actor ActorID) string {
	return KeyHPPrefix + actor.String()
}

// Store is the property bag holding a table's shared duel state. Anyone may
// read it; writes are unexported and only issued by the Coordinator (or a
// Mirror applying the Coordinator's broadcasts). An empty value deletes a key.
type Store struct {
	props   map[string]string
	actors  []ActorID
	pending map[string]string

	// decoded copy of props[KeyShells], replaced on every shells write
	shells       []Shell
	shellsCached bool
}

func NewStore() *Store {
	return &Store{
		props:   make(map[string]string),
		pending: make(map[string]string),
	}
}

func (s *Store) CurrentTurnActor() ActorID {
	raw, ok := s.props[KeyTurn]
	if !ok {
		return NoActor
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return NoActor
	}
	return ActorID(v)
}

func (s *Store) ShellIndex() int {
	raw, ok := s.props[KeyShellIndex]
	if !ok {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// Shells returns the round's sequence. Callers must not modify it.
func (s *Store) Shells() []Shell {
	if s.shellsCached {
		return s.shells
	}
	shells, ok := DecodeShells(s.props[KeyShells])
	if !ok {
		logger.Log.Warn("malformed shells property", zap.String("raw", s.props[KeyShells]))
	}
	s.shells = shells
	s.shellsCached = true
	return s.shells
}

func (s *Store) HP(actor ActorID) int {
	raw, ok := s.props[HPKey(actor)]
	if !ok {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// Actors returns the registered actors in registration order.
func (s *Store) Actors() []ActorID {
	return append([]ActorID(nil), s.actors...)
}

func (s *Store) HasActor(actor ActorID) bool {
	for _, a := range s.actors {
		if a == actor {
			return true
		}
	}
	return false
}

// Props returns a copy of every replicated property.
func (s *Store) Props() map[string]string {
	out := make(map[string]string, len(s.props))
	for k, v := range s.props {
		out[k] = v
	}
	return out
}

// LiveRemaining reports whether a Live shell is still ahead of the cursor.
func (s *Store) LiveRemaining() bool {
	live, _ := CountShells(s.Shells(), s.ShellIndex())
	return live > 0
}

func (s *Store) set(key, value string) {
	if value == "" {
		delete(s.props, key)
	} else {
		s.props[key] = value
	}
	if key == KeyShells {
		s.shellsCached = false
	}
	s.pending[key] = value
}

func (s *Store) setCurrentTurn(actor ActorID) {
	s.set(KeyTurn, actor.String())
}

func (s *Store) setShellIndex(index int) {
	s.set(KeyShellIndex, strconv.Itoa(index))
}

func (s *Store) setShells(shells []Shell) {
	s.set(KeyShells, EncodeShells(shells))
	s.shells = append([]Shell(nil), shells...)
	s.shellsCached = true
}

func (s *Store) setHP(actor ActorID, hp int) {
	if hp < 0 {
		hp = 0
	}
	s.set(HPKey(actor), strconv.Itoa(hp))
}

func (s *Store) addActor(actor ActorID) bool {
	if s.HasActor(actor) {
		return false
	}
	s.actors = append(s.actors, actor)
	return true
}

func (s *Store) removeActor(actor ActorID) bool {
	for i, a := range s.actors {
		if a == actor {
			s.actors = append(s.actors[:i], s.actors[i+1:]...)
			s.set(HPKey(actor), "")
			return true
		}
	}
	return false
}

// applyProps merges a replicated delta, keeping the actor list in step with
// the hp_ keys it carries.
func (s *Store) applyProps(delta map[string]string) {
	for key, value := range delta {
		s.set(key, value)
		if !strings.HasPrefix(key, KeyHPPrefix) {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(key, KeyHPPrefix), 10, 64)
		if err != nil {
			continue
		}
		if value == "" {
			s.removeActor(ActorID(id))
		} else {
			s.addActor(ActorID(id))
		}
	}
}

// takeDelta returns and clears the writes made since the last call.
func (s *Store) takeDelta() map[string]string {
	if len(s.pending) == 0 {
		return nil
	}
	delta := s.pending
	s.pending = make(map[string]string)
	return delta
}
