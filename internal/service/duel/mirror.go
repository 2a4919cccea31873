package duel

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
)

// Mirror is a non-authority participant's copy of a table. It never computes
// rule outcomes; it only applies what the Coordinator broadcasts, and applying
// the same message twice leaves it unchanged.
type Mirror struct {
	store    *Store
	phase    Phase
	match    int
	round    int
	winner   ActorID
	lastShot *ShotResult
	lastSeq  int64
	gap      bool
	gaps     int

	mu sync.Mutex
}

// MirrorState is what a renderer reads from a Mirror.
type MirrorState struct {
	Phase       Phase
	Match       int
	Round       int
	CurrentTurn ActorID
	ShellIndex  int
	HP          map[ActorID]int
	Winner      ActorID
	LastShot    *ShotResult
	LastSeq     int64
	// Gap is set when a numbered message was skipped. The mirror may be
	// stale until the next state snapshot clears it.
	Gap bool
	// Gaps counts every hole seen, so a lost snapshot shows up as a new one.
	Gaps int
}

func NewMirror() *Mirror {
	return &Mirror{store: NewStore(), phase: PhaseLobby}
}

// Apply applies one broadcast. It reports false when the message was already
// seen (seq not newer than the last applied) or carries nothing to apply.
// Numbered messages advance the seq even when their type is not mirrored.
func (m *Mirror) Apply(msg OutgoingMessage) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if msg.Seq > 0 {
		if msg.Seq <= m.lastSeq {
			return false
		}
		if m.lastSeq > 0 && msg.Seq > m.lastSeq+1 {
			m.gap = true
			m.gaps++
		}
		m.lastSeq = msg.Seq
	}
	if !m.applyLocked(msg.Type, msg.Data) {
		return false
	}
	if msg.Type == MsgState {
		m.gap = false
	}
	return true
}

// NeedsResync reports whether a message was missed since the last snapshot.
func (m *Mirror) NeedsResync() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gap
}

// ApplyJSON decodes a wire message and applies it.
func (m *Mirror) ApplyJSON(raw []byte) (bool, error) {
	var envelope struct {
		Type string          `json:"type"`
		Seq  int64           `json:"seq"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return false, err
	}

	var data interface{}
	switch envelope.Type {
	case MsgSync:
		data = &SyncPayload{}
	case MsgState:
		data = &TableState{}
	case MsgShot:
		data = &ShotPayload{}
	case MsgNewRound:
		data = &RoundPayload{}
	case MsgMatchStart:
		data = &MatchStartPayload{}
	case MsgMatchOver:
		data = &MatchOverPayload{}
	case MsgTurnSkipped:
		data = &TurnSkippedPayload{}
	case MsgDamage:
		data = &DamagePayload{}
	default:
		return m.Apply(OutgoingMessage{Type: envelope.Type, Seq: envelope.Seq}), nil
	}
	if err := json.Unmarshal(envelope.Data, data); err != nil {
		return false, fmt.Errorf("decode %s payload: %w", envelope.Type, err)
	}
	return m.Apply(OutgoingMessage{Type: envelope.Type, Seq: envelope.Seq, Data: data}), nil
}

func (m *Mirror) applyLocked(msgType string, data interface{}) bool {
	switch p := data.(type) {
	case *SyncPayload:
		return m.applyLocked(msgType, *p)
	case SyncPayload:
		m.store.applyProps(p.Props)
	case *TableState:
		return m.applyLocked(msgType, *p)
	case TableState:
		m.store = NewStore()
		m.store.applyProps(p.Props)
		for actor, hp := range p.HP {
			m.store.applyProps(map[string]string{KeyHPPrefix + actor: strconv.Itoa(hp)})
		}
		m.phase = p.Phase
		m.match = p.Match
		m.round = p.Round
	case *ShotPayload:
		return m.applyLocked(msgType, *p)
	case ShotPayload:
		m.store.applyProps(map[string]string{
			HPKey(p.Target): strconv.Itoa(p.NewTargetHP),
			KeyTurn:         p.NextTurn.String(),
			KeyShellIndex:   strconv.Itoa(p.ShellIndex),
		})
		shot := p.ShotResult
		m.lastShot = &shot
	case *RoundPayload:
		return m.applyLocked(msgType, *p)
	case RoundPayload:
		m.match = p.Match
		m.round = p.Round
		m.phase = PhaseInGame
		m.store.applyProps(map[string]string{
			KeyTurn:       p.FirstTurn.String(),
			KeyShellIndex: "0",
		})
	case *MatchStartPayload:
		return m.applyLocked(msgType, *p)
	case MatchStartPayload:
		m.match = p.Match
		m.phase = PhaseInGame
		m.winner = NoActor
		for _, actor := range p.Actors {
			m.store.applyProps(map[string]string{HPKey(actor): strconv.Itoa(p.StartHP)})
		}
	case *MatchOverPayload:
		return m.applyLocked(msgType, *p)
	case MatchOverPayload:
		m.match = p.Match
		m.winner = p.Winner
		m.phase = PhaseGameOver
	case *TurnSkippedPayload:
		return m.applyLocked(msgType, *p)
	case TurnSkippedPayload:
		m.store.applyProps(map[string]string{KeyTurn: p.NextTurn.String()})
	case *DamagePayload:
		return m.applyLocked(msgType, *p)
	case DamagePayload:
		m.store.applyProps(map[string]string{HPKey(p.Target): strconv.Itoa(p.NewHP)})
	default:
		return false
	}
	return true
}

func (m *Mirror) State() MirrorState {
	m.mu.Lock()
	defer m.mu.Unlock()

	hp := make(map[ActorID]int)
	for _, actor := range m.store.Actors() {
		hp[actor] = m.store.HP(actor)
	}
	var last *ShotResult
	if m.lastShot != nil {
		shot := *m.lastShot
		last = &shot
	}
	return MirrorState{
		Phase:       m.phase,
		Match:       m.match,
		Round:       m.round,
		CurrentTurn: m.store.CurrentTurnActor(),
		ShellIndex:  m.store.ShellIndex(),
		HP:          hp,
		Winner:      m.winner,
		LastShot:    last,
		LastSeq:     m.lastSeq,
		Gap:         m.gap,
		Gaps:        m.gaps,
	}
}

// Props returns the mirrored property bag.
func (m *Mirror) Props() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Props()
}
