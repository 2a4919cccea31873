package duel

import (
	"sort"
	"sync"

	appErr "roulette-service/pkg/errors"
	"roulette-service/pkg/logger"
	"roulette-service/pkg/utils/geo"
	"roulette-service/pkg/utils/random"

	"go.uber.org/zap"
)

const subscriberBuffer = 32

// Authority reports whether this process may mutate the table.
type Authority interface {
	IsAuthority() bool
}

type AuthorityFunc func() bool

func (f AuthorityFunc) IsAuthority() bool { return f() }

// AlwaysAuthority is used for single-node deployments and tests.
var AlwaysAuthority Authority = AuthorityFunc(func() bool { return true })

// PropertySink receives every committed property delta in commit order.
// Implementations must not block.
type PropertySink interface {
	Publish(tableID int64, delta map[string]string)
}

//go:generate mockgen -destination=mocks/recorder_mock.go -package=mocks roulette-service/internal/service/duel Recorder

// Recorder receives match history. Calls are made while the table is locked
// so implementations must not block.
type Recorder interface {
	PhaseChanged(tableID int64, phase Phase)
	MatchStarted(tableID int64, match int, actors []ActorID, startHP int)
	RoundStarted(tableID int64, match, round int, seed int64, shells []Shell, first ActorID)
	ShotFired(tableID int64, match, round int, result ShotResult)
	MatchEnded(tableID int64, match int, winner ActorID, hp map[ActorID]int)
}

// Settings are the rules a table plays with.
type Settings struct {
	StartHP      int
	MaxHP        int
	LiveCount    int
	BlankCount   int
	MinActors    int
	AutoStart    bool
	RevealShells bool
	SeatRadius   float64
}

func (s Settings) minActors() int {
	if s.MinActors < 2 {
		return 2
	}
	return s.MinActors
}

type Option func(*Coordinator)

func WithAuthority(a Authority) Option { return func(c *Coordinator) { c.authority = a } }
func WithRuleEngine(r RuleEngine) Option { return func(c *Coordinator) { c.rules = r } }
func WithDeckBuilder(d DeckBuilder) Option { return func(c *Coordinator) { c.deck = d } }
func WithFirstTurn(p FirstTurnPolicy) Option { return func(c *Coordinator) { c.policy = p } }
func WithSeedSource(f func() int64) Option { return func(c *Coordinator) { c.seeds = f } }
func WithRecorder(r Recorder) Option { return func(c *Coordinator) { c.recorder = r } }
func WithPropertySink(s PropertySink) Option { return func(c *Coordinator) { c.sink = s } }

type fireRecord struct {
	requestID string
	result    ShotResult
}

// Coordinator is the authoritative owner of one table's duel state. All
// mutations are serialized behind mu, applied to the Store and broadcast to
// subscribers in commit order.
type Coordinator struct {
	tableID  int64
	settings Settings

	authority Authority
	rules     RuleEngine
	deck      DeckBuilder
	policy    FirstTurnPolicy
	seeds     func() int64
	recorder  Recorder
	sink      PropertySink

	store *Store
	order *TurnOrder
	phase Phase
	match int
	round int

	lastFire    map[ActorID]fireRecord
	subscribers map[ActorID]*subscriber

	mu sync.Mutex
}

func NewCoordinator(tableID int64, settings Settings, opts ...Option) *Coordinator {
	c := &Coordinator{
		tableID:     tableID,
		settings:    settings,
		authority:   AlwaysAuthority,
		rules:       BasicRules{},
		deck:        DeckBuilderFunc(BuildShells),
		policy:      SeededFirstTurn{},
		seeds:       random.Seed,
		store:       NewStore(),
		order:       NewTurnOrder(geo.Point{}),
		phase:       PhaseLobby,
		lastFire:    make(map[ActorID]fireRecord),
		subscribers: make(map[ActorID]*subscriber),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) TableID() int64 {
	return c.tableID
}

func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Coordinator) IsAuthority() bool {
	return c.authority != nil && c.authority.IsAuthority()
}

// Subscribe registers a delivery channel for actor and queues a full
// snapshot on it. A previous channel for the same actor is closed. Messages
// on a channel are numbered from 1 without holes, so a missing seq means a
// message was dropped and the receiver should resync.
func (c *Coordinator) Subscribe(actor ActorID) <-chan OutgoingMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.subscribers[actor]; ok {
		close(old.ch)
	}
	sub := &subscriber{ch: make(chan OutgoingMessage, subscriberBuffer)}
	c.subscribers[actor] = sub
	c.pushLocked(actor, MsgState, c.snapshotLocked(actor))
	return sub.ch
}

func (c *Coordinator) Unsubscribe(actor ActorID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sub, ok := c.subscribers[actor]; ok {
		delete(c.subscribers, actor)
		close(sub.ch)
	}
}

// Resync pushes a fresh snapshot to actor only.
func (c *Coordinator) Resync(actor ActorID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pushLocked(actor, MsgState, c.snapshotLocked(actor))
}

// Ping answers a keepalive on actor's channel.
func (c *Coordinator) Ping(actor ActorID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pushLocked(actor, MsgPong, map[string]string{"message": "pong"})
}

// Reject tells actor its request was dropped. Nothing else is affected.
func (c *Coordinator) Reject(actor ActorID, action, requestID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pushLocked(actor, MsgRejected, RejectedPayload{RequestID: requestID, Action: action, Reason: err.Error()})
}

// Ack confirms an accepted fire request to actor.
func (c *Coordinator) Ack(actor ActorID, requestID string, result ShotResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pushLocked(actor, MsgFireAck, FireAckPayload{RequestID: requestID, Result: result})
}

// Close drops every subscriber.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for actor, sub := range c.subscribers {
		delete(c.subscribers, actor)
		close(sub.ch)
	}
}

// Snapshot returns the table state as seen by viewer.
func (c *Coordinator) Snapshot(viewer ActorID) TableState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked(viewer)
}

// Join seats actor at pos. Actors can only join between matches; the
// participant set is fixed while a match runs.
func (c *Coordinator) Join(actor ActorID, pos geo.Point) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.IsAuthority() {
		return appErr.ErrNotAuthority
	}
	if actor == NoActor {
		return appErr.ErrUnknownActor
	}
	if c.store.HasActor(actor) {
		c.order.Register(actor, pos)
		c.emitLocked(MsgActorJoined, ActorPayload{Actor: actor, Position: pos, Order: c.order.Order()})
		return nil
	}
	if c.phase == PhaseInGame {
		return appErr.ErrMatchRunning
	}

	c.store.addActor(actor)
	c.order.Register(actor, pos)
	logger.Log.Info("actor joined table",
		zap.Int64("tableID", c.tableID),
		zap.Int64("actor", int64(actor)),
		zap.Int("actors", c.order.Len()),
	)
	c.emitLocked(MsgActorJoined, ActorPayload{Actor: actor, Position: pos, Order: c.order.Order()})

	if c.settings.AutoStart && len(c.store.Actors()) >= c.settings.minActors() {
		c.startMatchLocked()
	}
	return nil
}

// Leave removes actor. When the leaver held the turn it passes clockwise;
// when too few actors remain the match ends and the table returns to lobby.
func (c *Coordinator) Leave(actor ActorID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.IsAuthority() {
		return appErr.ErrNotAuthority
	}
	if !c.store.HasActor(actor) {
		return appErr.ErrUnknownActor
	}

	heldTurn := c.store.CurrentTurnActor() == actor
	next := c.order.Next(actor)
	c.order.Unregister(actor)
	c.store.removeActor(actor)
	delete(c.lastFire, actor)

	logger.Log.Info("actor left table",
		zap.Int64("tableID", c.tableID),
		zap.Int64("actor", int64(actor)),
		zap.Bool("heldTurn", heldTurn),
	)
	c.emitLocked(MsgActorLeft, ActorPayload{Actor: actor, Order: c.order.Order()})

	if c.phase != PhaseInGame {
		return nil
	}
	if len(c.store.Actors()) < c.settings.minActors() {
		c.endMatchLocked(false)
		return nil
	}
	if heldTurn {
		c.store.setCurrentTurn(next)
		c.order.SetCurrent(next)
		c.emitLocked(MsgTurnSkipped, TurnSkippedPayload{Actor: actor, NextTurn: next})
	}
	return nil
}

// StartMatch begins a match on request of a seated actor (or NoActor for
// the system).
func (c *Coordinator) StartMatch(sender ActorID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.IsAuthority() {
		return appErr.ErrNotAuthority
	}
	if sender != NoActor && !c.store.HasActor(sender) {
		return appErr.ErrUnknownActor
	}
	if c.phase == PhaseInGame {
		return appErr.ErrMatchRunning
	}
	if len(c.store.Actors()) < c.settings.minActors() {
		return appErr.ErrNotEnoughActors
	}
	c.startMatchLocked()
	return nil
}

// RequestFire validates and resolves a shot from sender. Rejections leave
// state untouched and are returned to the caller; nothing is broadcast.
func (c *Coordinator) RequestFire(sender ActorID, req FireRequest) (ShotResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.IsAuthority() {
		return ShotResult{}, appErr.ErrNotAuthority
	}
	if req.Shooter != sender {
		return ShotResult{}, c.rejectFireLocked(sender, req, appErr.ErrShooterMismatch)
	}
	if c.phase != PhaseInGame {
		return ShotResult{}, c.rejectFireLocked(sender, req, appErr.ErrMatchNotRunning)
	}
	if req.RequestID != "" {
		if rec, ok := c.lastFire[sender]; ok && rec.requestID == req.RequestID {
			return rec.result, nil
		}
	}
	if sender != c.store.CurrentTurnActor() {
		return ShotResult{}, c.rejectFireLocked(sender, req, appErr.ErrNotYourTurn)
	}
	if !c.store.HasActor(req.Target) {
		return ShotResult{}, c.rejectFireLocked(sender, req, appErr.ErrUnknownActor)
	}

	view := newReadonlyView(c.store, c.order.Opponent)
	result, err := c.rules.ResolveShot(view, req)
	if err != nil {
		return ShotResult{}, c.rejectFireLocked(sender, req, err)
	}

	if result.IsRoundOver {
		c.announceShotLocked(result)
		c.startRoundLocked()
	} else {
		c.applyShotLocked(result)

		someoneDead := c.anyoneDeadLocked()
		liveEmpty := !c.store.LiveRemaining()
		if someoneDead || liveEmpty {
			result.IsRoundOver = true
		}
		c.announceShotLocked(result)

		switch {
		case someoneDead:
			c.endMatchLocked(true)
		case liveEmpty:
			c.startRoundLocked()
		}
	}

	c.lastFire[sender] = fireRecord{requestID: req.RequestID, result: result}
	return result, nil
}

// ApplyDamage deals extra damage outside the shell sequence, for effects such
// as cards. HP is clamped at zero and match-over is checked afterwards.
func (c *Coordinator) ApplyDamage(target ActorID, amount int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.IsAuthority() {
		return 0, appErr.ErrNotAuthority
	}
	if c.phase != PhaseInGame {
		return 0, appErr.ErrMatchNotRunning
	}
	if !c.store.HasActor(target) {
		return 0, appErr.ErrUnknownActor
	}
	if amount <= 0 {
		return 0, appErr.ErrInvalidAmount
	}

	hp := c.store.HP(target) - amount
	if hp < 0 {
		hp = 0
	}
	c.store.setHP(target, hp)
	c.emitLocked(MsgDamage, DamagePayload{Target: target, Amount: amount, NewHP: hp})

	if c.anyoneDeadLocked() {
		c.endMatchLocked(true)
	}
	return hp, nil
}

// SkipTurn passes the turn from actor to the next actor clockwise. actor
// must currently hold the turn, which guards against stale skip requests.
func (c *Coordinator) SkipTurn(actor ActorID) (ActorID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.IsAuthority() {
		return NoActor, appErr.ErrNotAuthority
	}
	if c.phase != PhaseInGame {
		return NoActor, appErr.ErrMatchNotRunning
	}
	if c.store.CurrentTurnActor() != actor {
		return NoActor, appErr.ErrNotYourTurn
	}

	next := c.order.Next(actor)
	c.store.setCurrentTurn(next)
	c.order.SetCurrent(next)
	c.emitLocked(MsgTurnSkipped, TurnSkippedPayload{Actor: actor, NextTurn: next})
	return next, nil
}

func (c *Coordinator) rejectFireLocked(sender ActorID, req FireRequest, err error) error {
	logger.Log.Warn("fire request rejected",
		zap.Int64("tableID", c.tableID),
		zap.Int64("sender", int64(sender)),
		zap.Int64("shooter", int64(req.Shooter)),
		zap.Int64("target", int64(req.Target)),
		zap.Int64("currentTurn", int64(c.store.CurrentTurnActor())),
		zap.Error(err),
	)
	return err
}

func (c *Coordinator) applyShotLocked(result ShotResult) {
	c.store.setHP(result.Target, result.NewTargetHP)

	next := c.store.ShellIndex() + 1
	if limit := len(c.store.Shells()); next > limit {
		next = limit
	}
	c.store.setShellIndex(next)

	c.store.setCurrentTurn(result.NextTurn)
	c.order.SetCurrent(result.NextTurn)
}

func (c *Coordinator) announceShotLocked(result ShotResult) {
	if c.recorder != nil {
		c.recorder.ShotFired(c.tableID, c.match, c.round, result)
	}
	live, blank := CountShells(c.store.Shells(), c.store.ShellIndex())
	c.emitLocked(MsgShot, ShotPayload{
		ShotResult:     result,
		Match:          c.match,
		Round:          c.round,
		ShellIndex:     c.store.ShellIndex(),
		LiveRemaining:  live,
		BlankRemaining: blank,
	})
}

func (c *Coordinator) anyoneDeadLocked() bool {
	for _, actor := range c.store.Actors() {
		if c.store.HP(actor) <= 0 {
			return true
		}
	}
	return false
}

// winnerLocked returns the actor with the highest HP; ties go to the
// earliest registered.
func (c *Coordinator) winnerLocked() ActorID {
	winner := NoActor
	best := -1
	for _, actor := range c.store.Actors() {
		if hp := c.store.HP(actor); hp > best {
			winner = actor
			best = hp
		}
	}
	return winner
}

func (c *Coordinator) setPhaseLocked(phase Phase) {
	if c.phase == phase {
		return
	}
	c.phase = phase
	if c.recorder != nil {
		c.recorder.PhaseChanged(c.tableID, phase)
	}
}

func (c *Coordinator) startMatchLocked() {
	c.match++
	c.round = 0

	actors := c.store.Actors()
	for _, actor := range actors {
		c.store.setHP(actor, c.settings.StartHP)
	}
	c.setPhaseLocked(PhaseInGame)

	logger.Log.Info("match started",
		zap.Int64("tableID", c.tableID),
		zap.Int("match", c.match),
		zap.Int("actors", len(actors)),
		zap.Int("startHP", c.settings.StartHP),
	)
	if c.recorder != nil {
		c.recorder.MatchStarted(c.tableID, c.match, actors, c.settings.StartHP)
	}
	c.emitLocked(MsgMatchStart, MatchStartPayload{Match: c.match, Actors: actors, StartHP: c.settings.StartHP})
	c.startRoundLocked()
}

func (c *Coordinator) startRoundLocked() {
	c.round++
	seed := c.seeds()
	shells := c.deck.Build(seed, c.settings.LiveCount, c.settings.BlankCount)
	c.store.setShells(shells)
	c.store.setShellIndex(0)

	actors := c.store.Actors()
	sort.Slice(actors, func(i, j int) bool { return actors[i] < actors[j] })
	first, err := c.policy.PickFirstActor(actors, seed)
	if err != nil {
		logger.Log.Error("first turn pick failed", zap.Int64("tableID", c.tableID), zap.Error(err))
		first = NoActor
	}
	c.store.setCurrentTurn(first)
	c.order.SetCurrent(first)

	logger.Log.Info("round started",
		zap.Int64("tableID", c.tableID),
		zap.Int("match", c.match),
		zap.Int("round", c.round),
		zap.Int64("seed", seed),
		zap.Int("shells", len(shells)),
		zap.Int64("firstTurn", int64(first)),
	)
	if c.recorder != nil {
		c.recorder.RoundStarted(c.tableID, c.match, c.round, seed, shells, first)
	}
	live, blank := CountShells(shells, 0)
	c.emitLocked(MsgNewRound, RoundPayload{
		Match:      c.match,
		Round:      c.round,
		LiveCount:  live,
		BlankCount: blank,
		FirstTurn:  first,
	})
}

// endMatchLocked announces the winner. With restart set and enough actors
// seated a fresh match follows immediately, otherwise the table idles in
// the lobby.
func (c *Coordinator) endMatchLocked(restart bool) {
	winner := c.winnerLocked()
	hp := make(map[ActorID]int)
	wire := make(map[string]int)
	for _, actor := range c.store.Actors() {
		hp[actor] = c.store.HP(actor)
		wire[actor.String()] = hp[actor]
	}
	c.setPhaseLocked(PhaseGameOver)

	logger.Log.Info("match over",
		zap.Int64("tableID", c.tableID),
		zap.Int("match", c.match),
		zap.Int64("winner", int64(winner)),
	)
	if c.recorder != nil {
		c.recorder.MatchEnded(c.tableID, c.match, winner, hp)
	}
	c.emitLocked(MsgMatchOver, MatchOverPayload{Match: c.match, Winner: winner, HP: wire})

	if restart && len(c.store.Actors()) >= c.settings.minActors() {
		c.startMatchLocked()
		return
	}
	c.store.setCurrentTurn(NoActor)
	c.order.SetCurrent(NoActor)
	c.setPhaseLocked(PhaseLobby)
	c.flushLocked()
}

// emitLocked flushes pending property writes as a sync message, then
// broadcasts the event so receivers see state before the event describing it.
func (c *Coordinator) emitLocked(msgType string, data interface{}) {
	c.flushLocked()
	c.broadcastLocked(msgType, data)
}

func (c *Coordinator) flushLocked() {
	delta := c.store.takeDelta()
	if delta == nil {
		return
	}
	if c.sink != nil {
		c.sink.Publish(c.tableID, delta)
	}
	public := c.redact(delta)
	if len(public) == 0 {
		return
	}
	c.broadcastLocked(MsgSync, SyncPayload{Props: public})
}

func (c *Coordinator) redact(props map[string]string) map[string]string {
	if c.settings.RevealShells {
		return props
	}
	return PublicProps(props)
}

// PublicProps drops the hidden shell order from a property bag.
func PublicProps(props map[string]string) map[string]string {
	out := make(map[string]string, len(props))
	for k, v := range props {
		if k == KeyShells {
			continue
		}
		out[k] = v
	}
	return out
}

type subscriber struct {
	ch  chan OutgoingMessage
	seq int64
}

func (c *Coordinator) broadcastLocked(msgType string, data interface{}) {
	for actor, sub := range c.subscribers {
		c.deliverLocked(actor, sub, msgType, data)
	}
}

func (c *Coordinator) pushLocked(actor ActorID, msgType string, data interface{}) {
	if sub, ok := c.subscribers[actor]; ok {
		c.deliverLocked(actor, sub, msgType, data)
	}
}

// deliverLocked numbers the message even when the channel is full.
func (c *Coordinator) deliverLocked(actor ActorID, sub *subscriber, msgType string, data interface{}) {
	sub.seq++
	select {
	case sub.ch <- OutgoingMessage{Type: msgType, Seq: sub.seq, Data: data}:
	default:
		logger.Log.Warn("subscriber channel full",
			zap.Int64("tableID", c.tableID),
			zap.Int64("actor", int64(actor)),
			zap.String("type", msgType),
			zap.Int64("seq", sub.seq),
		)
	}
}

func (c *Coordinator) snapshotLocked(viewer ActorID) TableState {
	live, blank := CountShells(c.store.Shells(), c.store.ShellIndex())
	hp := make(map[string]int)
	for _, actor := range c.store.Actors() {
		hp[actor.String()] = c.store.HP(actor)
	}
	return TableState{
		TableID:        c.tableID,
		Phase:          c.phase,
		Match:          c.match,
		Round:          c.round,
		CurrentTurn:    c.store.CurrentTurnActor(),
		ShellIndex:     c.store.ShellIndex(),
		ShellCount:     len(c.store.Shells()),
		LiveRemaining:  live,
		BlankRemaining: blank,
		Seats:          c.order.Seats(),
		HP:             hp,
		Props:          c.redact(c.store.Props()),
		AllowedActions: c.allowedActionsLocked(viewer),
	}
}

func (c *Coordinator) allowedActionsLocked(viewer ActorID) []string {
	if !c.store.HasActor(viewer) {
		return nil
	}
	switch c.phase {
	case PhaseLobby, PhaseGameOver:
		if len(c.store.Actors()) >= c.settings.minActors() {
			return []string{"start"}
		}
		return nil
	case PhaseInGame:
		if c.store.CurrentTurnActor() == viewer {
			return []string{"fire"}
		}
		return nil
	default:
		return nil
	}
}
