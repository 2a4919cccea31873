package history

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"roulette-service/internal/model"
	"roulette-service/internal/service/duel"
	"roulette-service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultQueueSize = 256

type job struct {
	name    string
	tableID int64
	run     func(ctx context.Context) error
}

type matchKey struct {
	tableID int64
	match   int
}

// Recorder persists match history off the table lock. Calls enqueue a job
// and return immediately; a single worker applies jobs in order.
type Recorder struct {
	db   *gorm.DB
	jobs chan job

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	// owned by the worker
	matches map[matchKey]int64
	shots   map[int64]int
}

var _ duel.Recorder = (*Recorder)(nil)

func NewRecorder(db *gorm.DB, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Recorder{
		db:      db,
		jobs:    make(chan job, queueSize),
		matches: make(map[matchKey]int64),
		shots:   make(map[int64]int),
	}
}

// Start runs the worker until Stop is called. Writes outlive ctx
// cancellation so a shutdown still drains the queue.
func (r *Recorder) Start(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for j := range r.jobs {
			if err := j.run(ctx); err != nil {
				logger.Log.Error("history write failed",
					zap.String("job", j.name),
					zap.Int64("tableID", j.tableID),
					zap.Error(err),
				)
			}
		}
	}()
}

// Stop closes the queue and waits for pending writes.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.jobs)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Recorder) enqueue(name string, tableID int64, run func(ctx context.Context) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.jobs <- job{name: name, tableID: tableID, run: run}:
	default:
		logger.Log.Warn("history queue full, dropping",
			zap.String("job", name),
			zap.Int64("tableID", tableID),
		)
	}
}

func (r *Recorder) PhaseChanged(tableID int64, phase duel.Phase) {
	var status string
	switch phase {
	case duel.PhaseInGame:
		status = model.TableStatusPlaying
	case duel.PhaseLobby:
		status = model.TableStatusWaiting
	default:
		return
	}
	r.enqueue("phase", tableID, func(ctx context.Context) error {
		return r.db.WithContext(ctx).
			Model(&model.Table{}).
			Where("id = ?", tableID).
			Update("status", status).Error
	})
}

func (r *Recorder) MatchStarted(tableID int64, match int, actors []duel.ActorID, startHP int) {
	actors = append([]duel.ActorID(nil), actors...)
	r.enqueue("match_started", tableID, func(ctx context.Context) error {
		row := model.Match{
			TableID:    tableID,
			MatchNo:    match,
			StartHP:    startHP,
			ActorsJSON: mustJSON(actors),
		}
		if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
			return err
		}
		r.matches[matchKey{tableID, match}] = row.ID
		return nil
	})
}

func (r *Recorder) RoundStarted(tableID int64, match, round int, seed int64, shells []duel.Shell, first duel.ActorID) {
	encoded := duel.EncodeShells(shells)
	r.enqueue("round_started", tableID, func(ctx context.Context) error {
		matchID, ok, err := r.lookupMatch(ctx, tableID, match)
		if err != nil || !ok {
			return err
		}
		return r.db.WithContext(ctx).Create(&model.RoundLog{
			MatchID:   matchID,
			RoundNo:   round,
			Seed:      seed,
			Shells:    encoded,
			FirstTurn: int64(first),
		}).Error
	})
}

func (r *Recorder) ShotFired(tableID int64, match, round int, result duel.ShotResult) {
	r.enqueue("shot", tableID, func(ctx context.Context) error {
		matchID, ok, err := r.lookupMatch(ctx, tableID, match)
		if err != nil || !ok {
			return err
		}
		r.shots[matchID]++
		return r.db.WithContext(ctx).Create(&model.ShotLog{
			MatchID:     matchID,
			RoundNo:     round,
			ShotNo:      r.shots[matchID],
			ShooterID:   int64(result.Shooter),
			TargetID:    int64(result.Target),
			Live:        result.Shell == duel.Live,
			NewTargetHP: result.NewTargetHP,
			RoundOver:   result.IsRoundOver,
			NextTurn:    int64(result.NextTurn),
		}).Error
	})
}

func (r *Recorder) MatchEnded(tableID int64, match int, winner duel.ActorID, hp map[duel.ActorID]int) {
	final := make(map[string]int, len(hp))
	for actor, v := range hp {
		final[actor.String()] = v
	}
	r.enqueue("match_ended", tableID, func(ctx context.Context) error {
		key := matchKey{tableID, match}
		matchID, ok, err := r.lookupMatch(ctx, tableID, match)
		if err != nil || !ok {
			return err
		}
		delete(r.matches, key)
		delete(r.shots, matchID)

		now := time.Now()
		updates := map[string]interface{}{
			"result_json": mustJSON(final),
			"ended_at":    now,
		}
		if winner != duel.NoActor {
			updates["winner_id"] = int64(winner)
		}
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&model.Match{}).Where("id = ?", matchID).Updates(updates).Error; err != nil {
				return err
			}
			return bumpPlayerStats(tx, winner, hp)
		})
	})
}

// lookupMatch resolves the row of a running match. A match started before a
// takeover is found through its open row, and its shot count resumes from
// the rows already written.
func (r *Recorder) lookupMatch(ctx context.Context, tableID int64, match int) (int64, bool, error) {
	key := matchKey{tableID, match}
	if id, ok := r.matches[key]; ok {
		return id, true, nil
	}

	var row model.Match
	err := r.db.WithContext(ctx).
		Where("table_id = ? AND match_no = ? AND ended_at IS NULL", tableID, match).
		Order("id DESC").
		Limit(1).
		Find(&row).Error
	if err != nil || row.ID == 0 {
		return 0, false, err
	}
	var shots int64
	if err := r.db.WithContext(ctx).
		Model(&model.ShotLog{}).
		Where("match_id = ?", row.ID).
		Count(&shots).Error; err != nil {
		return 0, false, err
	}
	r.matches[key] = row.ID
	r.shots[row.ID] = int(shots)
	return row.ID, true, nil
}

// bumpPlayerStats counts the result for seated players. Bots have negative
// ids and no account row.
func bumpPlayerStats(tx *gorm.DB, winner duel.ActorID, hp map[duel.ActorID]int) error {
	for actor := range hp {
		if actor <= 0 {
			continue
		}
		column := "losses"
		if actor == winner {
			column = "wins"
		}
		if err := tx.Model(&model.Player{}).
			Where("id = ?", int64(actor)).
			UpdateColumn(column, gorm.Expr(column+" + ?", 1)).Error; err != nil {
			return err
		}
	}
	return nil
}

func mustJSON(v interface{}) datatypes.JSON {
	if v == nil {
		return datatypes.JSON("{}")
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(raw)
}
