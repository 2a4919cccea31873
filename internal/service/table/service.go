package table

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"roulette-service/internal/config"
	"roulette-service/internal/model"
	"roulette-service/internal/service/duel"
	"roulette-service/internal/service/history"
	appErr "roulette-service/pkg/errors"
	"roulette-service/pkg/logger"
	"roulette-service/pkg/utils/geo"
	"roulette-service/pkg/utils/random"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const codeLength = 6

type Config struct {
	Game    config.GameConfig
	Bot     config.BotConfig
	Replica config.ReplicaConfig
}

type Option func(*Service)

// WithRecorder attaches a match history recorder to every table runtime.
func WithRecorder(r duel.Recorder) Option { return func(s *Service) { s.recorder = r } }

// WithPropertySink attaches a replication sink to every table runtime.
func WithPropertySink(p duel.PropertySink) Option { return func(s *Service) { s.sink = p } }

// Service owns tables: their rows, seats and the live Coordinator of each.
type Service struct {
	db       *gorm.DB
	rdb      *redis.Client
	cfg      Config
	recorder duel.Recorder
	sink     duel.PropertySink
	history  *history.Service

	runtimes sync.Map // tableID -> *runtime
	seatMu   sync.Mutex
	leases   sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewService builds the table service. rdb may be nil, in which case every
// runtime is its own authority.
func NewService(db *gorm.DB, rdb *redis.Client, cfg Config, opts ...Option) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		db:      db,
		rdb:     rdb,
		cfg:     cfg,
		history: history.NewService(db),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateTableParams struct {
	Name      string
	SeatCount int
	Rules     RuleOverrides
}

type TableListResult struct {
	Items []model.Table
	Total int64
}

func (s *Service) CreateTable(ctx context.Context, ownerID int64, params CreateTableParams) (*model.Table, error) {
	if ownerID == 0 {
		return nil, appErr.ErrUnauthorized
	}
	seatCount := params.SeatCount
	if seatCount == 0 {
		seatCount = 2
	}
	if seatCount < 2 || (s.cfg.Game.MaxSeats > 0 && seatCount > s.cfg.Game.MaxSeats) {
		return nil, appErr.ErrInvalidTableRule
	}
	rules := defaultRules(s.cfg.Game).apply(params.Rules)
	if err := rules.validate(seatCount); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(params.Name)
	if name == "" {
		name = "Table"
	}
	table := model.Table{
		Code:        random.Code(codeLength),
		Name:        name,
		OwnerID:     ownerID,
		Status:      model.TableStatusWaiting,
		SeatCount:   seatCount,
		RulesJSON:   mustJSON(rules),
		PlayersJSON: datatypes.JSON("{}"),
	}
	if err := s.db.WithContext(ctx).Create(&table).Error; err != nil {
		return nil, err
	}

	logger.Log.Info("table created",
		zap.Int64("tableID", table.ID),
		zap.Int64("ownerID", ownerID),
		zap.String("code", table.Code),
		zap.Int("seats", seatCount),
	)
	return &table, nil
}

func (s *Service) GetTable(ctx context.Context, tableID int64) (*model.Table, error) {
	var table model.Table
	if err := s.db.WithContext(ctx).First(&table, tableID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErr.ErrTableNotFound
		}
		return nil, err
	}
	return &table, nil
}

func (s *Service) GetTableByCode(ctx context.Context, code string) (*model.Table, error) {
	var table model.Table
	err := s.db.WithContext(ctx).
		Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).
		First(&table).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErr.ErrTableNotFound
		}
		return nil, err
	}
	return &table, nil
}

// ListOpen pages through tables that are not ended, newest first.
func (s *Service) ListOpen(ctx context.Context, page, size int) (*TableListResult, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}

	query := s.db.WithContext(ctx).
		Model(&model.Table{}).
		Where("status <> ?", model.TableStatusEnded)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	var tables []model.Table
	if total > 0 {
		offset := (page - 1) * size
		if err := query.
			Order("id DESC").
			Limit(size).
			Offset(offset).
			Find(&tables).Error; err != nil {
			return nil, err
		}
	}

	return &TableListResult{
		Items: tables,
		Total: total,
	}, nil
}

// Join seats a player. pos is optional; by default seats are spaced evenly
// around the table in index order. Joining a table one already sits at only
// moves the seat when pos is given.
func (s *Service) Join(ctx context.Context, playerID, tableID int64, pos *geo.Point) (*duel.TableState, error) {
	if playerID <= 0 {
		return nil, appErr.ErrUnauthorized
	}
	actor := duel.ActorID(playerID)

	s.seatMu.Lock()
	defer s.seatMu.Unlock()

	table, err := s.GetTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	seats, err := loadSeats(table)
	if err != nil {
		return nil, err
	}
	coord, err := s.GetRuntime(ctx, tableID)
	if err != nil {
		return nil, err
	}

	if idx, ok := seats.find(actor); ok {
		if pos != nil {
			if err := coord.Join(actor, *pos); err != nil {
				return nil, err
			}
			entry := seats[idx]
			entry.Position = *pos
			seats[idx] = entry
			if err := s.saveSeats(ctx, tableID, seats); err != nil {
				return nil, err
			}
		}
		state := coord.Snapshot(actor)
		return &state, nil
	}

	if err := s.seatLocked(ctx, table, seats, coord, SeatEntry{ActorID: playerID, Position: positionOr(pos)}); err != nil {
		return nil, err
	}

	logger.Log.Info("player joined table",
		zap.Int64("tableID", tableID),
		zap.Int64("playerID", playerID),
	)
	state := coord.Snapshot(actor)
	return &state, nil
}

// Leave frees the player's seat. When no player is left the bots are
// dismissed too.
func (s *Service) Leave(ctx context.Context, playerID, tableID int64) error {
	actor := duel.ActorID(playerID)

	s.seatMu.Lock()
	defer s.seatMu.Unlock()

	table, err := s.GetTable(ctx, tableID)
	if err != nil {
		return err
	}
	seats, err := loadSeats(table)
	if err != nil {
		return err
	}
	idx, ok := seats.find(actor)
	if !ok {
		return appErr.ErrTableAccessDenied
	}
	coord, err := s.GetRuntime(ctx, tableID)
	if err != nil {
		return err
	}

	if err := coord.Leave(actor); err != nil && !errors.Is(err, appErr.ErrUnknownActor) {
		return err
	}
	delete(seats, idx)

	if !hasPlayers(seats) {
		for botIdx, entry := range seats {
			s.stopBot(tableID, duel.ActorID(entry.ActorID))
			if err := coord.Leave(duel.ActorID(entry.ActorID)); err != nil && !errors.Is(err, appErr.ErrUnknownActor) {
				logger.Log.Warn("failed to remove bot", zap.Int64("tableID", tableID), zap.Error(err))
			}
			delete(seats, botIdx)
		}
	}

	logger.Log.Info("player left table",
		zap.Int64("tableID", tableID),
		zap.Int64("playerID", playerID),
		zap.Int("remaining", len(seats)),
	)
	return s.saveSeats(ctx, tableID, seats)
}

func (s *Service) ValidateTableAccess(ctx context.Context, playerID, tableID int64) error {
	if playerID == 0 {
		return appErr.ErrUnauthorized
	}
	if tableID == 0 {
		return appErr.ErrTableNotFound
	}

	table, err := s.GetTable(ctx, tableID)
	if err != nil {
		return err
	}
	seats, err := loadSeats(table)
	if err != nil {
		return err
	}
	if _, ok := seats.find(duel.ActorID(playerID)); ok {
		return nil
	}
	return appErr.ErrTableAccessDenied
}

func (s *Service) Start(ctx context.Context, playerID, tableID int64) error {
	coord, err := s.seatedRuntime(ctx, playerID, tableID)
	if err != nil {
		return err
	}
	return coord.StartMatch(duel.ActorID(playerID))
}

func (s *Service) Fire(ctx context.Context, playerID, tableID, targetID int64, requestID string) (duel.ShotResult, error) {
	coord, err := s.seatedRuntime(ctx, playerID, tableID)
	if err != nil {
		return duel.ShotResult{}, err
	}
	actor := duel.ActorID(playerID)
	return coord.RequestFire(actor, duel.FireRequest{
		Shooter:   actor,
		Target:    duel.ActorID(targetID),
		RequestID: requestID,
	})
}

func (s *Service) State(ctx context.Context, playerID, tableID int64) (*duel.TableState, error) {
	coord, err := s.seatedRuntime(ctx, playerID, tableID)
	if err != nil {
		return nil, err
	}
	state := coord.Snapshot(duel.ActorID(playerID))
	return &state, nil
}

func (s *Service) History(ctx context.Context, tableID int64, limit int) ([]model.Match, error) {
	if _, err := s.GetTable(ctx, tableID); err != nil {
		return nil, err
	}
	return s.history.ListMatches(ctx, tableID, limit)
}

func (s *Service) MatchDetail(ctx context.Context, tableID, matchID int64) (*history.MatchDetail, error) {
	detail, err := s.history.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if detail == nil || detail.Match.TableID != tableID {
		return nil, appErr.ErrMatchNotFound
	}
	return detail, nil
}

func (s *Service) seatedRuntime(ctx context.Context, playerID, tableID int64) (*duel.Coordinator, error) {
	if err := s.ValidateTableAccess(ctx, playerID, tableID); err != nil {
		return nil, err
	}
	return s.GetRuntime(ctx, tableID)
}

// seatLocked takes the first free seat for entry, registers it with the
// Coordinator and persists the seat map.
func (s *Service) seatLocked(ctx context.Context, table *model.Table, seats seatMap, coord *duel.Coordinator, entry SeatEntry) error {
	idx, ok := seats.freeSeat(table.SeatCount)
	if !ok {
		return appErr.ErrTableFull
	}
	if entry.Position == (geo.Point{}) {
		entry.Position = geo.SeatPosition(idx, table.SeatCount, s.cfg.Game.SeatRadius)
	}

	actor := duel.ActorID(entry.ActorID)
	if err := coord.Join(actor, entry.Position); err != nil {
		return err
	}
	seats[idx] = entry
	if err := s.saveSeats(ctx, table.ID, seats); err != nil {
		coord.Leave(actor)
		delete(seats, idx)
		return err
	}
	return nil
}

func (s *Service) saveSeats(ctx context.Context, tableID int64, seats seatMap) error {
	return s.db.WithContext(ctx).
		Model(&model.Table{}).
		Where("id = ?", tableID).
		Update("players_json", datatypes.JSON(seats.encode())).Error
}

func hasPlayers(seats seatMap) bool {
	for _, entry := range seats {
		if !entry.Bot {
			return true
		}
	}
	return false
}

func positionOr(pos *geo.Point) geo.Point {
	if pos == nil {
		return geo.Point{}
	}
	return *pos
}

func mustJSON(v interface{}) datatypes.JSON {
	raw, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(raw)
}
