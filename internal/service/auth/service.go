package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"roulette-service/internal/model"
	pkgAuth "roulette-service/pkg/auth"
	appErr "roulette-service/pkg/errors"
	"roulette-service/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	minNicknameLen = 2
	maxNicknameLen = 24
	minPasswordLen = 6
	maxFailures    = 5
)

type Service struct {
	db         *gorm.DB
	rdb        *redis.Client
	lockoutTTL time.Duration
}

type LoginResult struct {
	Token    string     `json:"token"`
	ExpireAt time.Time  `json:"expireAt"`
	Player   PlayerInfo `json:"player"`
}

type PlayerInfo struct {
	ID          int64      `json:"id,string"`
	Nickname    string     `json:"nickname"`
	Wins        int        `json:"wins"`
	Losses      int        `json:"losses"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// NewService builds the account service. rdb is optional and only used to
// throttle failed logins.
func NewService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		db:         db,
		rdb:        rdb,
		lockoutTTL: 5 * time.Minute,
	}
}

func (s *Service) Register(ctx context.Context, nickname, password string) (*LoginResult, error) {
	nickname = strings.TrimSpace(nickname)
	if n := utf8.RuneCountInString(nickname); n < minNicknameLen || n > maxNicknameLen {
		return nil, appErr.ErrInvalidNickname
	}
	if len(password) < minPasswordLen {
		return nil, appErr.ErrInvalidPassword
	}

	var exists int64
	if err := s.db.WithContext(ctx).
		Model(&model.Player{}).
		Where("nickname = ?", nickname).
		Count(&exists).Error; err != nil {
		return nil, err
	}
	if exists > 0 {
		return nil, appErr.ErrNicknameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	player := model.Player{
		Nickname:     nickname,
		PasswordHash: string(hash),
		Status:       "normal",
	}
	if err := s.db.WithContext(ctx).Create(&player).Error; err != nil {
		return nil, err
	}
	logger.Log.Info("player registered",
		zap.Int64("playerID", player.ID),
		zap.String("nickname", nickname),
	)
	return s.issue(player)
}

func (s *Service) Login(ctx context.Context, nickname, password string) (*LoginResult, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" || password == "" {
		return nil, appErr.ErrInvalidPassword
	}
	if err := s.checkLockout(ctx, nickname); err != nil {
		return nil, err
	}

	var player model.Player
	if err := s.db.WithContext(ctx).Where("nickname = ?", nickname).First(&player).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, appErr.ErrPlayerNotFound
		}
		return nil, err
	}
	if strings.EqualFold(player.Status, "banned") {
		return nil, appErr.ErrPlayerBanned
	}
	if err := bcrypt.CompareHashAndPassword([]byte(player.PasswordHash), []byte(password)); err != nil {
		s.recordFailure(ctx, nickname)
		return nil, appErr.ErrInvalidPassword
	}
	s.clearFailures(ctx, nickname)

	now := time.Now()
	if err := s.db.WithContext(ctx).
		Model(&player).
		Updates(map[string]interface{}{
			"last_login_at": now,
			"updated_at":    now,
		}).Error; err != nil {
		return nil, err
	}
	player.LastLoginAt = &now
	return s.issue(player)
}

func (s *Service) GetPlayer(ctx context.Context, playerID int64) (*PlayerInfo, error) {
	var player model.Player
	if err := s.db.WithContext(ctx).First(&player, playerID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, appErr.ErrPlayerNotFound
		}
		return nil, err
	}
	info := sanitizePlayer(player)
	return &info, nil
}

func (s *Service) issue(player model.Player) (*LoginResult, error) {
	token, expireAt, err := pkgAuth.GenerateToken(player.ID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Token:    token,
		ExpireAt: expireAt,
		Player:   sanitizePlayer(player),
	}, nil
}

func (s *Service) checkLockout(ctx context.Context, nickname string) error {
	if s.rdb == nil {
		return nil
	}
	n, err := s.rdb.Get(ctx, buildFailKey(nickname)).Int()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return err
	}
	if n >= maxFailures {
		return appErr.ErrTooManyAttempts
	}
	return nil
}

func (s *Service) recordFailure(ctx context.Context, nickname string) {
	if s.rdb == nil {
		return
	}
	key := buildFailKey(nickname)
	pipe := s.rdb.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.lockoutTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Log.Warn("failed to record login failure", zap.String("nickname", nickname), zap.Error(err))
	}
}

func (s *Service) clearFailures(ctx context.Context, nickname string) {
	if s.rdb == nil {
		return
	}
	s.rdb.Del(ctx, buildFailKey(nickname))
}

func sanitizePlayer(player model.Player) PlayerInfo {
	return PlayerInfo{
		ID:          player.ID,
		Nickname:    player.Nickname,
		Wins:        player.Wins,
		Losses:      player.Losses,
		LastLoginAt: player.LastLoginAt,
		CreatedAt:   player.CreatedAt,
	}
}

func buildFailKey(nickname string) string {
	return fmt.Sprintf("auth:fail:%s", strings.ToLower(nickname))
}
