package history

import (
	"context"

	"roulette-service/internal/model"

	"gorm.io/gorm"
)

// Service reads recorded history.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

type MatchDetail struct {
	Match  model.Match      `json:"match"`
	Rounds []model.RoundLog `json:"rounds"`
	Shots  []model.ShotLog  `json:"shots"`
}

// ListMatches returns the latest matches of a table, newest first.
func (s *Service) ListMatches(ctx context.Context, tableID int64, limit int) ([]model.Match, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	var matches []model.Match
	if err := s.db.WithContext(ctx).
		Where("table_id = ?", tableID).
		Order("id DESC").
		Limit(limit).
		Find(&matches).Error; err != nil {
		return nil, err
	}
	return matches, nil
}

// GetMatch loads one match with its rounds and shots in play order. It
// returns nil when the match is unknown.
func (s *Service) GetMatch(ctx context.Context, matchID int64) (*MatchDetail, error) {
	var match model.Match
	if err := s.db.WithContext(ctx).First(&match, matchID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}

	detail := &MatchDetail{Match: match}
	if err := s.db.WithContext(ctx).
		Where("match_id = ?", matchID).
		Order("round_no ASC").
		Find(&detail.Rounds).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).
		Where("match_id = ?", matchID).
		Order("shot_no ASC").
		Find(&detail.Shots).Error; err != nil {
		return nil, err
	}
	return detail, nil
}

// Progress returns the latest recorded match number of a table and the last
// round played in it. Both are zero for a table without history.
func (s *Service) Progress(ctx context.Context, tableID int64) (match, round int, err error) {
	var latest model.Match
	err = s.db.WithContext(ctx).
		Where("table_id = ?", tableID).
		Order("id DESC").
		Limit(1).
		Find(&latest).Error
	if err != nil || latest.ID == 0 {
		return 0, 0, err
	}

	var last struct{ RoundNo int }
	err = s.db.WithContext(ctx).
		Model(&model.RoundLog{}).
		Select("COALESCE(MAX(round_no), 0) AS round_no").
		Where("match_id = ?", latest.ID).
		Scan(&last).Error
	if err != nil {
		return 0, 0, err
	}
	return latest.MatchNo, last.RoundNo, nil
}
