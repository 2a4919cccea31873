package model

import (
	"time"

	"gorm.io/datatypes"
)

// Player

type Player struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Nickname     string `gorm:"unique;not null"`
	PasswordHash string `gorm:"not null" json:"-"`
	Status       string `gorm:"default:normal;not null"` // normal/banned
	Wins         int    `gorm:"default:0"`
	Losses       int    `gorm:"default:0"`
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Table & Match

const (
	TableStatusWaiting = "waiting"
	TableStatusPlaying = "playing"
	TableStatusEnded   = "ended"
)

type Table struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	Code        string `gorm:"unique;not null"`
	Name        string
	OwnerID     int64
	Status      string `gorm:"default:waiting;not null"` // waiting/playing/ended
	SeatCount   int
	RulesJSON   datatypes.JSON `gorm:"type:jsonb"` // start hp, shell counts, ...
	PlayersJSON datatypes.JSON `gorm:"type:jsonb"` // seat -> actor
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Match struct {
	ID         int64 `gorm:"primaryKey;autoIncrement"`
	TableID    int64 `gorm:"index"`
	MatchNo    int
	StartHP    int
	ActorsJSON datatypes.JSON `gorm:"type:jsonb"`
	ResultJSON datatypes.JSON `gorm:"type:jsonb"` // actor -> hp
	WinnerID   *int64
	CreatedAt  time.Time
	EndedAt    *time.Time
}

type RoundLog struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	MatchID   int64 `gorm:"index"`
	RoundNo   int
	Seed      int64
	Shells    string // "1,0,0,1"
	FirstTurn int64
	CreatedAt time.Time
}

type ShotLog struct {
	ID          int64 `gorm:"primaryKey;autoIncrement"`
	MatchID     int64 `gorm:"index"`
	RoundNo     int
	ShotNo      int
	ShooterID   int64
	TargetID    int64
	Live        bool
	NewTargetHP int
	RoundOver   bool
	NextTurn    int64
	CreatedAt   time.Time
}

// All lists every model for migrations.
func All() []interface{} {
	return []interface{}{
		&Player{},
		&Table{},
		&Match{},
		&RoundLog{},
		&ShotLog{},
	}
}
