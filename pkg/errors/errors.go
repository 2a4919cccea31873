package errors

import "errors"

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidNickname   = errors.New("invalid nickname")
	ErrInvalidPassword   = errors.New("invalid password")
	ErrNicknameTaken     = errors.New("nickname already taken")
	ErrPlayerNotFound    = errors.New("player not found")
	ErrPlayerBanned      = errors.New("player banned")
	ErrTooManyAttempts   = errors.New("too many login attempts")
	ErrTableNotFound     = errors.New("table not found")
	ErrTableAccessDenied = errors.New("table access denied")
	ErrTableFull         = errors.New("table is full")
	ErrAlreadySeated     = errors.New("already seated at table")
	ErrInvalidTableRule  = errors.New("invalid table rule")
	ErrMatchNotFound     = errors.New("match not found")
)

// Duel protocol rejections. None of these mutate match state.
var (
	ErrNotAuthority    = errors.New("not the table authority")
	ErrShooterMismatch = errors.New("shooter does not match sender")
	ErrNotYourTurn     = errors.New("not your turn")
	ErrMatchNotRunning = errors.New("match not running")
	ErrMatchRunning    = errors.New("match already running")
	ErrNotEnoughActors = errors.New("not enough actors")
	ErrUnknownActor    = errors.New("unknown actor")
	ErrNoActors        = errors.New("actor list empty")
	ErrInvalidAmount   = errors.New("invalid amount")
)
