package table

import (
	"encoding/json"

	"roulette-service/internal/config"
	"roulette-service/internal/service/duel"
	appErr "roulette-service/pkg/errors"
)

const maxShells = 16

// Rules is the per-table rule set stored with the table.
type Rules struct {
	StartHP      int  `json:"startHp"`
	MaxHP        int  `json:"maxHp"`
	LiveCount    int  `json:"liveCount"`
	BlankCount   int  `json:"blankCount"`
	MinActors    int  `json:"minActors"`
	AutoStart    bool `json:"autoStart"`
	RevealShells bool `json:"revealShells"`
}

// RuleOverrides are the optional rule changes a table creator may request.
type RuleOverrides struct {
	StartHP      *int  `json:"startHp"`
	LiveCount    *int  `json:"liveCount"`
	BlankCount   *int  `json:"blankCount"`
	MinActors    *int  `json:"minActors"`
	AutoStart    *bool `json:"autoStart"`
	RevealShells *bool `json:"revealShells"`
}

func defaultRules(game config.GameConfig) Rules {
	return Rules{
		StartHP:      game.StartHP,
		MaxHP:        game.MaxHP,
		LiveCount:    game.LiveCount,
		BlankCount:   game.BlankCount,
		MinActors:    game.MinActors,
		AutoStart:    game.AutoStart,
		RevealShells: game.RevealShells,
	}
}

func (r Rules) apply(o RuleOverrides) Rules {
	if o.StartHP != nil {
		r.StartHP = *o.StartHP
	}
	if o.LiveCount != nil {
		r.LiveCount = *o.LiveCount
	}
	if o.BlankCount != nil {
		r.BlankCount = *o.BlankCount
	}
	if o.MinActors != nil {
		r.MinActors = *o.MinActors
	}
	if o.AutoStart != nil {
		r.AutoStart = *o.AutoStart
	}
	if o.RevealShells != nil {
		r.RevealShells = *o.RevealShells
	}
	return r
}

func (r Rules) validate(seatCount int) error {
	if r.StartHP < 1 || (r.MaxHP > 0 && r.StartHP > r.MaxHP) {
		return appErr.ErrInvalidTableRule
	}
	if r.LiveCount < 1 || r.BlankCount < 0 || r.LiveCount+r.BlankCount > maxShells {
		return appErr.ErrInvalidTableRule
	}
	if r.MinActors < 2 || r.MinActors > seatCount {
		return appErr.ErrInvalidTableRule
	}
	return nil
}

func (r Rules) settings(seatRadius float64) duel.Settings {
	return duel.Settings{
		StartHP:      r.StartHP,
		MaxHP:        r.MaxHP,
		LiveCount:    r.LiveCount,
		BlankCount:   r.BlankCount,
		MinActors:    r.MinActors,
		AutoStart:    r.AutoStart,
		RevealShells: r.RevealShells,
		SeatRadius:   seatRadius,
	}
}

func parseRules(raw []byte, fallback Rules) (Rules, error) {
	if len(raw) == 0 {
		return fallback, nil
	}
	rules := fallback
	if err := json.Unmarshal(raw, &rules); err != nil {
		return Rules{}, err
	}
	return rules, nil
}
