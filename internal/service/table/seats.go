package table

import (
	"encoding/json"
	"sort"
	"strconv"

	"roulette-service/internal/model"
	"roulette-service/internal/service/duel"
	"roulette-service/pkg/utils/geo"
)

// SeatEntry is one occupied seat in Table.PlayersJSON, keyed by seat index.
type SeatEntry struct {
	ActorID  int64     `json:"actorId"`
	Bot      bool      `json:"bot,omitempty"`
	BotMode  string    `json:"botMode,omitempty"`
	Position geo.Point `json:"position"`
}

type seatMap map[int]SeatEntry

func parseSeats(raw []byte) (seatMap, error) {
	seats := make(seatMap)
	if len(raw) == 0 {
		return seats, nil
	}
	var byKey map[string]SeatEntry
	if err := json.Unmarshal(raw, &byKey); err != nil {
		return nil, err
	}
	for key, entry := range byKey {
		idx, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		seats[idx] = entry
	}
	return seats, nil
}

func (m seatMap) encode() []byte {
	byKey := make(map[string]SeatEntry, len(m))
	for idx, entry := range m {
		byKey[strconv.Itoa(idx)] = entry
	}
	raw, err := json.Marshal(byKey)
	if err != nil {
		return []byte("{}")
	}
	return raw
}

func (m seatMap) find(actor duel.ActorID) (int, bool) {
	for idx, entry := range m {
		if entry.ActorID == int64(actor) {
			return idx, true
		}
	}
	return 0, false
}

func (m seatMap) freeSeat(seatCount int) (int, bool) {
	for idx := 0; idx < seatCount; idx++ {
		if _, taken := m[idx]; !taken {
			return idx, true
		}
	}
	return 0, false
}

// ordered returns seat indices in ascending order.
func (m seatMap) ordered() []int {
	out := make([]int, 0, len(m))
	for idx := range m {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

func loadSeats(table *model.Table) (seatMap, error) {
	return parseSeats(table.PlayersJSON)
}
