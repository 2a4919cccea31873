package duel

import (
	"math/rand"
	"strconv"
	"strings"
)

// Shell is one chamber outcome. The numeric values are the wire encoding.
type Shell int

const (
	Blank Shell = 0
	Live  Shell = 1
)

func (s Shell) String() string {
	if s == Live {
		return "live"
	}
	return "blank"
}

// DeckBuilder builds the shell sequence for a round.
type DeckBuilder interface {
	Build(seed int64, liveCount, blankCount int) []Shell
}

// DeckBuilderFunc adapts a function to DeckBuilder.
type DeckBuilderFunc func(seed int64, liveCount, blankCount int) []Shell

func (f DeckBuilderFunc) Build(seed int64, liveCount, blankCount int) []Shell {
	return f(seed, liveCount, blankCount)
}

// BuildShells returns liveCount Live and blankCount Blank shells shuffled with
// a Fisher-Yates pass driven by a generator seeded with seed. The same inputs
// always produce the same sequence.
func BuildShells(seed int64, liveCount, blankCount int) []Shell {
	if liveCount < 0 {
		liveCount = 0
	}
	if blankCount < 0 {
		blankCount = 0
	}
	n := liveCount + blankCount
	shells := make([]Shell, 0, n)
	for i := 0; i < liveCount; i++ {
		shells = append(shells, Live)
	}
	for i := 0; i < blankCount; i++ {
		shells = append(shells, Blank)
	}

	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < n; i++ {
		j := i + rng.Intn(n-i)
		shells[i], shells[j] = shells[j], shells[i]
	}
	return shells
}

// CountShells returns how many Live and Blank shells remain from index on.
func CountShells(shells []Shell, from int) (live, blank int) {
	if from < 0 {
		from = 0
	}
	for i := from; i < len(shells); i++ {
		if shells[i] == Live {
			live++
		} else {
			blank++
		}
	}
	return live, blank
}

// EncodeShells serializes shells as a comma separated list of wire values.
func EncodeShells(shells []Shell) string {
	parts := make([]string, len(shells))
	for i, s := range shells {
		parts[i] = strconv.Itoa(int(s))
	}
	return strings.Join(parts, ",")
}

// DecodeShells parses the EncodeShells form. Any malformed entry fails the
// whole value so a reader never sees a partial sequence.
func DecodeShells(raw string) ([]Shell, bool) {
	if raw == "" {
		return []Shell{}, true
	}
	parts := strings.Split(raw, ",")
	shells := make([]Shell, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || (v != int(Blank) && v != int(Live)) {
			return []Shell{}, false
		}
		shells[i] = Shell(v)
	}
	return shells, true
}
