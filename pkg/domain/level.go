package domain

import dErrors "pinksync/pkg/domain-errors"

// Level is a compliance level derived from event history, declared
// capabilities, and violations. Levels are ordered bronze < silver < gold <
// platinum; compare with Rank.
type Level string

const (
	LevelBronze   Level = "bronze"
	LevelSilver   Level = "silver"
	LevelGold     Level = "gold"
	LevelPlatinum Level = "platinum"
)

var levelRanks = map[Level]int{
	LevelBronze:   0,
	LevelSilver:   1,
	LevelGold:     2,
	LevelPlatinum: 3,
}

// Levels returns all levels in ascending order.
func Levels() []Level {
	return []Level{LevelBronze, LevelSilver, LevelGold, LevelPlatinum}
}

// ParseLevel constructs a Level from external input.
func ParseLevel(s string) (Level, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "compliance_level cannot be empty")
	}
	l := Level(s)
	if !l.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown compliance_level %q", s)
	}
	return l, nil
}

// IsValid checks if the level is one of the supported tokens.
func (l Level) IsValid() bool {
	_, ok := levelRanks[l]
	return ok
}

// Rank returns the ordinal position of the level, bronze being 0.
func (l Level) Rank() int { return levelRanks[l] }

// Next returns the next level up and false when already at platinum.
func (l Level) Next() (Level, bool) {
	switch l {
	case LevelBronze:
		return LevelSilver, true
	case LevelSilver:
		return LevelGold, true
	case LevelGold:
		return LevelPlatinum, true
	default:
		return l, false
	}
}

func (l Level) String() string { return string(l) }
