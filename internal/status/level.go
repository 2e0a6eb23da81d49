// Package status defines the health vocabulary shared by the ledger, the
// incident store and the aggregators.
package status

import "fmt"

// Level is the health of a single service or of the whole system.
type Level string

// Levels in ascending order of severity.
const (
	Operational   Level = "OPERATIONAL"
	Maintenance   Level = "MAINTENANCE"
	Degraded      Level = "DEGRADED"
	PartialOutage Level = "PARTIAL_OUTAGE"
	MajorOutage   Level = "MAJOR_OUTAGE"
)

// Levels returns every level, least severe first.
func Levels() []Level {
	return []Level{Operational, Maintenance, Degraded, PartialOutage, MajorOutage}
}

// Rank orders levels so that a larger rank is worse. Unknown levels rank -1.
func (l Level) Rank() int {
	switch l {
	case Operational:
		return 0
	case Maintenance:
		return 1
	case Degraded:
		return 2
	case PartialOutage:
		return 3
	case MajorOutage:
		return 4
	default:
		return -1
	}
}

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	return l.Rank() >= 0
}

// Worse reports whether l is strictly more severe than other.
func (l Level) Worse(other Level) bool {
	return l.Rank() > other.Rank()
}

// ParseLevel converts a wire value into a Level.
func ParseLevel(s string) (Level, error) {
	l := Level(s)
	if !l.Valid() {
		return "", fmt.Errorf("unknown status level %q", s)
	}
	return l, nil
}

// MaxLevel returns the most severe of the given levels, or Operational when
// none are given.
func MaxLevel(levels ...Level) Level {
	worst := Operational
	for _, l := range levels {
		if l.Worse(worst) {
			worst = l
		}
	}
	return worst
}
