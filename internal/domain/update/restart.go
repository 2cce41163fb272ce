package update

import "strings"

// RestartType is the class of restart a successful update demands.
type RestartType string

const (
	// RestartNone means no restart is needed.
	RestartNone RestartType = "none"
	// RestartComponent restarts the host application process.
	RestartComponent RestartType = "component"
	// RestartEnvironment restarts the whole device.
	RestartEnvironment RestartType = "environment"
)

// ParseRestartType parses a configured restart value. An empty value is RestartNone.
func ParseRestartType(s string) (RestartType, bool) {
	switch RestartType(strings.ToLower(strings.TrimSpace(s))) {
	case "", RestartNone:
		return RestartNone, true
	case RestartComponent:
		return RestartComponent, true
	case RestartEnvironment:
		return RestartEnvironment, true
	default:
		return RestartNone, false
	}
}

// rank orders restart types: environment > component > none.
func (r RestartType) rank() int {
	switch r {
	case RestartEnvironment:
		return 2
	case RestartComponent:
		return 1
	default:
		return 0
	}
}

// Combine returns the stronger of r and other. The aggregate never downgrades.
func (r RestartType) Combine(other RestartType) RestartType {
	if other.rank() > r.rank() {
		return other
	}

	if r == "" {
		return RestartNone
	}

	return r
}

// Required reports whether a restart action is needed at all.
func (r RestartType) Required() bool {
	return r.rank() > 0
}

// ReduceRestart folds a set of requirements into a single action.
func ReduceRestart(requirements ...RestartType) RestartType {
	result := RestartNone
	for _, r := range requirements {
		result = result.Combine(r)
	}

	return result
}
