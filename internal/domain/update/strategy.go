package update

import "context"

// LogFunc receives free-form output lines produced while applying an update.
// stream is "stdout", "stderr" or "message".
type LogFunc func(stream string, lines ...string)

// Checker determines the local and latest version of a target.
// isCurrent is true when no update is available.
type Checker interface {
	CheckLatest(ctx context.Context, t *Target) (info Information, isCurrent bool, err error)
}

// Updater applies an update to a target.
type Updater interface {
	// CanApply reports whether the mechanism is fully configured and usable.
	CanApply(ctx context.Context, t *Target) bool
	// Apply updates the target to targetVersion and returns a result payload.
	Apply(ctx context.Context, t *Target, targetVersion string, log LogFunc) (any, error)
}
