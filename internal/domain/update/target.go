package update

import (
	"maps"
	"strings"

	"github.com/spf13/cast"
)

// HostTarget is the name of the managed host application target.
// It is always updated first because its update may change the tooling
// used to update everything else.
const HostTarget = "host"

// Recognized keys of a target record.
const (
	KeyType           = "type"
	KeyEnabled        = "enabled"
	KeyIgnorable      = "ignorable"
	KeyRestart        = "restart"
	KeyDisplayName    = "display_name"
	KeyDisplayVersion = "display_version"
	KeyCurrent        = "current"
	KeyUpdateScript   = "update_script"
	KeyPip            = "pip"
	KeyPipCommand     = "pip_command"
	KeyBinary         = "binary"
	KeyCheckoutFolder = "checkout_folder"
)

// Target is a named software unit under management together with its
// effective configuration record.
type Target struct {
	Name string
	// Config is the effective record: contributed data merged under user configuration.
	Config map[string]any
	// DisplayName and DisplayVersion are populated for presentation.
	DisplayName    string
	DisplayVersion string
	// Current is the version the target is believed to run.
	Current string
	// CustomChecker and CustomUpdater are strategy objects contributed in code.
	CustomChecker Checker
	CustomUpdater Updater
}

// NewTarget creates a target over a copy of the provided record.
func NewTarget(name string, record map[string]any) *Target {
	cfg := make(map[string]any, len(record))
	maps.Copy(cfg, record)

	return &Target{
		Name:   name,
		Config: cfg,
	}
}

// Enabled reports whether the target takes part in checks and updates.
// A target is enabled unless its record explicitly says otherwise.
func (t *Target) Enabled() bool {
	v, ok := t.Config[KeyEnabled]
	if !ok || v == nil {
		return true
	}

	// Values from the environment arrive as strings.
	enabled, err := cast.ToBoolE(v)
	if err != nil {
		return true
	}

	return enabled
}

// Ignorable reports whether a failed update of this target must not fail the run.
func (t *Target) Ignorable() bool {
	return cast.ToBool(t.Config[KeyIgnorable])
}

// String returns the value of a string key or "".
func (t *Target) String(key string) string {
	v, _ := t.Config[key].(string)

	return strings.TrimSpace(v)
}

// Has reports whether a key is present with a non-nil value.
func (t *Target) Has(key string) bool {
	v, ok := t.Config[key]

	return ok && v != nil
}

// CheckType returns the raw check discriminator.
func (t *Target) CheckType() CheckType {
	return CheckType(t.String(KeyType))
}

// RestartRequirement is the restart a successful update of this target demands.
// Without an explicit restart field a package-manager mechanism implies a
// component restart. The second result is false for an unparseable value.
func (t *Target) RestartRequirement() (RestartType, bool) {
	if t.Has(KeyRestart) {
		return ParseRestartType(t.String(KeyRestart))
	}

	if t.Has(KeyPip) {
		return RestartComponent, true
	}

	return RestartNone, true
}

// Clone returns a copy whose record can be modified independently.
func (t *Target) Clone() *Target {
	if t == nil {
		return nil
	}

	cloned := *t
	cloned.Config = make(map[string]any, len(t.Config))
	maps.Copy(cloned.Config, t.Config)

	return &cloned
}
