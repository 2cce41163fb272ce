package update

// Plan is the accepted shape of an update run.
type Plan struct {
	// Order is the sequence in which targets will be updated.
	Order []string
	// Names maps targets to display names.
	Names map[string]string
}

// TargetStatus is what the read path reports for one target.
type TargetStatus struct {
	DisplayName    string
	DisplayVersion string
	Info           VersionInfo
	// Err is the resolution failure, if any. The target is still reported.
	Err error
}

// CheckReport is the aggregated answer to a version check.
type CheckReport struct {
	Status  string
	Targets map[string]TargetStatus
}

// Actor identifies who asked for a run.
type Actor struct {
	Hostname string
	Username string
}

// String renders the actor as user@host.
func (a *Actor) String() string {
	if a == nil {
		return "<unknown>"
	}

	return a.Username + "@" + a.Hostname
}
