package update

import "time"

// UnknownVersion is the placeholder for a version that could not be determined.
const UnknownVersion = "unknown"

// VersionName is a version as shown to the user (Name) and as compared (Value).
type VersionName struct {
	Name  string `yaml:"name"  json:"name"`
	Value string `yaml:"value" json:"value"`
}

// Information holds the local and remote version of a target.
type Information struct {
	Local  VersionName `yaml:"local"  json:"local"`
	Remote VersionName `yaml:"remote" json:"remote"`
}

// WithDefaults fills every missing name or value with UnknownVersion.
func (i Information) WithDefaults() Information {
	fill := func(v VersionName) VersionName {
		if v.Name == "" {
			v.Name = UnknownVersion
		}

		if v.Value == "" {
			v.Value = UnknownVersion
		}

		return v
	}

	return Information{
		Local:  fill(i.Local),
		Remote: fill(i.Remote),
	}
}

// IsZero reports whether no version facts were gathered.
func (i Information) IsZero() bool {
	return i == Information{}
}

// VersionInfo is the result of resolving one target.
type VersionInfo struct {
	Information     Information
	UpdateAvailable bool
	UpdatePossible  bool
}

// CacheEntry is a VersionInfo stamped with the time it was resolved.
type CacheEntry struct {
	Timestamp time.Time
	Info      VersionInfo
}

// Valid reports whether the entry may still be served at now.
// A timestamp in the future means the clock moved backward; such entries are invalid.
func (e CacheEntry) Valid(now time.Time, ttl time.Duration) bool {
	if e.Timestamp.After(now) {
		return false
	}

	return now.Sub(e.Timestamp) < ttl
}
