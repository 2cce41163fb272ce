package versioncheck

import (
	"strings"

	"golang.org/x/mod/semver"
)

// normalizeSemverPrefix adds the leading "v" x/mod/semver expects.
func normalizeSemverPrefix(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.HasPrefix(v, "v") {
		return v
	}

	return "v" + v
}

// isCurrentRelease reports whether local is at least remote.
// Versions that are not semantic are compared for equality.
func isCurrentRelease(local, remote string) bool {
	l, r := normalizeSemverPrefix(local), normalizeSemverPrefix(remote)
	if semver.IsValid(l) && semver.IsValid(r) {
		return semver.Compare(l, r) >= 0
	}

	return strings.TrimSpace(local) == strings.TrimSpace(remote)
}
