// Package versioncheck implements the check strategies and their registry.
//
// A Registry maps a target's decoded check variant onto a Checker:
//
//   - github_release compares the configured current version with the latest
//     GitHub release, using semantic versioning when both sides parse.
//   - github_commit compares the configured current commit with a branch head.
//   - git_commit compares a local checkout with its upstream.
//   - commandline delegates the decision to an external command.
//   - custom_checker uses a contributed Checker.
//
// GitHub requests share one rate-limited client.
package versioncheck
