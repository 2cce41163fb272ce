// Package versioncache implements the persistent, TTL-bounded version cache.
//
// The Cache keeps one entry per target in memory and persists the whole map
// as YAML with an atomic replace-on-write. A persisted cache is only trusted
// when it was produced by the same host build that is loading it.
package versioncache
