// Package catalog assembles the effective targets of the update engine.
//
// Targets come from the configured "checks" section and from contributors.
// Contributed records are merged under the configured ones, so explicit
// settings always win. The assembled catalog is cached until Invalidate.
package catalog
