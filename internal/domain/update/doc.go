// Package update contains the core domain types of the software update
// engine: targets and their decoded check/update configuration, version
// facts, cache entries, per-target outcomes, run reports and restart
// requirements.
//
// Check and update configuration are closed variant sets. A target's raw
// record is decoded into exactly one variant by its "type" discriminator
// (checks) or by the single mechanism marker it carries (updates); anything
// else is a typed error.
package update
