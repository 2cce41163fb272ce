// Package orchestrator runs update runs and the restart that follows them.
//
// One run is active per process at a time, guarded by an in-progress flag
// and a cross-process marker. Targets are updated strictly one after another,
// the host target first. A failing target never stops the run; its outcome
// is recorded and the run goes on. After a clean run the restart
// requirements of the updated targets are reduced to one action.
package orchestrator
