// Package updater implements the update mechanisms and their registry.
//
// A target carries at most one mechanism marker: update_script runs a
// command line, pip installs a package spec with a package manager, binary
// downloads a release artifact and replaces an executable in place, and a
// contributed Updater object is used as is.
package updater
