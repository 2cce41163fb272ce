// Package version exposes build metadata of the host application.
//
// Version, Commit and BuildTime are injected at build time via ldflags. The
// version doubles as the build identity that tags the persisted version
// cache: a cache written by another build is discarded on load.
package version
