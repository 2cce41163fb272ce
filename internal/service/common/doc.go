// Package common holds helpers shared by the server and the operator CLI.
//
// It provides a gRPC client wrapper for the update service with per-call
// timeouts, and detects the local actor (hostname/username) sent along with
// update requests.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
