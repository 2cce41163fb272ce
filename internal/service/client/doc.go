// Package client implements the operator commands of the swupdate CLI.
//
// Every command loads the settings file to find the server, talks to it over
// gRPC, and prints a human readable answer. Update can follow the run over the
// events websocket until it finishes.
package client
