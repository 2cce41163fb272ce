// Package ws streams progress events to observers over websocket.
package ws
