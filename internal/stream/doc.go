// Package stream carries live tails over WebSocket.
//
// Session is the server side of one tail: it writes text frames, pings
// the peer, and cancels its context as soon as the peer goes away.
// Tail is the consuming side used by cmd/tailcat; it decodes every frame
// as a tick and reports why the tail ended.
package stream
