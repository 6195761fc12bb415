// Package serve implements the HTTP backend: it talks to a running
// agent server over REST for session management and prompt submission,
// and consumes the server's Server-Sent-Events feed to stream a turn's
// progress.
//
// The event feed is the authoritative completion signal. A turn's
// prompt POST runs concurrently with the event loop; its response body
// is ignored unless the feed ends before the turn settles.
package serve
