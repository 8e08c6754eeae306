// Package editor owns the editor side of a backend session.
//
// Ownership boundary:
// - dialing and reconnecting through the supervisor
// - blocking calls over asynchronous replies
package editor
