// Package proxy owns one endpoint of a connection.
//
// Ownership boundary:
// - typed send API for each role
// - the reactor that decodes and dispatches frames in order
// - bound/unbound state and error classification
package proxy
