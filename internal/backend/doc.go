// Package backend is the reference worker answering editor requests from an
// in-memory translation-unit store with lexical analysis only.
package backend
