// Package storage is the relay's optional delivery journal.
//
// It records one entry per terminal delivery outcome, image degradation and
// rejected queue message. The journal is append-only audit data; the relay
// never reads it back to make routing or retry decisions.
package storage
