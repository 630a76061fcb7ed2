// ABOUTME: Reference consumer for the nanometers snapshot stream
// ABOUTME: Connects, reads fixed-size snapshots, and reconnects on any error
// Package receiver implements the consumer side of the snapshot stream.
//
// A Receiver connects to the publisher's local socket, reads exactly one
// snapshot at a time, decodes it, and hands it to a callback. Any error on the
// channel (refused connection, reset, short read) closes the connection and a
// fresh one is opened after a short backoff. This works with both publisher
// modes: in one-shot mode every connection yields one snapshot and ends with
// EOF, which reconnects at once; in persistent mode snapshots keep coming on
// one connection.
//
// Example:
//
//	r := receiver.New(receiver.Config{Capacity: 48000})
//	err := r.Run(ctx, func(s snapshot.Snapshot) {
//	    // s.Samples is reused; copy what you keep
//	})
package receiver
