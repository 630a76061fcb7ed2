// ABOUTME: Real-time sample publisher for external scopes and meters
// ABOUTME: Owns the ring buffer and local socket, driven once per audio block
// Package nanometers publishes a live window of processed audio to one
// external monitoring process over a local socket.
//
// A Publisher is created when the audio processor is constructed and closed
// when it is destroyed. The audio callback calls Process once per block: the
// block is appended to the ring buffer and, if a consumer is connecting, a
// full snapshot is written to it. Process never blocks, never allocates, and
// never returns an error; streaming problems only show up in Stats and in the
// consumer seeing no data.
//
// Example:
//
//	pub, err := nanometers.New(nanometers.Config{})
//	defer pub.Close()
//
//	// audio callback
//	pub.Process([][]float32{left, right})
package nanometers
