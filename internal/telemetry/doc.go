// Package telemetry implements the connection multiplexer between the
// dashboard and the test machine backend.
//
// A Client owns exactly one websocket connection. Inbound envelopes are
// decoded on a single reader goroutine, mapped onto a closed set of topics
// and fanned out to registered listeners in arrival order. Loss of the
// connection is reported as a connection-status frame rather than an error;
// the client never reconnects on its own.
//
// Jog commands are written straight to the socket without waiting for an
// acknowledgement because they carry continuous operator intent.
package telemetry
