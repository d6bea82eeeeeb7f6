// Package audit implements the command audit trail of the dashboard.
//
// Every command sent through the gateway is recorded as one JSON line with
// the action, the request id, the outcome code, the operator-facing message
// and the round-trip latency. The file is append-only and rotated by size.
package audit
