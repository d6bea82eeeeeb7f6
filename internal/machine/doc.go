// Package machine projects telemetry frames onto the canonical machine
// snapshot.
//
// A Snapshot is a plain value. The Projector holds exactly one current
// snapshot, replaces it wholesale for every telemetry frame and hands out
// copies only. The lifecycle Phase is derived from the integer test status
// by a total mapping: values outside the known range label as PhaseError
// instead of failing.
//
// Connectivity has two sources: the connected field inside each telemetry
// frame and the connection-status topic. The topic is authoritative; once
// it reports the link as down, no telemetry frame can set the connected
// bit again until the topic reports it up.
package machine
