// Package dashboard wires the sync layer together: one telemetry
// multiplexer, one snapshot projector fed by it, one sample accumulator fed
// by the projector, and one command gateway.
//
// Construction is explicit and nothing is global. A process that needs a
// dashboard builds exactly one with New and releases it with Close.
package dashboard
