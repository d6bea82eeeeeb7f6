// Package plcsim simulates the ring stiffness tester and the backend that
// fronts it, for development and end-to-end tests without hardware.
//
// A Machine holds the controller state. Commands run through a single FIFO
// worker; Step advances the test cycle: starting, loading at the test speed
// until the target deflection, computing ring stiffness and SN class at
// target, returning, then holding complete before idle. A Server publishes
// live data on a websocket using the same envelopes as the real backend and
// serves its REST surface from an in-memory History.
//
// Tests drive a Server with Tick instead of Run so every frame is
// deterministic.
package plcsim
