// Package chart accumulates the force/deflection curve of the test in
// progress.
//
// The Accumulator watches projected snapshots. A starting snapshot clears
// the series, a testing snapshot appends a point when deflection has moved
// by at least the dedup threshold since the last point, and every other
// phase leaves the series alone so the previous curve stays visible until
// the next test starts.
package chart
