// Package command implements the command gateway of the dashboard: the
// request/response side of the backend API.
//
// Every mutating operation answers with an Outcome carrying success and an
// operator-facing message. Transport failures and HTTP error statuses are
// normalized to the sentinel errors in errors.go. The gateway never
// retries, and a successful outcome says nothing about machine state; the
// telemetry stream stays the only source of truth for that.
package command
