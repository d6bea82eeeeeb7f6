//
//
package command

import (
	"context"
	"sort"
)

// Action is a command that takes no arguments.
type Action func(ctx context.Context, g Gateway) (Outcome, error)

var actions = map[string]Action{
	"start":         func(ctx context.Context, g Gateway) (Outcome, error) { return g.Start(ctx) },
	"stop":          func(ctx context.Context, g Gateway) (Outcome, error) { return g.Stop(ctx) },
	"home":          func(ctx context.Context, g Gateway) (Outcome, error) { return g.Home(ctx) },
	"servo-enable":  func(ctx context.Context, g Gateway) (Outcome, error) { return g.EnableServo(ctx) },
	"servo-disable": func(ctx context.Context, g Gateway) (Outcome, error) { return g.DisableServo(ctx) },
	"servo-reset":   func(ctx context.Context, g Gateway) (Outcome, error) { return g.ResetAlarm(ctx) },
	"lock-upper":    func(ctx context.Context, g Gateway) (Outcome, error) { return g.LockUpper(ctx) },
	"lock-lower":    func(ctx context.Context, g Gateway) (Outcome, error) { return g.LockLower(ctx) },
	"unlock-all":    func(ctx context.Context, g Gateway) (Outcome, error) { return g.UnlockAll(ctx) },
	"mode-remote":   func(ctx context.Context, g Gateway) (Outcome, error) { return g.SetRemoteMode(ctx, true) },
	"mode-local":    func(ctx context.Context, g Gateway) (Outcome, error) { return g.SetRemoteMode(ctx, false) },
	"reconnect":     func(ctx context.Context, g Gateway) (Outcome, error) { return g.Reconnect(ctx) },
	"ack-all":       func(ctx context.Context, g Gateway) (Outcome, error) { return g.AcknowledgeAllAlarms(ctx, "") },
}

// LookupAction returns the named argument-free command.
func LookupAction(name string) (Action, bool) {
	a, ok := actions[name]
	return a, ok
}

// ActionNames lists the names LookupAction accepts, sorted.
func ActionNames() []string {
	names := make([]string, 0, len(actions))
	for name := range actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
