package acp

import (
	"context"
	"fmt"
	"log/slog"
)

// Decision is a guard's verdict on a proposed tool call.
type Decision int

const (
	// DecisionAllow lets the negotiation continue to the agent's
	// default option.
	DecisionAllow Decision = iota
	// DecisionDeny rejects the tool call.
	DecisionDeny
)

// GuardFunc inspects a proposed tool call and decides whether it may
// run. A returned error means the guard has no opinion.
type GuardFunc func(ctx context.Context, tool string, input map[string]any) (Decision, error)

// GuardMatcher binds guards to a tool name. An empty Tool matches
// every tool.
type GuardMatcher struct {
	Tool   string
	Guards []GuardFunc
}

func (m GuardMatcher) matches(tool string) bool {
	return m.Tool == "" || m.Tool == tool
}

// evaluateGuards runs every matching guard. A panicking or erroring
// guard is logged and skipped. The first deny wins.
func evaluateGuards(ctx context.Context, matchers []GuardMatcher, tool string, input map[string]any) bool {
	for _, m := range matchers {
		if !m.matches(tool) {
			continue
		}
		for _, guard := range m.Guards {
			decision, err := invokeGuard(ctx, guard, tool, input)
			if err != nil {
				slog.Warn("permission guard failed", "tool", tool, "error", err)
				continue
			}
			if decision == DecisionDeny {
				return false
			}
		}
	}
	return true
}

func invokeGuard(ctx context.Context, guard GuardFunc, tool string, input map[string]any) (decision Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("guard panic: %v", r)
		}
	}()
	return guard(ctx, tool, input)
}

// selectOption picks the optionId to answer a permission request with.
// Allowed requests take the first allow_once option; denied requests
// the first reject_once option. The literal fallbacks match agents
// that omit option lists.
func selectOption(options []PermissionOption, allowed bool) string {
	wantKind, fallback := optionAllowOnce, "once"
	if !allowed {
		wantKind, fallback = optionRejectOnce, "reject"
	}
	for _, opt := range options {
		if opt.Kind == wantKind {
			return opt.OptionID
		}
	}
	return fallback
}
