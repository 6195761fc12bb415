package opencode

import (
	"context"
	"strings"

	"github.com/agentwire/opencode-go/acp"
)

// Guard types are defined next to the permission protocol and aliased
// here so callers usually only import this package.
type (
	GuardFunc    = acp.GuardFunc
	GuardMatcher = acp.GuardMatcher
	Decision     = acp.Decision
)

const (
	DecisionAllow = acp.DecisionAllow
	DecisionDeny  = acp.DecisionDeny
)

// DenySubstrings builds a guard that rejects a tool call when the
// named string input field contains any of the given substrings.
// Typical use: block destructive shell commands.
//
//	opencode.WithGuards(opencode.GuardMatcher{
//		Tool:   "bash",
//		Guards: []opencode.GuardFunc{opencode.DenySubstrings("command", "rm -rf", "sudo")},
//	})
func DenySubstrings(field string, substrings ...string) GuardFunc {
	return func(_ context.Context, _ string, input map[string]any) (Decision, error) {
		value, _ := input[field].(string)
		if value == "" {
			return DecisionAllow, nil
		}
		for _, sub := range substrings {
			if strings.Contains(value, sub) {
				return DecisionDeny, nil
			}
		}
		return DecisionAllow, nil
	}
}
