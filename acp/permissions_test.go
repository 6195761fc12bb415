package acp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func denyAll(context.Context, string, map[string]any) (Decision, error) {
	return DecisionDeny, nil
}

func allowAll(context.Context, string, map[string]any) (Decision, error) {
	return DecisionAllow, nil
}

func TestEvaluateGuardsFirstDenyWins(t *testing.T) {
	matchers := []GuardMatcher{
		{Tool: "bash", Guards: []GuardFunc{allowAll, denyAll}},
	}
	assert.False(t, evaluateGuards(context.Background(), matchers, "bash", nil))
	assert.True(t, evaluateGuards(context.Background(), matchers, "read", nil))
}

func TestEvaluateGuardsWildcardMatchesEverything(t *testing.T) {
	matchers := []GuardMatcher{{Guards: []GuardFunc{denyAll}}}
	assert.False(t, evaluateGuards(context.Background(), matchers, "anything", nil))
}

func TestEvaluateGuardsErrorHasNoOpinion(t *testing.T) {
	erroring := func(context.Context, string, map[string]any) (Decision, error) {
		return DecisionDeny, errors.New("guard broke")
	}
	matchers := []GuardMatcher{{Guards: []GuardFunc{erroring}}}
	assert.True(t, evaluateGuards(context.Background(), matchers, "bash", nil))
}

func TestEvaluateGuardsPanicIsContained(t *testing.T) {
	panicking := func(context.Context, string, map[string]any) (Decision, error) {
		panic("boom")
	}
	matchers := []GuardMatcher{{Guards: []GuardFunc{panicking, denyAll}}}
	assert.False(t, evaluateGuards(context.Background(), matchers, "bash", nil))
}

func TestSelectOption(t *testing.T) {
	options := []PermissionOption{
		{OptionID: "always", Kind: "allow_always"},
		{OptionID: "yes", Kind: "allow_once"},
		{OptionID: "no", Kind: "reject_once"},
	}
	assert.Equal(t, "yes", selectOption(options, true))
	assert.Equal(t, "no", selectOption(options, false))
	assert.Equal(t, "once", selectOption(nil, true))
	assert.Equal(t, "reject", selectOption(nil, false))
}

func permissionFrame(id int, tool string) string {
	return `{"jsonrpc":"2.0","id":` + jsonInt(id) + `,"method":"requestPermission","params":{"sessionId":"sess-1","toolCall":{"toolCallId":"tc9","title":"` + tool + `","rawInput":{"command":"rm -rf /"}},"options":[{"optionId":"allow-1","kind":"allow_once"},{"optionId":"reject-1","kind":"reject_once"}]}}`
}

func jsonInt(i int) string {
	b, _ := json.Marshal(i)
	return string(b)
}

func permissionReply(t *testing.T, ft *fakeTransport, id int64) permissionResponse {
	t.Helper()
	var reply permissionResponse
	require.Eventually(t, func() bool {
		ft.mu.Lock()
		defer ft.mu.Unlock()
		for _, w := range ft.writes {
			if w.ID != nil && *w.ID == id && len(w.Result) > 0 {
				require.NoError(t, json.Unmarshal(w.Result, &reply))
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
	return reply
}

func TestPermissionRequestDefaultAllows(t *testing.T) {
	_, ft := newTestClient(t)

	ft.feed(permissionFrame(7, "bash"))

	reply := permissionReply(t, ft, 7)
	assert.Equal(t, "selected", reply.Outcome.Outcome)
	assert.Equal(t, "allow-1", reply.Outcome.OptionID)
}

func TestPermissionRequestGuardDenies(t *testing.T) {
	_, ft := newTestClient(t, WithGuards(GuardMatcher{
		Tool:   "bash",
		Guards: []GuardFunc{denyAll},
	}))

	ft.feed(permissionFrame(8, "bash"))

	reply := permissionReply(t, ft, 8)
	assert.Equal(t, "reject-1", reply.Outcome.OptionID)
}

func TestPermissionRequestUnmatchedToolAllows(t *testing.T) {
	_, ft := newTestClient(t, WithGuards(GuardMatcher{
		Tool:   "write",
		Guards: []GuardFunc{denyAll},
	}))

	ft.feed(permissionFrame(9, "bash"))

	reply := permissionReply(t, ft, 9)
	assert.Equal(t, "allow-1", reply.Outcome.OptionID)
}
