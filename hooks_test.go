package opencode

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDenySubstrings(t *testing.T) {
	guard := DenySubstrings("command", "rm -rf", "sudo")

	cases := []struct {
		name  string
		input map[string]any
		want  Decision
	}{
		{"benign command", map[string]any{"command": "ls -la"}, DecisionAllow},
		{"blocked substring", map[string]any{"command": "sudo reboot"}, DecisionDeny},
		{"blocked mid-string", map[string]any{"command": "cd /tmp && rm -rf ."}, DecisionDeny},
		{"missing field", map[string]any{"path": "/etc"}, DecisionAllow},
		{"non-string field", map[string]any{"command": 42}, DecisionAllow},
		{"nil input", nil, DecisionAllow},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := guard(context.Background(), "bash", tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
