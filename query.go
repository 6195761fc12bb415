package opencode

import (
	"context"
	"strings"

	"github.com/agentwire/opencode-go/agentmsg"
)

// QueryResult is the collected outcome of a one-shot Query.
type QueryResult struct {
	// Messages holds every message of the turn in order, including the
	// leading init SystemMessage.
	Messages []agentmsg.Message
	// Result is the turn's terminal message.
	Result *agentmsg.ResultMessage
	// Text is the concatenated assistant text.
	Text string
	// SessionID identifies the session the turn ran in.
	SessionID string
}

// Query runs a single turn against a fresh client and tears it down
// afterwards. For multi-turn conversations use NewClient directly.
func Query(ctx context.Context, prompt string, opts ...Option) (*QueryResult, error) {
	client := NewClient(opts...)
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	defer func() { _ = client.Disconnect() }()

	if err := client.Query(ctx, prompt); err != nil {
		return nil, err
	}
	stream, err := client.ReceiveResponse(ctx)
	if err != nil {
		return nil, err
	}

	res := &QueryResult{SessionID: client.SessionID()}
	var text strings.Builder
	for msg := range stream.Messages() {
		res.Messages = append(res.Messages, msg)
		switch m := msg.(type) {
		case agentmsg.AssistantMessage:
			for _, block := range m.Content {
				if tb, ok := block.(agentmsg.TextBlock); ok {
					text.WriteString(tb.Text)
				}
			}
		case agentmsg.ResultMessage:
			result := m
			res.Result = &result
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	res.Text = text.String()
	return res, nil
}
